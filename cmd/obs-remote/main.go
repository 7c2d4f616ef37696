package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/dvangennip/web-remote-for-OBS/internal/app"
	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/config"
	"github.com/dvangennip/web-remote-for-OBS/internal/logger"
	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/poll"
)

func main() {
	configPath := flag.StringP("config", "c", "", "Path to config file")
	host := flag.String("host", "", "OBS host[:port], overrides the config")
	password := flag.String("password", "", "obs-websocket password")
	secure := flag.Bool("secure", false, "Prefer wss:// when the host has no scheme")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Client.Host = *host
	}
	if *password != "" {
		cfg.Client.Password = *password
	}
	if *secure {
		cfg.Client.PreferSecure = true
	}

	logFile, err := logger.OpenFile(cfg.LogPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	// The screen belongs to Bubble Tea; logs go to the file and the debug
	// overlay.
	notifier := app.NewNotifier()
	log := logger.New(cfg.Log.Level, zerolog.MultiLevelWriter(logFile, notifier), "obs-remote")

	session := client.NewSession(client.Options{
		PreferSecure:   cfg.Client.PreferSecure,
		RequestTimeout: cfg.Client.RequestTimeout,
		Log:            log,
	})
	engine := mirror.NewEngine(session, mirror.Options{
		Log:                 log,
		OnChange:            notifier.Changed,
		ScreenshotIdleEvery: cfg.Poll.ScreenshotIdleEvery,
		ScreenshotWidth:     cfg.Poll.ScreenshotWidth,
	})
	engine.Subscribe(session.Router())
	poller := poll.New(engine.Refresh, poll.Options{Name: "refresh", Interval: cfg.Poll.Interval, Log: log})
	defer poller.Stop()

	session.AddLifecycle(engine)
	session.AddLifecycle(poller)
	session.AddLifecycle(notifier)
	session.OnStateChange(notifier.StateChanged)
	notifier.Watch(session.Router())

	m := app.New(app.Deps{
		Session:  session,
		Engine:   engine,
		Notifier: notifier,
		Store:    config.NewConnectionStore(cfg.StatePath()),
		Config:   cfg,
		Log:      log,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()
	session.Disconnect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
