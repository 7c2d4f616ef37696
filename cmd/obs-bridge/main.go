package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dvangennip/web-remote-for-OBS/internal/bridge"
	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/config"
	"github.com/dvangennip/web-remote-for-OBS/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		log := logger.New("info", os.Stderr, "obs-bridge")
		log.Fatal().Err(err).Msg("bridge stopped")
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("obs-bridge", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to config file")
	listen := fs.String("listen", "", "Address to serve HTTP on, overrides the config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *listen != "" {
		cfg.Bridge.Listen = *listen
	}
	log := logger.New(cfg.Log.Level, os.Stderr, "obs-bridge")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	session := client.NewSession(client.Options{
		PreferSecure:   cfg.Client.PreferSecure,
		RequestTimeout: cfg.Client.RequestTimeout,
		Log:            log,
	})
	defer session.Disconnect()

	sup := bridge.NewSupervisor(session, cfg.Client.Host, cfg.Client.Password, bridge.SupervisorOptions{Log: log})
	session.AddLifecycle(sup)
	go func() {
		if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("giving up on OBS")
			stop()
		}
	}()

	if cfg.Bridge.AuthKey == "" {
		log.Warn().Msg("no auth key configured: anyone who can reach the bridge can control OBS")
	}
	srv := bridge.New(session, bridge.Options{
		AuthKey:   cfg.Bridge.AuthKey,
		StaticDir: cfg.Bridge.StaticDir,
		Log:       log,
	})
	if err := srv.Run(ctx, cfg.Bridge.Listen); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
