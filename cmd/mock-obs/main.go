package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/dvangennip/web-remote-for-OBS/internal/logger"
	"github.com/dvangennip/web-remote-for-OBS/internal/mock"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4444", "Address to serve the fake obs-websocket on")
	password := flag.String("password", "", "Require this password (empty disables authentication)")
	animate := flag.Bool("animate", true, "Drift faders and rotate scenes")
	interval := flag.Duration("interval", 500*time.Millisecond, "Animation step")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.New(*level, os.Stderr, "mock-obs")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := mock.NewServer(*password, mock.DefaultStudio(), log)
	if *animate {
		mock.NewGenerator(obs, *interval, time.Now().UnixNano()).Start(ctx)
	}

	server := &http.Server{Addr: *addr, Handler: obs, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		obs.CloseClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Bool("auth", *password != "").Msg("fake OBS listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
