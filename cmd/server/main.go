package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/config"
	"github.com/omochice/realtime-chat/internal/server"
	"github.com/omochice/realtime-chat/internal/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until SIGINT or SIGTERM. Returning
// instead of exiting lets the deferred cleanups run.
func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	messageStore, err := store.OpenBadger(cfg.BadgerFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = messageStore.Close()
	}()

	persister := store.NewPersister(messageStore, logger, cfg.PersistQueueSize, cfg.PersistWorkers, cfg.PersistTimeout)
	persister.Start(context.Background())
	defer func() {
		persister.Stop()
		logger.Info("Persister drained", "failures", persister.Failures())
	}()

	gate := auth.NewGate(auth.NewJWTVerifier(cfg.JWTSecret), logger)
	hub := chat.NewHub(logger, gate, persister, cfg.ConnectionBufferSize)

	srv := server.New(cfg.Address, hub, logger, cfg.WriteTimeout)
	if err := srv.Start(); err != nil {
		return exitRuntime, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutdown signal received")
	srv.Stop()
	return exitOK, nil
}
