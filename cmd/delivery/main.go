package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mailgate/internal/blobstorage"
	"mailgate/internal/conf"
	"mailgate/internal/db"
	"mailgate/internal/delivery/lmtp"
	"mailgate/internal/logging"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "", "Path to configuration file (default: config.yaml or config/config.yaml)")
	unixSocket := flag.String("socket", "", "Path to UNIX socket")
	tcpAddr := flag.String("tcp", "", "TCP address to bind (e.g., 127.0.0.1:24 or :24)")
	flag.Parse()

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command-line flags if provided
	if *unixSocket != "" {
		cfg.Delivery.UnixSocket = *unixSocket
	}
	if *tcpAddr != "" {
		cfg.Delivery.TCPAddress = *tcpAddr
	}

	logger := logging.New(cfg.Logging, "delivery")
	logger.Info().Msg("starting mailgate delivery service (LMTP)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := blobstorage.New(ctx, cfg.Storage, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}
	defer func() {
		if err := blobstorage.Close(storage); err != nil {
			logger.Error().Err(err).Msg("error closing object storage")
		}
	}()

	var users db.UserStore
	if cfg.Delivery.RejectUnknownUser {
		store, err := db.New(ctx, cfg.Store, cfg.AWS)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize user store")
		}
		defer store.Close()
		users = store
	}

	server := lmtp.NewServer(cfg.Delivery, storage, users, logger)
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error().Err(err).Msg("delivery service failed")
		return
	}
	logger.Info().Msg("mailgate delivery service stopped")
}
