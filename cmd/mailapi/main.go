package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mailgate/internal/api"
	"mailgate/internal/blobstorage"
	"mailgate/internal/conf"
	"mailgate/internal/db"
	"mailgate/internal/logging"
	"mailgate/internal/mail"
	"mailgate/internal/outbound"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "", "Path to configuration file (default: config.yaml or config/config.yaml)")
	addr := flag.String("addr", "", "Address to listen on (overrides api.address)")
	flag.Parse()

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.API.Address = *addr
	}

	logger := logging.New(cfg.Logging, "mailapi")

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
	logger.Info().Str("backend", cfg.Storage.Backend).Str("bucket", cfg.Storage.Bucket).Msg("object storage initialized")

	store, err := db.New(ctx, cfg.Store, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize user and flag store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing store")
		}
	}()
	logger.Info().Str("backend", cfg.Store.Backend).Msg("store initialized")

	sender, err := outbound.New(ctx, cfg.Outbound, cfg.AWS)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize send service")
	}

	svc := mail.NewService(storage, store, sender, mail.Options{
		ReadConcurrency: cfg.API.ReadConcurrency,
		PreviewLength:   cfg.API.PreviewLength,
		Logger:          logger,
	})

	if err := api.NewServer(svc, cfg.API, logger).ListenAndServe(ctx, cfg.API.Address); err != nil {
		logger.Error().Err(err).Msg("mail API failed")
		return
	}
	logger.Info().Msg("mail API stopped")
}
