package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mailgate/internal/client"
	"mailgate/internal/conf"
	"mailgate/internal/logging"
	"mailgate/internal/metrics"
	"mailgate/internal/server"
)

func main() {
	// Command-line flags
	configPath := flag.String("config", "", "Path to configuration file (default: config.yaml or config/config.yaml)")
	addr := flag.String("addr", "", "Address to listen on (overrides imap.address)")
	apiURL := flag.String("api", "", "Mail API base URL (overrides imap.api_url)")
	flag.Parse()

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.IMAP.Address = *addr
	}
	if *apiURL != "" {
		cfg.IMAP.APIURL = *apiURL
	}

	logger := logging.New(cfg.Logging, "imapproxy")
	logger.Info().Str("api", cfg.IMAP.APIURL).Msg("starting mailgate IMAP proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imapServer := server.NewIMAPServer(client.New(cfg.IMAP.APIURL, nil), server.Options{
		RequestTimeout: cfg.IMAP.RequestTimeoutDuration(),
		IdleTimeout:    cfg.IMAP.IdleTimeoutDuration(),
		Logger:         logger,
	})
	if err := imapServer.SetTLSCertificates(cfg.IMAP.TLSCert, cfg.IMAP.TLSKey); err != nil {
		logger.Warn().Err(err).Msg("TLS disabled, serving plaintext IMAP")
	}

	if cfg.IMAP.MetricsAddress != "" {
		go serveMetrics(ctx, cfg.IMAP.MetricsAddress, logger)
	}

	if err := imapServer.ListenAndServe(ctx, cfg.IMAP.Address); err != nil {
		logger.Fatal().Err(err).Msg("IMAP proxy failed")
	}
	logger.Info().Msg("mailgate IMAP proxy stopped")
}

// serveMetrics exposes the Prometheus registry until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("address", addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
