// Package lmtp accepts inbound mail over LMTP and drops each message into
// the INBOX prefix of the object store, where the mail API lists it.
package lmtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"mailgate/internal/blobstorage"
	"mailgate/internal/conf"
	"mailgate/internal/db"
)

// Server represents an LMTP server
type Server struct {
	cfg    conf.DeliveryConfig
	smtp   *smtp.Server
	logger zerolog.Logger
}

// NewServer creates an LMTP server storing into storage. users may be nil,
// in which case every syntactically valid recipient is accepted.
func NewServer(cfg conf.DeliveryConfig, storage blobstorage.BlobStorage, users db.UserStore, logger zerolog.Logger) *Server {
	backend := &Backend{
		storage:        storage,
		users:          users,
		hostname:       cfg.Hostname,
		allowedDomains: cfg.AllowedDomains,
		rejectUnknown:  cfg.RejectUnknownUser,
		storeTimeout:   cfg.TimeoutDuration(),
		logger:         logger,
	}

	s := smtp.NewServer(backend)
	s.LMTP = true
	s.Domain = cfg.Hostname
	s.MaxMessageBytes = cfg.MaxSize
	s.MaxRecipients = cfg.MaxRecipients
	s.ReadTimeout = cfg.TimeoutDuration()
	s.WriteTimeout = cfg.TimeoutDuration()
	s.ErrorLog = errorLog{logger: logger}

	return &Server{cfg: cfg, smtp: s, logger: logger}
}

// ListenAndServe opens the configured UNIX socket and TCP address and
// serves them until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var listeners []net.Listener

	if s.cfg.UnixSocket != "" {
		// Remove a stale socket left by a previous run
		_ = os.Remove(s.cfg.UnixSocket)
		ln, err := net.Listen("unix", s.cfg.UnixSocket)
		if err != nil {
			return fmt.Errorf("failed to start UNIX listener: %w", err)
		}
		if err := os.Chmod(s.cfg.UnixSocket, 0o666); err != nil {
			s.logger.Warn().Err(err).Msg("failed to set socket permissions")
		}
		defer os.Remove(s.cfg.UnixSocket)
		listeners = append(listeners, ln)
	}

	if s.cfg.TCPAddress != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddress)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("failed to start TCP listener: %w", err)
		}
		listeners = append(listeners, ln)
	}

	if len(listeners) == 0 {
		return errors.New("no LMTP listener configured")
	}
	return s.Serve(ctx, listeners...)
}

// Serve accepts LMTP sessions on every listener until ctx is cancelled,
// then waits up to 10 seconds for open sessions to finish.
func (s *Server) Serve(ctx context.Context, listeners ...net.Listener) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(listeners))
	for _, ln := range listeners {
		s.logger.Info().Str("network", ln.Addr().Network()).Str("address", ln.Addr().String()).Msg("LMTP server listening")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.smtp.Serve(ln); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.logger.Error().Err(serveErr).Msg("LMTP listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.smtp.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("LMTP shutdown incomplete, closing")
		_ = s.smtp.Close()
	}
	wg.Wait()

	s.logger.Info().Msg("LMTP server stopped")
	return serveErr
}

// errorLog routes go-smtp's internal errors to zerolog.
type errorLog struct {
	logger zerolog.Logger
}

func (l errorLog) Printf(format string, v ...any) {
	l.logger.Warn().Msgf(format, v...)
}

func (l errorLog) Println(v ...any) {
	l.logger.Warn().Msg(fmt.Sprint(v...))
}
