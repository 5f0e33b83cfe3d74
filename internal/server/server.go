// Package server is the IMAP side of the gateway: it accepts client
// connections and serves each one from the mail API.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailgate/internal/logging"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/server/auth"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultIdleTimeout    = 30 * time.Minute
)

// Options tunes an IMAPServer. Zero durations select the defaults.
type Options struct {
	RequestTimeout time.Duration // per mail API call
	IdleTimeout    time.Duration // without client input before the connection is dropped
	Logger         zerolog.Logger
}

type IMAPServer struct {
	backend        models.MailBackend
	logger         zerolog.Logger
	requestTimeout time.Duration
	idleTimeout    time.Duration
	tlsConfig      *tls.Config

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	stopping bool
	wg       sync.WaitGroup
}

func NewIMAPServer(backend models.MailBackend, opts Options) *IMAPServer {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &IMAPServer{
		backend:        backend,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		idleTimeout:    opts.IdleTimeout,
		conns:          make(map[net.Conn]struct{}),
	}
}

// SetTLSCertificates enables TLS when both files exist and load as a key
// pair. Otherwise the server stays plaintext and the reason is returned.
func (s *IMAPServer) SetTLSCertificates(certPath, keyPath string) error {
	if certPath == "" || keyPath == "" {
		return errors.New("no certificate configured")
	}
	for _, p := range []string{certPath, keyPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("certificate file unavailable: %w", err)
		}
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	s.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// TLSEnabled reports whether connections are served over TLS.
func (s *IMAPServer) TLSEnabled() bool {
	return s.tlsConfig != nil
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *IMAPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections until ctx is cancelled, then stops accepting,
// lets every connection finish its current command and waits for them.
func (s *IMAPServer) Serve(ctx context.Context, ln net.Listener) error {
	service := "imap"
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
		service = "imaps"
	}

	s.logger.Info().Str("address", ln.Addr().String()).Bool("tls", s.tlsConfig != nil).Msg("IMAP proxy listening")

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		s.interruptConnections()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			s.logger.Error().Err(err).Msg("accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		metrics.IMAPConnections.WithLabelValues(service).Inc()
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.HandleConnection(conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info().Msg("IMAP proxy stopped")
	return nil
}

func (s *IMAPServer) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		if s.stopping {
			_ = conn.SetReadDeadline(time.Now())
		}
	} else {
		delete(s.conns, conn)
	}
}

// interruptConnections wakes every connection blocked reading its next
// command. A command already running completes first; armReadDeadline then
// refuses to wait for another one.
func (s *IMAPServer) interruptConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// armReadDeadline gives conn the idle timeout for its next command. It
// reports false once shutdown has started.
func (s *IMAPServer) armReadDeadline(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	return true
}

func (s *IMAPServer) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// HandleConnection serves one client until it logs out or the connection
// fails. The session lives only as long as this call.
func (s *IMAPServer) HandleConnection(conn net.Conn) {
	defer conn.Close()

	sess := models.NewProtocolSession(uuid.NewString(), conn)
	s.logger.Debug().Str("conn", sess.ID).Str("remote", remoteAddr(conn)).Msg("connection opened")

	s.SendResponse(conn, "* OK [CAPABILITY "+auth.Capabilities+"] IMAP4rev1 mailgate proxy ready")
	handleClient(s, conn, sess)

	s.logger.Debug().Str("conn", sess.ID).Msg("connection closed")
}

// SendResponse writes one response followed by CRLF.
func (s *IMAPServer) SendResponse(conn net.Conn, response string) {
	s.logger.Debug().Str("response", logging.SanitizeResponse(response)).Msg("server")
	if _, err := conn.Write([]byte(response + "\r\n")); err != nil {
		s.logger.Debug().Err(err).Msg("write failed")
	}
}

func (s *IMAPServer) Logger() *zerolog.Logger {
	return &s.logger
}

func (s *IMAPServer) Backend() models.MailBackend {
	return s.backend
}

// RequestContext bounds one mail API call. Shutdown does not cancel it, so
// the command in flight can still answer.
func (s *IMAPServer) RequestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.requestTimeout)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
