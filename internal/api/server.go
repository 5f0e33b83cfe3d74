// Package api exposes the mail service over HTTP with JSON bodies and
// Basic or Bearer authentication.
package api

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailgate/internal/conf"
	"mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
)

// MailService is the set of mail operations the API serves.
type MailService interface {
	Authenticate(ctx context.Context, email, password string) bool
	UserExists(ctx context.Context, email string) bool
	ListMailboxes(ctx context.Context, user string) ([]models.MailboxInfo, error)
	ListMessages(ctx context.Context, user, mailbox string, opts mail.ListOptions) ([]models.EmailMessage, error)
	GetMessage(ctx context.Context, user, id string, opts mail.GetOptions) (*mail.MessageDetail, error)
	DeleteMessage(ctx context.Context, user, id string, opts mail.DeleteOptions) error
	SendMessage(ctx context.Context, user string, params mail.SendParams) (string, error)
	GetMessageFlags(ctx context.Context, user, id string) (models.MessageFlags, error)
	SetMessageFlags(ctx context.Context, user, id string, update models.FlagUpdate) (models.MessageFlags, error)
	SearchMessages(ctx context.Context, user string, q mail.SearchQuery) ([]models.EmailMessage, error)
}

// Server routes HTTP requests to a MailService.
type Server struct {
	svc    MailService
	tokens *TokenIssuer
	origin string
	logger zerolog.Logger
}

// NewServer builds the API. Signed tokens are issued only when a JWT secret
// is configured; otherwise /auth returns base64 credentials.
func NewServer(svc MailService, cfg conf.APIConfig, logger zerolog.Logger) *Server {
	s := &Server{svc: svc, origin: cfg.AllowedOrigin, logger: logger}
	if s.origin == "" {
		s.origin = "*"
	}
	if cfg.JWTSecret != "" {
		s.tokens = NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTLDuration())
	}
	return s
}

// userHandler is a handler that runs after authentication.
type userHandler func(w http.ResponseWriter, r *http.Request, user string)

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	route("POST /auth", s.handleAuth)
	route("GET /mailboxes", s.requireAuth(s.handleListMailboxes))
	route("GET /messages", s.requireAuth(s.handleListMessages))
	route("POST /messages", s.requireAuth(s.handleSendMessage))
	route("GET /messages/{id}", s.requireAuth(s.handleGetMessage))
	route("DELETE /messages/{id}", s.requireAuth(s.handleDeleteMessage))
	route("GET /messages/{id}/flags", s.requireAuth(s.handleGetFlags))
	route("PUT /messages/{id}/flags", s.requireAuth(s.handleSetFlags))
	route("POST /search", s.requireAuth(s.handleSearch))
	route("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	route("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return s.recoverPanics(s.cors(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("mail API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.origin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error().
					Interface("panic", v).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// instrument records duration and status per route pattern.
func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.ObserveRequest(pattern, status, start)
			s.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(rec, r)
	})
}

// requireAuth resolves the caller from the Authorization header on every
// request. There is no server-side session.
func (s *Server) requireAuth(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found {
		return "", false
	}
	value = strings.TrimSpace(value)

	switch {
	case strings.EqualFold(scheme, "Basic"):
		return s.checkCredentials(r.Context(), value)
	case strings.EqualFold(scheme, "Bearer"):
		if s.tokens != nil && looksLikeJWT(value) {
			email, err := s.tokens.Verify(value)
			if err != nil {
				s.logger.Debug().Err(err).Msg("bearer token rejected")
				return "", false
			}
			if !s.svc.UserExists(r.Context(), email) {
				return "", false
			}
			return email, true
		}
		return s.checkCredentials(r.Context(), value)
	default:
		return "", false
	}
}

func (s *Server) checkCredentials(ctx context.Context, encoded string) (string, bool) {
	email, password, ok := decodeCredentials(encoded)
	if !ok || !s.svc.Authenticate(ctx, email, password) {
		return "", false
	}
	return db.NormalizeEmail(email), true
}
