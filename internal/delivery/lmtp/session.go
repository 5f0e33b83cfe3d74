package lmtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mailgate/internal/blobstorage"
	"mailgate/internal/db"
	"mailgate/internal/mail"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/parser"
)

var (
	errInvalidRecipient = &smtp.SMTPError{Code: 501, EnhancedCode: smtp.EnhancedCode{5, 1, 3}, Message: "Invalid recipient address"}
	errRelayDenied      = &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "Relay not permitted"}
	errUnknownUser      = &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "User does not exist"}
	errTemporary        = &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Temporary failure, try again later"}
	errBadMessage       = &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: "Message headers could not be parsed"}
)

// Backend creates one Session per LMTP connection.
type Backend struct {
	storage        blobstorage.BlobStorage
	users          db.UserStore
	hostname       string
	allowedDomains []string
	rejectUnknown  bool
	storeTimeout   time.Duration
	logger         zerolog.Logger
}

func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if addr := c.Conn().RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{backend: b, id: uuid.NewString(), remote: remote}, nil
}

// Session holds one LMTP transaction at a time.
type Session struct {
	backend    *Backend
	id         string
	remote     string
	mailFrom   string
	recipients []string
}

func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.mailFrom = from
	return nil
}

func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	local, domain := parser.AddressParts(to)
	if local == "" || domain == "" {
		return errInvalidRecipient
	}

	if len(s.backend.allowedDomains) > 0 && !domainAllowed(domain, s.backend.allowedDomains) {
		return errRelayDenied
	}

	if s.backend.rejectUnknown && s.backend.users != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.backend.timeout())
		defer cancel()
		if _, err := s.backend.users.GetUser(ctx, to); err != nil {
			if errors.Is(err, db.ErrUserNotFound) {
				return errUnknownUser
			}
			s.backend.logger.Error().Err(err).Str("rcpt", to).Msg("recipient lookup failed")
			return errTemporary
		}
	}

	s.recipients = append(s.recipients, to)
	return nil
}

// Data stores the message once under incoming/. Every recipient of the
// transaction gets the same status; the mail API picks the message up for
// each user named in its To header.
func (s *Session) Data(r io.Reader) error {
	logger := s.backend.logger.With().Str("session", s.id).Str("from", s.mailFrom).Logger()

	data, err := io.ReadAll(r)
	if err != nil {
		metrics.Deliveries.WithLabelValues("rejected").Inc()
		logger.Warn().Err(err).Msg("message rejected while reading")
		return err
	}
	if _, err := parser.ParseHeaders(data); err != nil {
		metrics.Deliveries.WithLabelValues("rejected").Inc()
		logger.Warn().Err(err).Msg("message rejected")
		return errBadMessage
	}

	key := mail.MailboxPrefix(models.MailboxInbox) + uuid.NewString()
	content := append(s.traceHeaders(time.Now()), data...)

	ctx, cancel := context.WithTimeout(context.Background(), s.backend.timeout())
	defer cancel()

	start := time.Now()
	err = s.backend.storage.Store(ctx, key, content)
	metrics.ObserveBackend("put", err, start)
	if err != nil {
		metrics.Deliveries.WithLabelValues("error").Inc()
		logger.Error().Err(err).Str("key", key).Msg("failed to store message")
		return errTemporary
	}

	metrics.Deliveries.WithLabelValues("stored").Inc()
	logger.Info().
		Str("key", key).
		Strs("recipients", s.recipients).
		Int("size", len(content)).
		Msg("message delivered")
	return nil
}

func (s *Session) Reset() {
	s.mailFrom = ""
	s.recipients = nil
}

func (s *Session) Logout() error {
	return nil
}

// traceHeaders returns the Return-Path and Received lines prepended to a
// delivered message.
func (s *Session) traceHeaders(now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Return-Path: <%s>\r\n", s.mailFrom)
	from := s.remote
	if from == "" {
		from = "local"
	}
	fmt.Fprintf(&b, "Received: from %s by %s with LMTP id %s; %s\r\n",
		from, s.backend.hostname, s.id, now.UTC().Format(time.RFC1123Z))
	return []byte(b.String())
}

func (b *Backend) timeout() time.Duration {
	if b.storeTimeout <= 0 {
		return 30 * time.Second
	}
	return b.storeTimeout
}

func domainAllowed(domain string, allowed []string) bool {
	for _, d := range allowed {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}
