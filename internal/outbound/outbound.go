// Package outbound hands composed messages to a sending service.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mailgate/internal/conf"
)

// ErrInvalidMessage is returned when a message lacks recipients or a subject.
var ErrInvalidMessage = errors.New("invalid outbound message")

// Message is one outgoing mail. Text and HTML may both be set.
type Message struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
}

// Recipients returns every envelope recipient in To, Cc, Bcc order.
func (m Message) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	rcpts = append(rcpts, m.To...)
	rcpts = append(rcpts, m.Cc...)
	rcpts = append(rcpts, m.Bcc...)
	return rcpts
}

// Validate checks the fields every sender needs.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidMessage)
	}
	for _, r := range m.Recipients() {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	}
	return nil
}

// Sender delivers a message from the given address and returns the
// provider's message id.
type Sender interface {
	Send(ctx context.Context, from string, msg Message) (string, error)
}

// New builds the sender named in cfg.
func New(ctx context.Context, cfg conf.OutboundConfig, awsCfg conf.AWSConfig) (Sender, error) {
	switch cfg.Backend {
	case "ses":
		return NewSESSender(ctx, awsCfg)
	case "smtp":
		return NewSMTPSender(cfg.SMTPAddress, cfg.SMTPUsername, cfg.SMTPPassword), nil
	case "memory":
		return NewMemorySender(), nil
	default:
		return nil, fmt.Errorf("unknown outbound backend %q", cfg.Backend)
	}
}
