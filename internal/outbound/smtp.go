package outbound

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPSender composes a MIME message and submits it to a relay.
type SMTPSender struct {
	addr     string
	username string
	password string
}

// NewSMTPSender returns a sender for the relay at addr. Credentials are
// optional; when username is empty no AUTH is attempted.
func NewSMTPSender(addr, username, password string) *SMTPSender {
	return &SMTPSender{addr: addr, username: username, password: password}
}

func (s *SMTPSender) Send(ctx context.Context, from string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	id, err := Compose(&buf, from, msg, time.Now())
	if err != nil {
		return "", err
	}

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, auth, from, msg.Recipients(), &buf)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send via %s: %w", s.addr, err)
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Compose writes msg as an RFC 5322 message and returns its Message-Id.
// Text and HTML together produce multipart/alternative.
func Compose(w io.Writer, from string, msg Message, date time.Time) (string, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return "", fmt.Errorf("%w: bad from address %q", ErrInvalidMessage, from)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	for _, field := range []struct {
		name  string
		addrs []string
	}{
		{"To", msg.To},
		{"Cc", msg.Cc},
	} {
		if len(field.addrs) == 0 {
			continue
		}
		list, err := parseAddresses(field.addrs)
		if err != nil {
			return "", err
		}
		h.SetAddressList(field.name, list)
	}
	if msg.ReplyTo != "" {
		list, err := parseAddresses([]string{msg.ReplyTo})
		if err != nil {
			return "", err
		}
		h.SetAddressList("Reply-To", list)
	}

	if err := h.GenerateMessageID(); err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return "", fmt.Errorf("failed to read message id: %w", err)
	}

	if msg.Text != "" && msg.HTML != "" {
		return id, writeAlternative(w, h, msg)
	}

	contentType, content := "text/plain", msg.Text
	if msg.HTML != "" {
		contentType, content = "text/html", msg.HTML
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return "", fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(body, content); err != nil {
		return "", err
	}
	return id, body.Close()
}

func writeAlternative(w io.Writer, h mail.Header, msg Message) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to create message writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return err
	}

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(pw, part.content); err != nil {
			return err
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return mw.Close()
}

func parseAddresses(addrs []string) ([]*mail.Address, error) {
	list := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		addr, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("%w: bad address %q", ErrInvalidMessage, a)
		}
		list = append(list, addr)
	}
	return list, nil
}
