package lmtp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"mailgate/internal/blobstorage"
)

// failingStorage refuses every write.
type failingStorage struct {
	blobstorage.BlobStorage
}

func (failingStorage) Store(ctx context.Context, key string, data []byte) error {
	return errors.New("bucket unavailable")
}

func newTestSession(storage blobstorage.BlobStorage) *Session {
	return &Session{
		backend: &Backend{storage: storage, hostname: "mx.example.com", logger: zerolog.Nop()},
		id:      "test-id",
		remote:  "127.0.0.1:5000",
	}
}

func TestSession_StoreFailureIsTemporary(t *testing.T) {
	s := newTestSession(failingStorage{BlobStorage: blobstorage.NewMemoryBlobStorage()})
	_ = s.Mail("bob@example.com", nil)
	_ = s.Rcpt("alice@example.com", nil)

	err := s.Data(strings.NewReader(testMessage))

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 451 {
		t.Errorf("Expected 451, got %v", err)
	}
}

func TestSession_Reset(t *testing.T) {
	s := newTestSession(blobstorage.NewMemoryBlobStorage())
	_ = s.Mail("bob@example.com", nil)
	_ = s.Rcpt("alice@example.com", nil)

	s.Reset()

	if s.mailFrom != "" || len(s.recipients) != 0 {
		t.Errorf("Expected empty transaction after Reset, got %q %v", s.mailFrom, s.recipients)
	}
}

func TestSession_TraceHeaders(t *testing.T) {
	s := newTestSession(blobstorage.NewMemoryBlobStorage())
	s.mailFrom = "bob@example.com"

	got := string(s.traceHeaders(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	want := "Return-Path: <bob@example.com>\r\n" +
		"Received: from 127.0.0.1:5000 by mx.example.com with LMTP id test-id; Tue, 02 Jan 2024 03:04:05 +0000\r\n"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestDomainAllowed(t *testing.T) {
	allowed := []string{"example.com", "example.org"}
	if !domainAllowed("EXAMPLE.com", allowed) {
		t.Error("Expected case-insensitive match")
	}
	if domainAllowed("example.net", allowed) {
		t.Error("Expected example.net to be refused")
	}
}
