// Package mail implements the mailbox operations behind the HTTP API:
// listing and reading stored messages, moving them to Trash, flag state,
// search and sending.
package mail

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailgate/internal/blobstorage"
	"mailgate/internal/db"
	"mailgate/internal/models"
	"mailgate/internal/outbound"
	"mailgate/internal/parser"
)

var (
	// ErrStorageUnavailable means the object store or flag store could not
	// answer. It is distinct from an empty result.
	ErrStorageUnavailable = errors.New("mail storage unavailable")
	ErrMessageNotFound    = errors.New("message not found")
	ErrMailboxNotFound    = errors.New("mailbox not found")
)

// Object keys containing this marker are SES setup notifications, not mail.
const sesSetupMarker = "AMAZON_SES_SETUP_NOTIFICATION"

const defaultReadConcurrency = 16

// Options tune a Service. Zero values select defaults.
type Options struct {
	ReadConcurrency int
	PreviewLength   int
	Logger          zerolog.Logger
}

// Service implements the mail API operations over its three backends.
type Service struct {
	storage blobstorage.BlobStorage
	store   db.Store
	sender  outbound.Sender
	logger  zerolog.Logger

	readConcurrency int
	previewLength   int
	now             func() time.Time
}

func NewService(storage blobstorage.BlobStorage, store db.Store, sender outbound.Sender, opts Options) *Service {
	s := &Service{
		storage:         storage,
		store:           store,
		sender:          sender,
		logger:          opts.Logger,
		readConcurrency: opts.ReadConcurrency,
		previewLength:   opts.PreviewLength,
		now:             time.Now,
	}
	if s.readConcurrency <= 0 {
		s.readConcurrency = defaultReadConcurrency
	}
	if s.previewLength <= 0 {
		s.previewLength = parser.DefaultPreviewLength
	}
	return s
}

// MailboxPrefix returns the object key prefix holding a folder's messages.
func MailboxPrefix(mailbox string) string {
	if mailbox == models.MailboxInbox {
		return "incoming/"
	}
	return strings.ToLower(mailbox) + "/"
}

// TrashKey is the deterministic destination of a message moved to Trash.
func TrashKey(messageID string) string {
	return MailboxPrefix(models.MailboxTrash) + messageID
}

func resolveMailbox(name string) (string, error) {
	if name == "" {
		return models.MailboxInbox, nil
	}
	mailbox, ok := models.CanonicalMailbox(name)
	if !ok {
		return "", ErrMailboxNotFound
	}
	return mailbox, nil
}
