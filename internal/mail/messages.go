package mail

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mailgate/internal/blobstorage"
	"mailgate/internal/metrics"
	"mailgate/internal/models"
	"mailgate/internal/parser"
)

// ListOptions paginate a listing. Pagination applies only when Limit or
// Offset is set.
type ListOptions struct {
	Limit       int
	Offset      int
	IncludeBody bool
}

// Message formats accepted by GetMessage.
const (
	FormatFull    = "full"
	FormatHeaders = "headers"
	FormatRaw     = "raw"

	// ContentTypeRFC822 selects the unwrapped message bytes for FormatRaw.
	ContentTypeRFC822 = "message/rfc822"
)

// GetOptions select the folder and representation of one message.
type GetOptions struct {
	Mailbox string
	Format  string
}

// MessageDetail is the result of GetMessage. Headers and Content are filled
// according to the requested format.
type MessageDetail struct {
	Message models.EmailMessage `json:"message"`
	Headers parser.Headers      `json:"headers,omitempty"`
	Content string              `json:"content,omitempty"`
}

// DeleteOptions select the folder and whether to bypass Trash.
type DeleteOptions struct {
	Mailbox   string
	Permanent bool
}

// listing is one stored object read and parsed for a user.
type listing struct {
	msg     models.EmailMessage
	matched bool
}

// ListMessages returns the user's messages in a folder, newest first. UIDs
// follow object enumeration order. Objects that cannot be read are skipped;
// a failure to enumerate the folder is reported as ErrStorageUnavailable.
func (s *Service) ListMessages(ctx context.Context, user, mailbox string, opts ListOptions) ([]models.EmailMessage, error) {
	mailbox, err := resolveMailbox(mailbox)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	objects, err := s.storage.List(ctx, MailboxPrefix(mailbox))
	metrics.ObserveBackend("list_objects", err, start)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrStorageUnavailable, mailbox, err)
	}

	candidates := make([]blobstorage.Object, 0, len(objects))
	for _, obj := range objects {
		if strings.Contains(obj.Key, sesSetupMarker) || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		candidates = append(candidates, obj)
	}

	results := make([]listing, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readConcurrency)
	for i, obj := range candidates {
		g.Go(func() error {
			msg, ok := s.readSummary(gctx, user, obj, opts.IncludeBody)
			results[i] = listing{msg: msg, matched: ok}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	var messages []models.EmailMessage
	uid := uint32(1)
	for _, r := range results {
		if !r.matched {
			continue
		}
		r.msg.UID = uid
		uid++
		messages = append(messages, r.msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Time().After(messages[j].Time())
	})

	if opts.Offset > 0 || opts.Limit > 0 {
		messages = paginate(messages, opts.Offset, opts.Limit)
	}
	if messages == nil {
		messages = []models.EmailMessage{}
	}
	return messages, nil
}

// readSummary reads one object and builds its summary. It reports false when
// the object is unreadable or not addressed to user.
func (s *Service) readSummary(ctx context.Context, user string, obj blobstorage.Object, includeBody bool) (models.EmailMessage, bool) {
	start := time.Now()
	raw, err := s.storage.Retrieve(ctx, obj.Key)
	metrics.ObserveBackend("get_object", err, start)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", obj.Key).Msg("skipping unreadable object")
		return models.EmailMessage{}, false
	}

	headers, err := parser.ParseHeaders(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", obj.Key).Msg("skipping object with unparseable headers")
		return models.EmailMessage{}, false
	}
	if !parser.AddressedTo(headers.Get("To"), user) {
		return models.EmailMessage{}, false
	}

	msg := models.EmailMessage{
		ID:         path.Base(obj.Key),
		From:       headers.Get("From"),
		To:         headers.Get("To"),
		Subject:    headers.Get("Subject"),
		Date:       headers.Get("Date"),
		Size:       obj.Size,
		StorageKey: obj.Key,
	}
	if msg.Subject == "" {
		msg.Subject = "(No Subject)"
	}
	if msg.Date == "" {
		msg.Date = obj.LastModified.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if msg.Size == 0 {
		msg.Size = int64(len(raw))
	}
	if includeBody {
		msg.Preview = parser.Preview(raw, s.previewLength)
	}

	flags, err := s.loadFlags(ctx, user, msg.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("flag lookup failed")
	}
	msg.Flags = flags.IMAPFlags()
	return msg, true
}

func paginate(msgs []models.EmailMessage, offset, limit int) []models.EmailMessage {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return []models.EmailMessage{}
	}
	end := len(msgs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return msgs[offset:end]
}

// findMessage locates a message by id or decimal UID in a fresh listing.
func (s *Service) findMessage(ctx context.Context, user, mailbox, id string) (models.EmailMessage, error) {
	msgs, err := s.ListMessages(ctx, user, mailbox, ListOptions{})
	if err != nil {
		return models.EmailMessage{}, err
	}
	for _, m := range msgs {
		if m.ID == id || strconv.FormatUint(uint64(m.UID), 10) == id {
			return m, nil
		}
	}
	return models.EmailMessage{}, fmt.Errorf("%s: %w", id, ErrMessageNotFound)
}

func (s *Service) retrieve(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	raw, err := s.storage.Retrieve(ctx, key)
	metrics.ObserveBackend("get_object", err, start)
	if errors.Is(err, blobstorage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return raw, nil
}

// GetMessage returns one message in the requested format. The mailbox
// defaults to INBOX and the format to full.
func (s *Service) GetMessage(ctx context.Context, user, id string, opts GetOptions) (*MessageDetail, error) {
	mailbox, err := resolveMailbox(opts.Mailbox)
	if err != nil {
		return nil, err
	}
	msg, err := s.findMessage(ctx, user, mailbox, id)
	if err != nil {
		return nil, err
	}

	raw, err := s.retrieve(ctx, msg.StorageKey)
	if err != nil {
		return nil, err
	}
	headers, err := parser.ParseHeaders(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	switch opts.Format {
	case FormatHeaders:
		return &MessageDetail{Message: msg, Headers: headers}, nil
	case FormatRaw:
		return &MessageDetail{Message: msg, Content: string(raw)}, nil
	default:
		body := parser.Body(raw)
		msg.Preview = body
		return &MessageDetail{Message: msg, Headers: headers, Content: body}, nil
	}
}

// DeleteMessage removes a message. Unless Permanent is set, or the message
// is already in Trash, it is first copied to Trash. When removing the
// original fails the Trash copy is deleted again so the message exists
// exactly once.
func (s *Service) DeleteMessage(ctx context.Context, user, id string, opts DeleteOptions) error {
	mailbox, err := resolveMailbox(opts.Mailbox)
	if err != nil {
		return err
	}
	msg, err := s.findMessage(ctx, user, mailbox, id)
	if err != nil {
		return err
	}

	if opts.Permanent || mailbox == models.MailboxTrash {
		return s.deleteObject(ctx, msg.StorageKey)
	}

	trashKey := TrashKey(msg.ID)
	start := time.Now()
	err = s.storage.Copy(ctx, msg.StorageKey, trashKey)
	metrics.ObserveBackend("copy_object", err, start)
	if err != nil {
		return fmt.Errorf("%w: copying %s to trash: %w", ErrStorageUnavailable, msg.StorageKey, err)
	}

	if err := s.deleteObject(ctx, msg.StorageKey); err != nil {
		if cerr := s.deleteObject(context.WithoutCancel(ctx), trashKey); cerr != nil {
			s.logger.Error().Err(cerr).Str("key", trashKey).Msg("failed to remove trash copy after failed move")
		}
		return err
	}

	s.logger.Debug().Str("user", user).Str("from", msg.StorageKey).Str("to", trashKey).Msg("moved message to trash")
	return nil
}

func (s *Service) deleteObject(ctx context.Context, key string) error {
	start := time.Now()
	err := s.storage.Delete(ctx, key)
	metrics.ObserveBackend("delete_object", err, start)
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %w", ErrStorageUnavailable, key, err)
	}
	return nil
}

// ListMailboxes returns the four folders with their counts. Folders are
// listed concurrently.
func (s *Service) ListMailboxes(ctx context.Context, user string) ([]models.MailboxInfo, error) {
	infos := make([]models.MailboxInfo, len(models.Mailboxes))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range models.Mailboxes {
		g.Go(func() error {
			msgs, err := s.ListMessages(gctx, user, name, ListOptions{})
			if err != nil {
				return err
			}
			infos[i] = models.NewMailboxInfo(name, msgs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}
