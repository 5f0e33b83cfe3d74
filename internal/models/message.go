package models

import (
	"net/mail"
	"strings"
	"time"
)

// Mailbox names. These four folders are the only ones that exist.
const (
	MailboxInbox  = "INBOX"
	MailboxSent   = "Sent"
	MailboxDrafts = "Drafts"
	MailboxTrash  = "Trash"
)

// UIDValidity is constant: UIDs are derived from listing order and there is
// no epoch to advance.
const UIDValidity uint32 = 1

// Mailboxes lists the folders in display order.
var Mailboxes = []string{MailboxInbox, MailboxSent, MailboxDrafts, MailboxTrash}

// CanonicalMailbox maps a client supplied name onto one of the four folders,
// case-insensitively.
func CanonicalMailbox(name string) (string, bool) {
	name = strings.Trim(name, `"`)
	for _, m := range Mailboxes {
		if strings.EqualFold(name, m) {
			return m, true
		}
	}
	return "", false
}

// IMAP system flags persisted in the flag store.
const (
	FlagSeen     = `\Seen`
	FlagFlagged  = `\Flagged`
	FlagAnswered = `\Answered`
)

// EmailMessage is a message summary derived from one stored object.
type EmailMessage struct {
	ID         string   `json:"id"`
	UID        uint32   `json:"uid"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	Date       string   `json:"date"`
	Size       int64    `json:"size"`
	Flags      []string `json:"flags"`
	StorageKey string   `json:"storageKey"`
	Preview    string   `json:"preview,omitempty"`
}

// HasFlag reports whether flag is set, ignoring case.
func (m EmailMessage) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Time parses Date as RFC 3339 or RFC 2822. The zero time is returned when
// neither matches.
func (m EmailMessage) Time() time.Time {
	return ParseDate(m.Date)
}

// ParseDate accepts the date forms stored in message summaries.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	return time.Time{}
}

// MailboxInfo summarises one folder.
type MailboxInfo struct {
	Name        string `json:"name"`
	Messages    int    `json:"messages"`
	Unseen      int    `json:"unseen"`
	UIDNext     uint32 `json:"uidNext"`
	UIDValidity uint32 `json:"uidValidity"`
}

// NewMailboxInfo computes counts for a full listing of one folder.
func NewMailboxInfo(name string, msgs []EmailMessage) MailboxInfo {
	info := MailboxInfo{Name: name, Messages: len(msgs), UIDNext: 1, UIDValidity: UIDValidity}
	for _, m := range msgs {
		if !m.HasFlag(FlagSeen) {
			info.Unseen++
		}
		if m.UID >= info.UIDNext {
			info.UIDNext = m.UID + 1
		}
	}
	return info
}

// MessageFlags is the persisted per-user state of one message.
type MessageFlags struct {
	Seen      bool      `json:"seen"`
	Flagged   bool      `json:"flagged"`
	Answered  bool      `json:"answered"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IMAPFlags renders the record as IMAP system flags.
func (f MessageFlags) IMAPFlags() []string {
	flags := []string{}
	if f.Seen {
		flags = append(flags, FlagSeen)
	}
	if f.Flagged {
		flags = append(flags, FlagFlagged)
	}
	if f.Answered {
		flags = append(flags, FlagAnswered)
	}
	return flags
}

// FlagUpdate is a partial change to MessageFlags. Nil fields are left alone.
type FlagUpdate struct {
	Seen     *bool `json:"seen,omitempty"`
	Flagged  *bool `json:"flagged,omitempty"`
	Answered *bool `json:"answered,omitempty"`
}

// Apply merges the update into f.
func (u FlagUpdate) Apply(f MessageFlags) MessageFlags {
	if u.Seen != nil {
		f.Seen = *u.Seen
	}
	if u.Flagged != nil {
		f.Flagged = *u.Flagged
	}
	if u.Answered != nil {
		f.Answered = *u.Answered
	}
	return f
}

// Empty reports whether the update changes nothing.
func (u FlagUpdate) Empty() bool {
	return u.Seen == nil && u.Flagged == nil && u.Answered == nil
}

// FlagUpdateFromIMAP builds a full update from a complete IMAP flag list.
// Flags the store does not persist are ignored.
func FlagUpdateFromIMAP(flags []string) FlagUpdate {
	var seen, flagged, answered bool
	for _, f := range flags {
		switch {
		case strings.EqualFold(f, FlagSeen):
			seen = true
		case strings.EqualFold(f, FlagFlagged):
			flagged = true
		case strings.EqualFold(f, FlagAnswered):
			answered = true
		}
	}
	return FlagUpdate{Seen: &seen, Flagged: &flagged, Answered: &answered}
}
