package models

import (
	"testing"
	"time"
)

func TestProtocolSession_Initialization(t *testing.T) {
	// A new session starts unauthenticated with nothing selected
	s := NewProtocolSession("conn-1", nil)

	if s.Authenticated {
		t.Error("Expected Authenticated to be false by default")
	}
	if s.SelectedMailbox != "" {
		t.Error("Expected SelectedMailbox to be empty by default")
	}
	if s.User != "" || s.Token != "" {
		t.Error("Expected no credentials by default")
	}
	if s.ID != "conn-1" {
		t.Errorf("Expected ID 'conn-1', got '%s'", s.ID)
	}
}

func TestProtocolSession_SelectRequiresAuth(t *testing.T) {
	s := NewProtocolSession("c", nil)

	if err := s.Select(MailboxInbox, false); err != ErrNotAuthenticated {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if s.HasSelection() {
		t.Error("Selection must stay empty while unauthenticated")
	}

	s.Login("alice@example.com", "token")
	if err := s.Select(MailboxTrash, true); err != nil {
		t.Fatalf("Expected select to succeed, got %v", err)
	}
	if s.SelectedMailbox != MailboxTrash || !s.ReadOnly {
		t.Errorf("Expected read-only Trash, got %q readOnly=%v", s.SelectedMailbox, s.ReadOnly)
	}
}

func TestProtocolSession_Logout(t *testing.T) {
	s := NewProtocolSession("c", nil)
	s.Login("alice@example.com", "token")
	_ = s.Select(MailboxInbox, false)
	s.IdleTag = "A5"

	s.Logout()

	if s.Authenticated || s.User != "" || s.Token != "" {
		t.Error("Expected credentials to be cleared")
	}
	if s.HasSelection() || s.IdleTag != "" {
		t.Error("Expected selection and idle state to be cleared")
	}
	if !s.LoggedOut {
		t.Error("Expected LoggedOut to be set")
	}
}

func TestCanonicalMailbox(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"INBOX", "INBOX", true},
		{"inbox", "INBOX", true},
		{`"Sent"`, "Sent", true},
		{"drafts", "Drafts", true},
		{"TRASH", "Trash", true},
		{"Archive", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalMailbox(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CanonicalMailbox(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewMailboxInfo(t *testing.T) {
	msgs := []EmailMessage{
		{UID: 3, Flags: []string{FlagSeen}},
		{UID: 1},
		{UID: 2, Flags: []string{`\seen`, FlagFlagged}},
	}
	info := NewMailboxInfo(MailboxInbox, msgs)

	if info.Messages != 3 {
		t.Errorf("Expected 3 messages, got %d", info.Messages)
	}
	if info.Unseen != 1 {
		t.Errorf("Expected 1 unseen, got %d", info.Unseen)
	}
	if info.UIDNext != 4 {
		t.Errorf("Expected UIDNext 4, got %d", info.UIDNext)
	}
	if info.UIDValidity != UIDValidity {
		t.Errorf("Expected UIDValidity %d, got %d", UIDValidity, info.UIDValidity)
	}

	empty := NewMailboxInfo(MailboxSent, nil)
	if empty.UIDNext != 1 || empty.Messages != 0 {
		t.Errorf("Expected empty folder with UIDNext 1, got %+v", empty)
	}
}

func TestFlagUpdate_Apply(t *testing.T) {
	yes := true
	stored := MessageFlags{Seen: false, Flagged: true, Answered: true}

	got := FlagUpdate{Seen: &yes}.Apply(stored)
	if !got.Seen || !got.Flagged || !got.Answered {
		t.Errorf("Expected only Seen to change, got %+v", got)
	}

	full := FlagUpdateFromIMAP([]string{`\Seen`, `\Recent`, `\Draft`})
	got = full.Apply(stored)
	if !got.Seen || got.Flagged || got.Answered {
		t.Errorf("Expected full replacement from IMAP flags, got %+v", got)
	}
	if !(FlagUpdate{}).Empty() || full.Empty() {
		t.Error("Empty reported wrong value")
	}
}

func TestMessageFlags_IMAPFlags(t *testing.T) {
	f := MessageFlags{Seen: true, Answered: true}
	flags := f.IMAPFlags()
	if len(flags) != 2 || flags[0] != FlagSeen || flags[1] != FlagAnswered {
		t.Errorf("Unexpected flags %v", flags)
	}
	if got := (MessageFlags{}).IMAPFlags(); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", got)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

	if got := ParseDate("2024-03-05T10:30:00.000Z"); !got.Equal(want) {
		t.Errorf("RFC3339: got %v", got)
	}
	if got := ParseDate("Tue, 05 Mar 2024 10:30:00 +0000"); !got.Equal(want) {
		t.Errorf("RFC2822: got %v", got)
	}
	if got := ParseDate("garbage"); !got.IsZero() {
		t.Errorf("Expected zero time, got %v", got)
	}
}
