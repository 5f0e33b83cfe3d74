package models

import (
	"errors"
	"net"
)

// ErrNotAuthenticated is returned when a mailbox is selected before login.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// ProtocolSession is the state of one IMAP connection. It is owned by the
// goroutine serving that connection and never shared.
type ProtocolSession struct {
	ID   string // connection id used in logs
	Conn net.Conn

	Authenticated bool
	User          string
	Token         string // credential presented to the mail API on every call

	SelectedMailbox string
	ReadOnly        bool // mailbox was opened with EXAMINE

	IdleTag     string // tag of a running IDLE, empty otherwise
	PendingAuth string // tag of an AUTHENTICATE waiting for its continuation line
	LoggedOut   bool
}

// NewProtocolSession returns an unauthenticated session for conn.
func NewProtocolSession(id string, conn net.Conn) *ProtocolSession {
	return &ProtocolSession{ID: id, Conn: conn}
}

// Login records a successful authentication.
func (s *ProtocolSession) Login(user, token string) {
	s.Authenticated = true
	s.User = user
	s.Token = token
}

// Select sets the selected mailbox. A mailbox can only be selected by an
// authenticated session.
func (s *ProtocolSession) Select(mailbox string, readOnly bool) error {
	if !s.Authenticated {
		return ErrNotAuthenticated
	}
	s.SelectedMailbox = mailbox
	s.ReadOnly = readOnly
	return nil
}

// ClearSelection leaves the authenticated state with no mailbox selected.
func (s *ProtocolSession) ClearSelection() {
	s.SelectedMailbox = ""
	s.ReadOnly = false
}

// HasSelection reports whether a mailbox is currently selected.
func (s *ProtocolSession) HasSelection() bool {
	return s.SelectedMailbox != ""
}

// Logout drops every credential and marks the session finished.
func (s *ProtocolSession) Logout() {
	s.Authenticated = false
	s.User = ""
	s.Token = ""
	s.ClearSelection()
	s.IdleTag = ""
	s.PendingAuth = ""
	s.LoggedOut = true
}
