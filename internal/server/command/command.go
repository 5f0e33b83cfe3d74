// Package command defines the closed set of IMAP commands the proxy serves.
package command

import "strings"

// Command is one supported IMAP command. Dispatch switches over every value.
type Command int

const (
	Unknown Command = iota
	Capability
	Noop
	Login
	Authenticate
	Logout
	List
	Lsub
	Select
	Examine
	Status
	Fetch
	Store
	Search
	Close
	Unselect
	Expunge
	Idle
	Done
	Namespace
	UID
)

var names = [...]string{
	Unknown:      "UNKNOWN",
	Capability:   "CAPABILITY",
	Noop:         "NOOP",
	Login:        "LOGIN",
	Authenticate: "AUTHENTICATE",
	Logout:       "LOGOUT",
	List:         "LIST",
	Lsub:         "LSUB",
	Select:       "SELECT",
	Examine:      "EXAMINE",
	Status:       "STATUS",
	Fetch:        "FETCH",
	Store:        "STORE",
	Search:       "SEARCH",
	Close:        "CLOSE",
	Unselect:     "UNSELECT",
	Expunge:      "EXPUNGE",
	Idle:         "IDLE",
	Done:         "DONE",
	Namespace:    "NAMESPACE",
	UID:          "UID",
}

var byName = func() map[string]Command {
	m := make(map[string]Command, len(names))
	for c, name := range names {
		if Command(c) != Unknown {
			m[name] = Command(c)
		}
	}
	return m
}()

// Parse maps a command name, in any case, onto a Command. Unsupported
// names yield Unknown.
func Parse(name string) Command {
	return byName[strings.ToUpper(name)]
}

func (c Command) String() string {
	if c < 0 || int(c) >= len(names) {
		return names[Unknown]
	}
	return names[c]
}

// RequiresAuth reports whether the command is refused before login.
func (c Command) RequiresAuth() bool {
	switch c {
	case Unknown, Capability, Noop, Login, Authenticate, Logout:
		return false
	}
	return true
}

// RequiresSelection reports whether the command needs a selected mailbox.
// UID checks per sub-command since UID SEARCH falls back to INBOX.
func (c Command) RequiresSelection() bool {
	switch c {
	case Fetch, Store, Expunge, Close, Unselect:
		return true
	}
	return false
}
