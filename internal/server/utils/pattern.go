package utils

import (
	"strings"

	"mailgate/internal/models"
)

// Delimiter is the hierarchy delimiter reported by LIST.
const Delimiter = "/"

// FilterMailboxes returns the mailboxes matching a LIST reference and
// pattern. "*" matches anything, "%" anything except the delimiter. INBOX
// matches case-insensitively.
func FilterMailboxes(mailboxes []string, reference, pattern string) []string {
	canonical := BuildCanonicalPattern(reference, pattern)

	var matches []string
	for _, mailbox := range mailboxes {
		p := canonical
		if mailbox == models.MailboxInbox && len(p) >= len(mailbox) && strings.EqualFold(p[:len(mailbox)], mailbox) {
			p = mailbox + p[len(mailbox):]
		}
		if MatchesPattern(mailbox, p) {
			matches = append(matches, mailbox)
		}
	}
	return matches
}

// BuildCanonicalPattern joins a reference and a pattern. A pattern starting
// with the delimiter is absolute.
func BuildCanonicalPattern(reference, pattern string) string {
	if reference == "" || strings.HasPrefix(pattern, Delimiter) {
		return pattern
	}
	if strings.HasSuffix(reference, Delimiter) {
		return reference + pattern
	}
	return reference + Delimiter + pattern
}

// MatchesPattern matches name against a pattern with LIST wildcards.
func MatchesPattern(name, pattern string) bool {
	for len(pattern) > 0 {
		switch c := pattern[0]; c {
		case '*', '%':
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if MatchesPattern(name[i:], rest) {
					return true
				}
				if i < len(name) && c == '%' && name[i] == Delimiter[0] {
					return false
				}
			}
			return false
		default:
			if name == "" || name[0] != c {
				return false
			}
			name, pattern = name[1:], pattern[1:]
		}
	}
	return name == ""
}
