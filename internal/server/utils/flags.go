package utils

import (
	"strings"

	"github.com/emersion/go-imap"

	"mailgate/internal/models"
)

// SelectFlags is announced in the FLAGS response to SELECT and EXAMINE.
var SelectFlags = []string{imap.AnsweredFlag, imap.FlaggedFlag, imap.DeletedFlag, imap.SeenFlag, imap.DraftFlag}

// PermanentFlags are the flags the flag store keeps between sessions.
var PermanentFlags = []string{imap.AnsweredFlag, imap.FlaggedFlag, imap.SeenFlag}

// StoreOperation is the data item of a STORE command.
type StoreOperation int

const (
	StoreReplace StoreOperation = iota // FLAGS
	StoreAdd                           // +FLAGS
	StoreRemove                        // -FLAGS
)

// ParseStoreItem parses FLAGS, +FLAGS or -FLAGS with an optional .SILENT
// suffix.
func ParseStoreItem(item string) (op StoreOperation, silent bool, ok bool) {
	item = strings.ToUpper(item)
	if s, found := strings.CutSuffix(item, ".SILENT"); found {
		item, silent = s, true
	}
	switch item {
	case "FLAGS":
		return StoreReplace, silent, true
	case "+FLAGS":
		return StoreAdd, silent, true
	case "-FLAGS":
		return StoreRemove, silent, true
	}
	return 0, false, false
}

// ParseFlagList parses "(\Seen \Flagged)" or a bare flag into canonical flag
// names.
func ParseFlagList(s string) []string {
	fields := strings.Fields(StripParens(s))
	flags := make([]string, 0, len(fields))
	for _, f := range fields {
		flags = append(flags, imap.CanonicalFlag(f))
	}
	return flags
}

// CalculateFlagUpdate turns a STORE into a partial update of the persisted
// flags. Adding or removing only touches the named flags; replacing sets all
// of them. \Recent is server managed and flags the store does not keep are
// dropped.
func CalculateFlagUpdate(op StoreOperation, flags []string) models.FlagUpdate {
	if op == StoreReplace {
		return models.FlagUpdateFromIMAP(flags)
	}

	value := op == StoreAdd
	var update models.FlagUpdate
	for _, f := range flags {
		v := value
		switch f {
		case imap.SeenFlag:
			update.Seen = &v
		case imap.FlaggedFlag:
			update.Flagged = &v
		case imap.AnsweredFlag:
			update.Answered = &v
		}
	}
	return update
}

// GetMailboxAttributes returns the LIST attributes of one of the folders.
func GetMailboxAttributes(mailbox string) string {
	switch mailbox {
	case models.MailboxSent:
		return `\HasNoChildren \Sent`
	case models.MailboxDrafts:
		return `\HasNoChildren \Drafts`
	case models.MailboxTrash:
		return `\HasNoChildren \Trash`
	default:
		return `\HasNoChildren`
	}
}
