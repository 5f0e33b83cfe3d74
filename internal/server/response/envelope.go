// Package response renders FETCH data items from message summaries.
package response

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"mailgate/internal/models"
	"mailgate/internal/parser"
)

// BuildEnvelope builds an ENVELOPE from a message summary.
// Layout: (date subject from sender reply-to to cc bcc in-reply-to message-id).
// Sender and reply-to repeat the From address; cc, bcc and in-reply-to are
// not tracked.
func BuildEnvelope(msg models.EmailMessage) string {
	from := addressList(msg.From)
	return fmt.Sprintf("ENVELOPE (%s %s %s %s %s %s NIL NIL NIL %s)",
		QuoteOrNIL(msg.Date),
		QuoteOrNIL(msg.Subject),
		from,
		from,
		from,
		addressList(msg.To),
		QuoteOrNIL("<"+msg.ID+">"),
	)
}

// QuoteOrNIL quotes a string for an IMAP response or returns NIL if empty.
// Quoted strings are 7-bit, so text outside ASCII goes back into an
// RFC 2047 encoded-word.
func QuoteOrNIL(str string) string {
	if str == "" {
		return "NIL"
	}
	if !isASCII(str) {
		str = mime.QEncoding.Encode("utf-8", str)
	}
	str = strings.ReplaceAll(str, `\`, `\\`)
	str = strings.ReplaceAll(str, `"`, `\"`)
	str = strings.NewReplacer("\r", "", "\n", " ").Replace(str)
	return `"` + str + `"`
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// addressList renders a single-entry address list: ((NIL NIL "local" "domain")).
// The address inside <...> is used when present.
func addressList(header string) string {
	local, domain := parser.AddressParts(header)
	if local == "" && domain == "" {
		return "NIL"
	}
	return fmt.Sprintf("((NIL NIL %s %s))", QuoteOrNIL(local), QuoteOrNIL(domain))
}
