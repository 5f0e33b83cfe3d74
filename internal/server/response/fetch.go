package response

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailgate/internal/models"
	"mailgate/internal/server/utils"
)

// ErrUnknownItem is returned for FETCH data items that are not supported.
var ErrUnknownItem = errors.New("unknown fetch item")

// InternalDateLayout is the INTERNALDATE format.
const InternalDateLayout = "02-Jan-2006 15:04:05 -0700"

// BodyLabel names the literal in the response the way it was requested.
type BodyLabel int

const (
	NoBody BodyLabel = iota
	LabelBody
	LabelRFC822
)

// FetchItems is the set of data items one FETCH asked for.
type FetchItems struct {
	UID           bool
	Flags         bool
	InternalDate  bool
	Size          bool
	Envelope      bool
	Body          BodyLabel
	BodyStructure bool
}

// ParseFetchItems parses "(UID FLAGS BODY.PEEK[])", a single item or one of
// the ALL, FAST and FULL macros. Any BODY[section] or BODY.PEEK[section]
// returns the whole message.
func ParseFetchItems(arg string) (FetchItems, error) {
	var items FetchItems
	tokens := utils.SplitArgs(utils.StripParens(arg))
	if len(tokens) == 0 {
		return items, fmt.Errorf("%w: empty item list", ErrUnknownItem)
	}

	for _, tok := range tokens {
		name := strings.ToUpper(tok)
		switch {
		case name == "ALL":
			items.Flags, items.InternalDate, items.Size, items.Envelope = true, true, true, true
		case name == "FAST":
			items.Flags, items.InternalDate, items.Size = true, true, true
		case name == "FULL":
			items.Flags, items.InternalDate, items.Size, items.Envelope = true, true, true, true
			items.BodyStructure = true
		case name == "UID":
			items.UID = true
		case name == "FLAGS":
			items.Flags = true
		case name == "INTERNALDATE":
			items.InternalDate = true
		case name == "RFC822.SIZE":
			items.Size = true
		case name == "ENVELOPE":
			items.Envelope = true
		case name == "BODYSTRUCTURE", name == "BODY":
			items.BodyStructure = true
		case name == "RFC822":
			items.Body = LabelRFC822
		case strings.HasPrefix(name, "BODY[") || strings.HasPrefix(name, "BODY.PEEK["):
			if items.Body == NoBody {
				items.Body = LabelBody
			}
		default:
			return items, fmt.Errorf("%w: %s", ErrUnknownItem, tok)
		}
	}
	return items, nil
}

// NeedsContent reports whether the full message bytes are required.
func (f FetchItems) NeedsContent() bool {
	return f.Body != NoBody
}

// FormatFetch renders one "* n FETCH (...)" response. Items appear in the
// order UID, FLAGS, INTERNALDATE, RFC822.SIZE, ENVELOPE, body, BODYSTRUCTURE.
// content is only used when a body was requested.
func FormatFetch(seq uint32, msg models.EmailMessage, items FetchItems, content string) string {
	parts := make([]string, 0, 7)

	if items.UID {
		parts = append(parts, "UID "+strconv.FormatUint(uint64(msg.UID), 10))
	}
	if items.Flags {
		parts = append(parts, "FLAGS ("+strings.Join(msg.Flags, " ")+")")
	}
	if items.InternalDate {
		parts = append(parts, "INTERNALDATE "+QuoteOrNIL(FormatInternalDate(msg)))
	}
	if items.Size {
		parts = append(parts, "RFC822.SIZE "+strconv.FormatInt(msg.Size, 10))
	}
	if items.Envelope {
		parts = append(parts, BuildEnvelope(msg))
	}
	switch items.Body {
	case LabelBody:
		parts = append(parts, "BODY[] "+Literal(content))
	case LabelRFC822:
		parts = append(parts, "RFC822 "+Literal(content))
	}
	if items.BodyStructure {
		parts = append(parts, BuildBodyStructure(msg.Size))
	}

	return fmt.Sprintf("* %d FETCH (%s)", seq, strings.Join(parts, " "))
}

// Literal encodes content as {n}CRLF followed by the content. n is the byte
// length of content.
func Literal(content string) string {
	return "{" + strconv.Itoa(len(content)) + "}\r\n" + content
}

// FormatInternalDate renders the message date, falling back to the Unix
// epoch when it cannot be parsed.
func FormatInternalDate(msg models.EmailMessage) string {
	t := msg.Time()
	if t.IsZero() {
		t = time.Unix(0, 0).UTC()
	}
	return t.Format(InternalDateLayout)
}

// MinimalMessage reconstructs a message from its summary when the stored
// bytes cannot be fetched.
func MinimalMessage(msg models.EmailMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", msg.Date)
	b.WriteString("\r\n")
	b.WriteString(msg.Preview)
	return b.String()
}
