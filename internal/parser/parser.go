// Package parser extracts headers and a short text preview from raw RFC 822
// messages. It performs no I/O.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"github.com/jhillyerd/enmime"
)

// DefaultPreviewLength is the preview size used when callers pass zero.
const DefaultPreviewLength = 200

// headerScanLimit bounds how much of a message without a header/body
// separator is treated as headers.
const headerScanLimit = 2000

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	wordDecoder       = &mime.WordDecoder{CharsetReader: charset.Reader}
)

// Headers maps lowercased header names to their unfolded, decoded value. When
// a header repeats, the first occurrence wins.
type Headers map[string]string

// Get returns the value of name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// SplitMessage returns the header block and body of raw. The body is empty
// when raw has no blank separator line.
func SplitMessage(raw []byte) (header, body []byte) {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	if len(raw) > headerScanLimit {
		return raw[:headerScanLimit], nil
	}
	return raw, nil
}

// ParseHeaders reads the header block of raw. Lines that are neither a
// "Name: value" field nor a continuation are skipped.
func ParseHeaders(raw []byte) (Headers, error) {
	block, _ := SplitMessage(raw)

	var cleaned bytes.Buffer
	haveField := false
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if haveField {
				cleaned.WriteString(line + "\r\n")
			}
			continue
		}
		if colon := strings.IndexByte(line, ':'); colon > 0 && !strings.ContainsAny(line[:colon], " \t") {
			cleaned.WriteString(line + "\r\n")
			haveField = true
			continue
		}
		haveField = false
	}
	cleaned.WriteString("\r\n")

	th, err := textproto.ReadHeader(bufio.NewReader(&cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	headers := make(Headers)
	fields := th.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if _, seen := headers[key]; seen {
			continue
		}
		headers[key] = decodeHeader(th.Get(fields.Key()))
	}
	return headers, nil
}

func decodeHeader(v string) string {
	v = strings.TrimSpace(whitespacePattern.ReplaceAllString(v, " "))
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// Body returns everything after the header block.
func Body(raw []byte) string {
	_, body := SplitMessage(raw)
	return string(body)
}

// Preview returns up to maxLen characters of readable body text with markup
// removed and whitespace collapsed. MIME messages are decoded first; content
// enmime cannot parse falls back to the raw body.
func Preview(raw []byte, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPreviewLength
	}

	text := ""
	if env, err := enmime.ReadEnvelope(bytes.NewReader(raw)); err == nil {
		text = env.Text
		if strings.TrimSpace(text) == "" {
			text = env.HTML
		}
	}
	if strings.TrimSpace(text) == "" {
		text = Body(raw)
	}

	return truncateRunes(CollapseText(text), maxLen)
}

// CollapseText strips HTML tags and normalises whitespace.
func CollapseText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// AddressParts returns the local part and domain of an address header value.
// The address inside angle brackets is used when present.
func AddressParts(addr string) (local, domain string) {
	addr = strings.TrimSpace(addr)
	if start := strings.LastIndex(addr, "<"); start >= 0 {
		if end := strings.Index(addr[start:], ">"); end > 0 {
			addr = addr[start+1 : start+end]
		}
	}
	addr = strings.Trim(addr, `" `)
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[:at], addr[at+1:]
	}
	return addr, ""
}

// AddressedTo reports whether a To header value names the user, by full
// address or by local part, case-insensitively.
func AddressedTo(to, user string) bool {
	to = strings.ToLower(to)
	user = strings.ToLower(strings.TrimSpace(user))
	if user == "" {
		return false
	}
	if strings.Contains(to, user) {
		return true
	}
	local, _, _ := strings.Cut(user, "@")
	return local != "" && strings.Contains(to, local)
}
