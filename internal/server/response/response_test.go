package response

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"mailgate/internal/models"
)

func sampleMessage() models.EmailMessage {
	return models.EmailMessage{
		ID:      "abc123",
		UID:     7,
		From:    "Bob Sender <bob@example.com>",
		To:      "alice@example.com",
		Subject: `Say "hi"`,
		Date:    "Mon, 01 Jan 2024 10:00:00 +0000",
		Size:    161,
		Flags:   []string{models.FlagSeen},
		Preview: "hello",
	}
}

func TestQuoteOrNIL(t *testing.T) {
	if QuoteOrNIL("") != "NIL" {
		t.Errorf("Expected NIL for empty string")
	}
	got := QuoteOrNIL(`Hello "World" \o/`)
	if got != `"Hello \"World\" \\o/"` {
		t.Errorf("Unexpected quoted output: %s", got)
	}
}

func TestQuoteOrNIL_NonASCII(t *testing.T) {
	got := QuoteOrNIL("Caf\u00e9")
	if got != `"=?utf-8?q?Caf=C3=A9?="` {
		t.Errorf("Expected an encoded-word, got %s", got)
	}
	for i := 0; i < len(got); i++ {
		if got[i] >= 0x80 {
			t.Fatalf("Expected 7-bit output, got %q", got)
		}
	}
}

func TestBuildEnvelope_NonASCIISubject(t *testing.T) {
	msg := sampleMessage()
	msg.Subject = "R\u00e9sum\u00e9"
	got := BuildEnvelope(msg)
	if !strings.Contains(got, `"=?utf-8?q?R=C3=A9sum=C3=A9?="`) {
		t.Errorf("Expected encoded subject, got %s", got)
	}
}

func TestBuildEnvelope(t *testing.T) {
	got := BuildEnvelope(sampleMessage())
	want := `ENVELOPE ("Mon, 01 Jan 2024 10:00:00 +0000" "Say \"hi\"" ` +
		`((NIL NIL "bob" "example.com")) ((NIL NIL "bob" "example.com")) ((NIL NIL "bob" "example.com")) ` +
		`((NIL NIL "alice" "example.com")) NIL NIL NIL "<abc123>")`
	if got != want {
		t.Errorf("Unexpected envelope:\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildEnvelope_MissingAddresses(t *testing.T) {
	msg := sampleMessage()
	msg.From = ""
	msg.To = ""
	got := BuildEnvelope(msg)
	if !strings.Contains(got, `"Say \"hi\"" NIL NIL NIL NIL NIL NIL NIL "<abc123>"`) {
		t.Errorf("Expected NIL address lists, got %s", got)
	}
}

func TestBuildBodyStructure(t *testing.T) {
	tests := map[int64]string{
		0:   `BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "UTF-8") NIL NIL "7BIT" 0 0 NIL NIL NIL NIL)`,
		80:  `BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "UTF-8") NIL NIL "7BIT" 80 1 NIL NIL NIL NIL)`,
		161: `BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "UTF-8") NIL NIL "7BIT" 161 3 NIL NIL NIL NIL)`,
	}
	for size, want := range tests {
		if got := BuildBodyStructure(size); got != want {
			t.Errorf("size %d: expected %s, got %s", size, want, got)
		}
	}
}

func TestParseFetchItems(t *testing.T) {
	tests := []struct {
		arg  string
		want FetchItems
	}{
		{"(UID FLAGS)", FetchItems{UID: true, Flags: true}},
		{"FAST", FetchItems{Flags: true, InternalDate: true, Size: true}},
		{"ALL", FetchItems{Flags: true, InternalDate: true, Size: true, Envelope: true}},
		{"full", FetchItems{Flags: true, InternalDate: true, Size: true, Envelope: true, BodyStructure: true}},
		{"(BODY.PEEK[] UID)", FetchItems{UID: true, Body: LabelBody}},
		{"(BODY.PEEK[HEADER.FIELDS (FROM TO)])", FetchItems{Body: LabelBody}},
		{"RFC822", FetchItems{Body: LabelRFC822}},
		{"(RFC822.SIZE BODYSTRUCTURE)", FetchItems{Size: true, BodyStructure: true}},
	}
	for _, tt := range tests {
		got, err := ParseFetchItems(tt.arg)
		if err != nil {
			t.Errorf("ParseFetchItems(%q): unexpected error %v", tt.arg, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFetchItems(%q): expected %+v, got %+v", tt.arg, tt.want, got)
		}
	}
}

func TestParseFetchItems_Unknown(t *testing.T) {
	for _, arg := range []string{"(UID X-GM-LABELS)", "()", ""} {
		if _, err := ParseFetchItems(arg); !errors.Is(err, ErrUnknownItem) {
			t.Errorf("ParseFetchItems(%q): expected ErrUnknownItem, got %v", arg, err)
		}
	}
}

func TestFormatFetch_Order(t *testing.T) {
	items := FetchItems{UID: true, Flags: true, InternalDate: true, Size: true, Envelope: true, BodyStructure: true}
	got := FormatFetch(3, sampleMessage(), items, "")

	if !strings.HasPrefix(got, `* 3 FETCH (UID 7 FLAGS (\Seen) INTERNALDATE "01-Jan-2024 10:00:00 +0000" RFC822.SIZE 161 ENVELOPE (`) {
		t.Errorf("Unexpected item order: %s", got)
	}
	if !strings.HasSuffix(got, `"7BIT" 161 3 NIL NIL NIL NIL))`) {
		t.Errorf("Expected BODYSTRUCTURE last: %s", got)
	}
}

var literalPrefix = regexp.MustCompile(`\{(\d+)\}\r\n`)

func TestFormatFetch_LiteralLengthIsBytes(t *testing.T) {
	contents := []string{
		"",
		"Subject: plain\r\n\r\nbody",
		"Subject: caf\u00e9\r\n\r\n\u65e5\u672c\u8a9e \U0001F600\r\nline two",
	}

	for _, content := range contents {
		got := FormatFetch(1, sampleMessage(), FetchItems{UID: true, Body: LabelBody, BodyStructure: true}, content)

		loc := literalPrefix.FindStringSubmatchIndex(got)
		if loc == nil {
			t.Fatalf("No literal in %q", got)
		}
		n, _ := strconv.Atoi(got[loc[2]:loc[3]])
		if n != len(content) {
			t.Errorf("Declared %d bytes, content has %d", n, len(content))
		}
		body := got[loc[1] : loc[1]+n]
		if body != content {
			t.Errorf("Literal round trip mismatch: %q vs %q", body, content)
		}
		if !strings.HasPrefix(got[loc[1]+n:], " BODYSTRUCTURE (") {
			t.Errorf("Expected BODYSTRUCTURE right after the literal, got %q", got[loc[1]+n:])
		}
		if !strings.Contains(got[:loc[0]], "BODY[] ") {
			t.Errorf("Expected BODY[] label before the literal: %q", got[:loc[0]])
		}
	}
}

func TestFormatFetch_RFC822Label(t *testing.T) {
	got := FormatFetch(1, sampleMessage(), FetchItems{Body: LabelRFC822}, "x")
	if got != "* 1 FETCH (RFC822 {1}\r\nx)" {
		t.Errorf("Unexpected RFC822 response: %q", got)
	}
}

func TestFormatInternalDate(t *testing.T) {
	msg := sampleMessage()
	msg.Date = "2024-03-05T07:08:09.000Z"
	if got := FormatInternalDate(msg); got != "05-Mar-2024 07:08:09 +0000" {
		t.Errorf("Unexpected date: %s", got)
	}
	msg.Date = "garbage"
	if got := FormatInternalDate(msg); got != "01-Jan-1970 00:00:00 +0000" {
		t.Errorf("Expected epoch fallback, got %s", got)
	}
}

func TestMinimalMessage(t *testing.T) {
	got := MinimalMessage(sampleMessage())
	want := "From: Bob Sender <bob@example.com>\r\nTo: alice@example.com\r\nSubject: Say \"hi\"\r\n" +
		"Date: Mon, 01 Jan 2024 10:00:00 +0000\r\n\r\nhello"
	if got != want {
		t.Errorf("Unexpected minimal message:\n%q", got)
	}
}
