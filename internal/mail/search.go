package mail

import (
	"context"
	"strings"
	"time"

	"mailgate/internal/models"
)

// SearchQuery filters INBOX. Empty fields match everything. Since and Before
// accept RFC 3339, RFC 2822 or YYYY-MM-DD dates.
type SearchQuery struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Since   string `json:"since,omitempty"`
	Before  string `json:"before,omitempty"`
}

// SearchMessages lists INBOX with previews and filters it in memory.
func (s *Service) SearchMessages(ctx context.Context, user string, q SearchQuery) ([]models.EmailMessage, error) {
	msgs, err := s.ListMessages(ctx, user, models.MailboxInbox, ListOptions{IncludeBody: true})
	if err != nil {
		return nil, err
	}

	since := parseQueryDate(q.Since)
	before := parseQueryDate(q.Before)

	matches := []models.EmailMessage{}
	for _, m := range msgs {
		if !containsFold(m.From, q.From) ||
			!containsFold(m.To, q.To) ||
			!containsFold(m.Subject, q.Subject) ||
			!containsFold(m.Preview, q.Body) {
			continue
		}
		if t := m.Time(); !t.IsZero() {
			if !since.IsZero() && t.Before(since) {
				continue
			}
			if !before.IsZero() && t.After(before) {
				continue
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func containsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func parseQueryDate(s string) time.Time {
	if t := models.ParseDate(s); !t.IsZero() {
		return t
	}
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(s)); err == nil {
		return t
	}
	return time.Time{}
}
