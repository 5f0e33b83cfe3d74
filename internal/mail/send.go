package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mailgate/internal/metrics"
	"mailgate/internal/outbound"
)

// Recipients decodes from either a single JSON string or an array of them.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*r = nil
		} else {
			*r = Recipients{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings")
	}
	*r = many
	return nil
}

// SendParams describe a new outgoing message.
type SendParams struct {
	To      Recipients `json:"to"`
	Cc      Recipients `json:"cc,omitempty"`
	Bcc     Recipients `json:"bcc,omitempty"`
	Subject string     `json:"subject"`
	Text    string     `json:"text,omitempty"`
	HTML    string     `json:"html,omitempty"`
	ReplyTo string     `json:"replyTo,omitempty"`
}

// SendMessage sends from the user's address and returns the provider's
// message id. Invalid parameters wrap outbound.ErrInvalidMessage.
func (s *Service) SendMessage(ctx context.Context, user string, params SendParams) (string, error) {
	msg := outbound.Message{
		To:      params.To,
		Cc:      params.Cc,
		Bcc:     params.Bcc,
		Subject: params.Subject,
		Text:    params.Text,
		HTML:    params.HTML,
		ReplyTo: params.ReplyTo,
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	id, err := s.sender.Send(ctx, user, msg)
	metrics.ObserveBackend("send", err, start)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	s.logger.Info().Str("user", user).Int("recipients", len(msg.Recipients())).Str("message_id", id).Msg("message sent")
	return id, nil
}
