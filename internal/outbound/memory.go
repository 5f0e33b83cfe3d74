package outbound

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SentMessage is a message recorded by MemorySender.
type SentMessage struct {
	ID      string
	From    string
	Message Message
}

// MemorySender records messages instead of sending them.
type MemorySender struct {
	mu   sync.Mutex
	sent []SentMessage
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (m *MemorySender) Send(ctx context.Context, from string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{ID: id, From: from, Message: msg})
	m.mu.Unlock()
	return id, nil
}

// Sent returns a copy of everything sent so far.
func (m *MemorySender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
