package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"mailgate/internal/client"
	"mailgate/internal/models"
)

// MockConn implements net.Conn for testing. Reads drain the queued input
// and then fail with net.ErrClosed.
type MockConn struct {
	mu          sync.Mutex
	readBuffer  []byte
	writeBuffer []byte
	readPos     int
	closed      bool
}

func NewMockConn() *MockConn {
	return &MockConn{}
}

func (m *MockConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readPos >= len(m.readBuffer) {
		return 0, net.ErrClosed
	}
	n := copy(b, m.readBuffer[m.readPos:])
	m.readPos += n
	return n, nil
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBuffer = append(m.writeBuffer, b...)
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConn) LocalAddr() net.Addr                { return nil }
func (m *MockConn) RemoteAddr() net.Addr               { return nil }
func (m *MockConn) SetDeadline(t time.Time) error      { return nil }
func (m *MockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *MockConn) GetWrittenData() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.writeBuffer)
}

func (m *MockConn) ClearWriteBuffer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBuffer = m.writeBuffer[:0]
}

func (m *MockConn) AddReadData(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBuffer = append(m.readBuffer, data...)
}

func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// FakeBackend is an in-memory MailBackend. Mailboxes hold summaries with
// UIDs already assigned; Raw holds message bytes by id.
type FakeBackend struct {
	mu        sync.Mutex
	Users     map[string]string // email -> password
	Mailboxes map[string][]models.EmailMessage
	Raw       map[string]string
	Flags     map[string]models.MessageFlags

	// Err, when set, is returned by every call except Authenticate.
	Err error
	// RawErr, when set, is returned by GetRawMessage.
	RawErr error
	// Delay is applied to every call, honouring the context.
	Delay time.Duration

	tokens map[string]string
	Calls  []string
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Users:     make(map[string]string),
		Mailboxes: make(map[string][]models.EmailMessage),
		Raw:       make(map[string]string),
		Flags:     make(map[string]models.MessageFlags),
		tokens:    make(map[string]string),
	}
}

// AddMessage appends msg to mailbox, assigning the next UID.
func (f *FakeBackend) AddMessage(mailbox string, msg models.EmailMessage, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.UID = uint32(len(f.Mailboxes[mailbox]) + 1)
	if msg.Size == 0 {
		msg.Size = int64(len(raw))
	}
	f.Mailboxes[mailbox] = append(f.Mailboxes[mailbox], msg)
	if raw != "" {
		f.Raw[msg.ID] = raw
	}
}

func (f *FakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeBackend) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeBackend) user(token string) (string, error) {
	user, ok := f.tokens[token]
	if !ok {
		return "", client.ErrUnauthorized
	}
	return user, nil
}

func (f *FakeBackend) Authenticate(ctx context.Context, email, password string) (string, error) {
	f.record("auth")
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.Users[email]; !ok || pw != password {
		return "", client.ErrUnauthorized
	}
	token := "token-" + strconv.Itoa(len(f.tokens)+1)
	f.tokens[token] = email
	return token, nil
}

func (f *FakeBackend) ListMessages(ctx context.Context, token, mailbox string) ([]models.EmailMessage, error) {
	f.record("list " + mailbox)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	user, err := f.user(token)
	if err != nil {
		return nil, err
	}

	// Newest first, as the mail API sorts.
	src := f.Mailboxes[mailbox]
	out := make([]models.EmailMessage, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		msg := src[i]
		msg.Flags = f.Flags[user+":"+msg.ID].IMAPFlags()
		out = append(out, msg)
	}
	return out, nil
}

func (f *FakeBackend) GetRawMessage(ctx context.Context, token, mailbox, id string) (string, error) {
	f.record("raw " + id)
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RawErr != nil {
		return "", f.RawErr
	}
	if _, err := f.user(token); err != nil {
		return "", err
	}
	raw, ok := f.Raw[id]
	if !ok {
		return "", client.ErrNotFound
	}
	return raw, nil
}

func (f *FakeBackend) SetFlags(ctx context.Context, token, id string, update models.FlagUpdate) (models.MessageFlags, error) {
	f.record("flags " + id)
	if err := f.wait(ctx); err != nil {
		return models.MessageFlags{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return models.MessageFlags{}, f.Err
	}
	user, err := f.user(token)
	if err != nil {
		return models.MessageFlags{}, err
	}
	key := user + ":" + id
	flags := update.Apply(f.Flags[key])
	flags.UpdatedAt = time.Now().UTC()
	f.Flags[key] = flags
	return flags, nil
}

// CallCount returns how many recorded calls start with prefix.
func (f *FakeBackend) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

var _ models.MailBackend = (*FakeBackend)(nil)
var _ models.MailBackend = (*client.Client)(nil)
