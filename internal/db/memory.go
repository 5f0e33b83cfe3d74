package db

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mailgate/internal/models"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
	flags map[string]models.MessageFlags
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]User),
		flags: make(map[string]models.MessageFlags),
	}
}

func (m *MemoryStore) GetUser(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	return &u, nil
}

func (m *MemoryStore) PutUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	m.users[user.Email] = user
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	if _, ok := m.users[email]; !ok {
		return fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	delete(m.users, email)
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (m *MemoryStore) GetFlags(ctx context.Context, user, messageID string) (models.MessageFlags, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[FlagKey(user, messageID)]
	return f, ok, nil
}

func (m *MemoryStore) PutFlags(ctx context.Context, user, messageID string, flags models.MessageFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[FlagKey(user, messageID)] = flags
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
