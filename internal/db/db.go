// Package db persists mail users and per-message flags.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailgate/internal/conf"
	"mailgate/internal/models"
)

// ErrUserNotFound is returned when no user record exists for an address.
var ErrUserNotFound = errors.New("user not found")

// User is a mailbox owner.
type User struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// UserStore looks up and manages users. Emails are stored lowercased.
type UserStore interface {
	GetUser(ctx context.Context, email string) (*User, error)
	PutUser(ctx context.Context, user User) error
	DeleteUser(ctx context.Context, email string) error
	ListUsers(ctx context.Context) ([]User, error)
}

// FlagStore keeps the seen/flagged/answered state of messages, keyed by
// user and message id.
type FlagStore interface {
	// GetFlags returns the stored record and whether one existed.
	GetFlags(ctx context.Context, user, messageID string) (models.MessageFlags, bool, error)
	PutFlags(ctx context.Context, user, messageID string, flags models.MessageFlags) error
}

// Store is the combined backend used by the mail service.
type Store interface {
	UserStore
	FlagStore
	Close() error
}

// FlagKey is the record key of a message's flags.
func FlagKey(user, messageID string) string {
	return NormalizeEmail(user) + ":" + messageID
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// New opens the backend named in cfg.
func New(ctx context.Context, cfg conf.StoreConfig, awsCfg conf.AWSConfig) (Store, error) {
	switch cfg.Backend {
	case "dynamodb":
		return NewDynamoStore(ctx, cfg.UsersTable, cfg.FlagsTableName(), awsCfg)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
