package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mailgate/internal/models"
)

// SQLiteStore keeps users and flags in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(file string) (*SQLiteStore, error) {
	if dir := filepath.Dir(file); dir != "." && file != ":memory:" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	// single connection so ":memory:" databases are shared
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, email string) (*User, error) {
	u := User{}
	var created sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT email, password_hash, created_at FROM users WHERE email = ?",
		NormalizeEmail(email),
	).Scan(&u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = created.Time
	return &u, nil
}

func (s *SQLiteStore) PutUser(ctx context.Context, user User) error {
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET password_hash = excluded.password_hash`,
		NormalizeEmail(user.Email), user.PasswordHash, created,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE email = ?", NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT email, password_hash, created_at FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var created sql.NullTime
		if err := rows.Scan(&u.Email, &u.PasswordHash, &created); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = created.Time
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) GetFlags(ctx context.Context, user, messageID string) (models.MessageFlags, bool, error) {
	var f models.MessageFlags
	var updated string
	err := s.db.QueryRowContext(ctx,
		"SELECT seen, flagged, answered, updated_at FROM message_flags WHERE id = ?",
		FlagKey(user, messageID),
	).Scan(&f.Seen, &f.Flagged, &f.Answered, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MessageFlags{}, false, nil
	}
	if err != nil {
		return models.MessageFlags{}, false, fmt.Errorf("failed to get flags: %w", err)
	}
	f.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return f, true, nil
}

func (s *SQLiteStore) PutFlags(ctx context.Context, user, messageID string, flags models.MessageFlags) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_flags (id, seen, flagged, answered, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seen = excluded.seen,
			flagged = excluded.flagged,
			answered = excluded.answered,
			updated_at = excluded.updated_at`,
		FlagKey(user, messageID), flags.Seen, flags.Flagged, flags.Answered,
		flags.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save flags: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
