package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailgate/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS message_flags (
	id TEXT PRIMARY KEY,
	seen BOOLEAN NOT NULL DEFAULT FALSE,
	flagged BOOLEAN NOT NULL DEFAULT FALSE,
	answered BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresStore keeps users and flags in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dbURL and creates the tables if needed.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) GetUser(ctx context.Context, email string) (*User, error) {
	u := User{}
	err := p.pool.QueryRow(ctx,
		"SELECT email, password_hash, created_at FROM users WHERE email = $1",
		NormalizeEmail(email),
	).Scan(&u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (p *PostgresStore) PutUser(ctx context.Context, user User) error {
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (email, password_hash, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		NormalizeEmail(user.Email), user.PasswordHash, created,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteUser(ctx context.Context, email string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM users WHERE email = $1", NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	return nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := p.pool.Query(ctx, "SELECT email, password_hash, created_at FROM users ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (p *PostgresStore) GetFlags(ctx context.Context, user, messageID string) (models.MessageFlags, bool, error) {
	var f models.MessageFlags
	err := p.pool.QueryRow(ctx,
		"SELECT seen, flagged, answered, updated_at FROM message_flags WHERE id = $1",
		FlagKey(user, messageID),
	).Scan(&f.Seen, &f.Flagged, &f.Answered, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.MessageFlags{}, false, nil
	}
	if err != nil {
		return models.MessageFlags{}, false, fmt.Errorf("failed to get flags: %w", err)
	}
	return f, true, nil
}

func (p *PostgresStore) PutFlags(ctx context.Context, user, messageID string, flags models.MessageFlags) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO message_flags (id, seen, flagged, answered, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			seen = EXCLUDED.seen,
			flagged = EXCLUDED.flagged,
			answered = EXCLUDED.answered,
			updated_at = EXCLUDED.updated_at`,
		FlagKey(user, messageID), flags.Seen, flags.Flagged, flags.Answered, flags.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flags: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
