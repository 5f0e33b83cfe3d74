package db

import (
	"database/sql"
)

// SQLite table creation functions. The PostgreSQL store keeps its own copy of
// these statements in postgres.go since column types differ.

func createUsersTable(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

func createMessageFlagsTable(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS message_flags (
		id TEXT PRIMARY KEY,
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		answered BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

func initSQLiteSchema(db *sql.DB) error {
	if err := createUsersTable(db); err != nil {
		return err
	}
	return createMessageFlagsTable(db)
}
