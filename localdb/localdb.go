// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package localdb is the client's own SQLite file: the session token and the
// local copy of the notification log live here.
package localdb

import (
	"database/sql"
	"fmt"

	"github.com/danielhkuo/quickly-elect/db"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = db.MemoryURL

// Open opens the client's local SQLite file and creates its tables.
func Open(path string) (*sql.DB, error) {
	conn, err := db.Open(db.TypeSQLite, path)
	if err != nil {
		return nil, err
	}
	if err := CreateSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// CreateSchema creates the local tables. Safe to call multiple times.
func CreateSchema(conn *sql.DB) error {
	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create local schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS credential (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    secure INTEGER NOT NULL DEFAULT 1,
    same_site TEXT NOT NULL DEFAULT 'strict'
);

CREATE TABLE IF NOT EXISTS notification (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    type TEXT NOT NULL,
    priority TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    unread INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_notification_created_at ON notification(created_at);
`
