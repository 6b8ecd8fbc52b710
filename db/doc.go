// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the service database and creates its schema.

# Connecting

Open accepts either driver supported by the service:

	conn, err := db.Open(db.TypePostgres, "postgres://...")
	conn, err := db.Open(db.TypeSQLite, "data/election.db")
	conn, err := db.Open(db.TypeSQLite, db.MemoryURL)

SQLite files are opened in WAL mode with a busy timeout and foreign keys on.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - record: every collection's records as JSON text, keyed by (collection, id)
  - app_user: accounts with bcrypt password hashes and a role
  - session: revocable sign-in sessions

# Relationships

	app_user 1──* session

Sessions are deleted with their user (ON DELETE CASCADE).

# Timestamps

All timestamps are BIGINT unix milliseconds in UTC:

	db.ToMillis(time.Now())
	db.FromMillis(ms)
*/
package db
