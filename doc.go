// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the quickly-elect collection service.

quickly-elect runs a two-category election. The server stores every business
collection (candidates, votes, faqs, vote_control, notifications, audit_logs)
as opaque JSON records; clients poll it through a resilient client core.

# Starting the Server

The server reads .env, then the environment, then CLI flags:

	DATABASE_URL=elect.db APPLICATION_ID=app SESSION_SECRET=s go run .

Or with flags:

	go run . -p 3318 -d elect.db -app-id app -session-secret s -seed-admin admin@example.com:changeme

Set -t postgres (DATABASE_TYPE) to use PostgreSQL instead of SQLite.

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - APPLICATION_ID (-app-id): Id anonymous clients must send
  - SESSION_SECRET (-session-secret): Signing secret for session tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - MASTER_KEY (-master-key): Enables privileged X-Master-Key access
  - PROTECTED_COLLECTIONS (-protected): Admin-only writes (default: candidates,faqs)
  - SEED_ADMIN (-seed-admin): email:password of an admin to create

# Architecture

Server side:

  - handlers: Session and collection HTTP handlers
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, panic recovery, JSON helpers
  - auth: Password hashing, session tokens, master key checks
  - db: Connection and schema for SQLite and PostgreSQL
  - cliparse: Configuration parsing

Client core:

  - dispatch: HTTP requests with retry, backoff and per-attempt timeout
  - credstore: Session token storage
  - collections: CRUD client and sign-in
  - cache: TTL read cache in front of collections
  - refresh: One shared ticker for every page that wants fresh data
  - monitor: Vote count, status and deadline change detection
  - notify: Notification log mirrored to the server and local SQLite
  - votecontrol: Voting on/off, auto-stop and results visibility
  - events: In-process broadcast topics
  - localdb: The client's SQLite file
  - clientconfig: QE_* client settings
  - cmd/votewatch: Headless client that prints notifications

See package documentation for each component.
*/
package main
