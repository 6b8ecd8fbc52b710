// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

The environment is read first (main loads .env with godotenv before calling
ParseFlags), then flags override whatever the environment set.

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: sqlite path or PostgreSQL connection string (required)
  - DatabaseType: sqlite or postgres (default: sqlite)
  - ApplicationID: Value anonymous clients send as X-Application-Id (required)
  - MasterKey: Value privileged clients send as X-Master-Key (optional)
  - SessionSecret: HS256 secret for session tokens (required)
  - ProtectedCollections: Collections only admins may write (default: candidates,faqs)
  - SeedAdmin: email:password of an admin to create at startup

# CLI Flags

	-p               Server port
	-d               Database URL
	-t               Database type
	-app-id          Application id
	-master-key      Master key
	-session-secret  Session secret
	-protected       Protected collections
	-seed-admin      Seed admin

# Environment Variables

	PORT                   → -p
	DATABASE_URL           → -d
	DATABASE_TYPE          → -t
	APPLICATION_ID         → -app-id
	MASTER_KEY             → -master-key
	SESSION_SECRET         → -session-secret
	PROTECTED_COLLECTIONS  → -protected
	SEED_ADMIN             → -seed-admin

# Validation

ParseFlags returns an error if the port is out of range, the database URL,
application id or session secret is missing, the database type is unknown, or
the seed admin is not of the form email:password.

# Example

	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	// ...
	mux := router.NewRouter(conn, cfg)
*/
package cliparse
