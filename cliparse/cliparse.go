// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                 int      `env:"PORT" envDefault:"3318"`
	DatabaseURL          string   `env:"DATABASE_URL"`
	DatabaseType         string   `env:"DATABASE_TYPE" envDefault:"sqlite"`
	ApplicationID        string   `env:"APPLICATION_ID"`
	MasterKey            string   `env:"MASTER_KEY"`
	SessionSecret        string   `env:"SESSION_SECRET"`
	ProtectedCollections []string `env:"PROTECTED_COLLECTIONS" envSeparator:"," envDefault:"candidates,faqs"`
	SeedAdmin            string   `env:"SEED_ADMIN"`
}

// IsProtected reports whether writes to collection need admin privilege.
func (c Config) IsProtected(collection string) bool {
	for _, p := range c.ProtectedCollections {
		if p == collection {
			return true
		}
	}
	return false
}

// SeedAdminCredentials splits SeedAdmin into email and password.
// ok is false when no seed admin was requested.
func (c Config) SeedAdminCredentials() (email, password string, ok bool) {
	if c.SeedAdmin == "" {
		return "", "", false
	}
	email, password, found := strings.Cut(c.SeedAdmin, ":")
	return email, password, found
}

// ParseFlags reads the environment, then lets flags override it.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("quickly-elect", flag.ContinueOnError)

	// Network config
	fs.IntVar(&cfg.Port, "p", cfg.Port, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", cfg.DatabaseURL, "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", cfg.DatabaseType, "Database type (sqlite or postgres)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.ApplicationID, "app-id", cfg.ApplicationID, "Application id clients must send")
	fs.StringVar(&cfg.MasterKey, "master-key", cfg.MasterKey, "Master key (prefer env)")
	fs.StringVar(&cfg.SessionSecret, "session-secret", cfg.SessionSecret, "Session signing secret (prefer env)")

	protected := strings.Join(cfg.ProtectedCollections, ",")
	fs.StringVar(&protected, "protected", protected, "Comma-separated collections that need admin to write")
	fs.StringVar(&cfg.SeedAdmin, "seed-admin", cfg.SeedAdmin, "Create an admin user (email:password) at startup")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.ProtectedCollections = splitList(protected)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return errors.New("database URL required (use -d or DATABASE_URL env)")
	}
	if c.DatabaseType != "sqlite" && c.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type %q", c.DatabaseType)
	}
	if c.ApplicationID == "" {
		return errors.New("APPLICATION_ID required")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET required")
	}
	if c.SeedAdmin != "" {
		if _, _, ok := c.SeedAdminCredentials(); !ok {
			return errors.New("seed admin must be email:password")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
