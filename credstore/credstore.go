// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-elect/db"
)

// TokenLifetime is how long a saved session token stays valid on this client.
const TokenLifetime = 365 * 24 * time.Hour

// tokenName is the key the session token is stored under.
const tokenName = "sessionToken"

// Store persists the opaque session token. An empty token means unauthenticated.
type Store interface {
	Save(ctx context.Context, token string) error
	Get(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Token is a stored session token with cookie-style attributes.
// Secure restricts transmission to HTTPS; SameSite keeps it off cross-site requests.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Secure    bool
	SameSite  http.SameSite
}

func newToken(value string, now time.Time) Token {
	return Token{
		Value:     value,
		ExpiresAt: now.Add(TokenLifetime),
		Secure:    true,
		SameSite:  http.SameSiteStrictMode,
	}
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// MemoryStore keeps the token for the lifetime of the process.
type MemoryStore struct {
	mu    sync.Mutex
	token *Token
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := newToken(token, s.now())
	s.token = &t
	return nil
}

func (s *MemoryStore) Get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return "", nil
	}
	if s.token.Expired(s.now()) {
		s.token = nil
		return "", nil
	}
	return s.token.Value, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

// SQLiteStore persists the token in the client's local database so it
// survives restarts.
type SQLiteStore struct {
	conn *sql.DB
	now  func() time.Time
}

// NewSQLiteStore wraps a database opened with localdb.Open.
func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{conn: conn, now: time.Now}
}

func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	t := newToken(token, s.now())
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO credential (name, value, expires_at, secure, same_site)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			secure = excluded.secure,
			same_site = excluded.same_site
	`, tokenName, t.Value, db.ToMillis(t.ExpiresAt), t.Secure, "strict")
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Load returns the full stored token, or nil when there is none or it has expired.
func (s *SQLiteStore) Load(ctx context.Context) (*Token, error) {
	var (
		t         Token
		expiresAt int64
		sameSite  string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT value, expires_at, secure, same_site FROM credential WHERE name = $1
	`, tokenName).Scan(&t.Value, &expiresAt, &t.Secure, &sameSite)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	t.ExpiresAt = db.FromMillis(expiresAt)
	t.SameSite = http.SameSiteStrictMode
	if sameSite == "lax" {
		t.SameSite = http.SameSiteLaxMode
	}

	if t.Expired(s.now()) {
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &t, nil
}

func (s *SQLiteStore) Get(ctx context.Context) (string, error) {
	t, err := s.Load(ctx)
	if err != nil || t == nil {
		return "", err
	}
	return t.Value, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM credential WHERE name = $1`, tokenName); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
