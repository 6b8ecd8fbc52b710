// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-elect/auth"
	"github.com/danielhkuo/quickly-elect/cliparse"
	"github.com/danielhkuo/quickly-elect/db"
	"github.com/google/uuid"
)

// Credentials used by GetTestConfig
const (
	TestApplicationID = "test-app-id"
	TestMasterKey     = "test-master-key"
	TestSessionSecret = "test-session-secret"
)

// SetupTestDB opens a private in-memory SQLite database with the full schema.
// The database is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(db.TypeSQLite, db.MemoryURL)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:                 3318,
		DatabaseURL:          db.MemoryURL,
		DatabaseType:         db.TypeSQLite,
		ApplicationID:        TestApplicationID,
		MasterKey:            TestMasterKey,
		SessionSecret:        TestSessionSecret,
		ProtectedCollections: []string{"candidates", "faqs"},
	}
}

// SeedUser inserts an account directly and returns its id.
func SeedUser(t *testing.T, conn *sql.DB, email, password, role string) string {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	id := uuid.NewString()
	_, err = conn.Exec(`
		INSERT INTO app_user (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, strings.ToLower(email), "Test User", hash, role, db.ToMillis(time.Now()))
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return id
}

// AppHeaders identifies an anonymous client.
func AppHeaders() map[string]string {
	return map[string]string{"X-Application-Id": TestApplicationID}
}

// BearerHeaders identifies a signed-in client.
func BearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// MasterHeaders identifies a privileged client.
func MasterHeaders() map[string]string {
	return map[string]string{"X-Application-Id": TestApplicationID, "X-Master-Key": TestMasterKey}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body any, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
