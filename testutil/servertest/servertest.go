// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package servertest runs the collection service in-process for client tests.
package servertest

import (
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/quickly-elect/cliparse"
	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/credstore"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/middleware"
	"github.com/danielhkuo/quickly-elect/router"
	"github.com/danielhkuo/quickly-elect/testutil"
)

// Server is a running collection service backed by an in-memory database.
type Server struct {
	*httptest.Server
	DB     *sql.DB
	Config cliparse.Config
}

// Start serves the full handler chain until the test ends.
func Start(t *testing.T) *Server {
	t.Helper()

	conn := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	srv := httptest.NewServer(middleware.Recover(middleware.CORS(router.NewRouter(conn, cfg))))
	t.Cleanup(srv.Close)

	return &Server{Server: srv, DB: conn, Config: cfg}
}

// Dispatcher returns a dispatcher for the server with short backoff delays.
// A nil creds gets a fresh memory store.
func (s *Server) Dispatcher(creds credstore.Store, master bool) *dispatch.Dispatcher {
	if creds == nil {
		creds = credstore.NewMemoryStore()
	}
	cfg := dispatch.Config{
		BaseURL:       s.URL,
		ApplicationID: s.Config.ApplicationID,
		Retries:       1,
		Timeout:       5 * time.Second,
		BaseDelay:     time.Millisecond,
	}
	if master {
		cfg.MasterKey = s.Config.MasterKey
	}
	return dispatch.New(cfg, creds)
}

// Client returns a collection client using creds.
func (s *Server) Client(creds credstore.Store) *collections.Client {
	if creds == nil {
		creds = credstore.NewMemoryStore()
	}
	return collections.New(s.Dispatcher(creds, false), creds)
}

// AdminClient returns a client that sends the master key.
func (s *Server) AdminClient() *collections.Client {
	creds := credstore.NewMemoryStore()
	return collections.New(s.Dispatcher(creds, true), creds)
}
