// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/danielhkuo/quickly-elect/cliparse"
	"github.com/danielhkuo/quickly-elect/handlers"
	"github.com/danielhkuo/quickly-elect/middleware"
)

func NewRouter(db *sql.DB, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(db, cfg)
	collectionHandler := handlers.NewCollectionHandler(db, cfg)

	// route wraps an authenticated handler with logging
	route := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(sessionHandler.Authenticate(h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Sessions
	mux.HandleFunc("POST /signup", route(sessionHandler.SignUp))
	mux.HandleFunc("POST /login", route(sessionHandler.SignIn))
	mux.HandleFunc("POST /logout", route(sessionHandler.SignOut))
	mux.HandleFunc("GET /users/me", route(sessionHandler.Me))

	// Collections
	mux.HandleFunc("GET /collections/{name}", route(collectionHandler.Find))
	mux.HandleFunc("POST /collections/{name}", route(collectionHandler.Create))
	mux.HandleFunc("GET /collections/{name}/{id}", route(collectionHandler.Get))
	mux.HandleFunc("PUT /collections/{name}/{id}", route(collectionHandler.Update))
	mux.HandleFunc("DELETE /collections/{name}/{id}", route(collectionHandler.Delete))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("quickly-elect API v1"))
	})

	return mux
}
