// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs one "request completed" line per request with method, path, status,
client and duration_ms. Responses with status 500 and above log at error level.

# Panic Recovery

	server := http.Server{
		Handler: middleware.Recover(middleware.CORS(mux)),
	}

A panicking handler is logged and answered with 500 "Internal error".

# CORS Middleware

Allows methods GET, POST, PUT, DELETE, OPTIONS with headers Content-Type,
Authorization, X-Application-Id and X-Master-Key. Preflight requests get 204.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

Error bodies look like {"error": "Bad Request", "message": "..."}; clients
show the message.

Parse JSON request bodies (numbers decode as json.Number, bodies over
MaxBodyBytes are rejected, an empty body is ErrEmptyBody):

	var req models.SignInRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Request Helpers

	ip := middleware.GetClientIP(r)          // X-Forwarded-For, X-Real-IP, RemoteAddr
	token, ok := middleware.BearerToken(r)   // Authorization: Bearer <token>
*/
package middleware
