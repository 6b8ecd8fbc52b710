// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the quickly-elect collection service.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg)

main wraps the mux with middleware.Recover and middleware.CORS.

# Endpoints

Health (no authentication):

	GET /health

Sessions:

	POST /signup    - Create a voter account, returns a session token
	POST /login     - Exchange email and password for a session token
	POST /logout    - Revoke the current session
	GET  /users/me  - The signed-in user

Collections of opaque JSON records:

	GET    /collections/{name}       - Find (where, limit, skip, sort, count)
	POST   /collections/{name}       - Create
	GET    /collections/{name}/{id}  - Get
	PUT    /collections/{name}/{id}  - Merge update
	DELETE /collections/{name}/{id}  - Delete

Every route except /health passes through SessionHandler.Authenticate, which
accepts either a bearer session token or the application id, and optionally
the master key.
*/
package router
