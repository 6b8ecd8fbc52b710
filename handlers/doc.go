// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the quickly-elect
collection service.

# Handler Types

Each handler is a struct with database and config dependencies:

  - SessionHandler: Accounts, sessions and request authentication
  - CollectionHandler: CRUD over named collections of JSON records

	sessionHandler := handlers.NewSessionHandler(db, cfg)
	collectionHandler := handlers.NewCollectionHandler(db, cfg)

# Authentication

SessionHandler.Authenticate wraps every route and stores a Principal in the
request context:

	Authorization: Bearer <token>  → signed-in user (token must name a live session)
	X-Application-Id: <app id>     → anonymous client
	X-Master-Key: <master key>     → privileged client

A bad token is always 401 "Invalid session token" so clients know to drop it.

# Sessions

	POST /signup   → SignUp (voter role, returns token)
	POST /login    → SignIn (400 "Invalid email or password" on mismatch)
	POST /logout   → SignOut (deletes the session row)
	GET  /users/me → Me

CreateUser is shared with startup seeding so admins can be created without
an HTTP round trip.

# Collections

Records are opaque JSON objects. The service adds id, createdAt and
updatedAt; createdAt is strictly increasing within one process.

	GET    /collections/{name}?where=&limit=&skip=&sort=&count=
	POST   /collections/{name}
	GET    /collections/{name}/{id}
	PUT    /collections/{name}/{id}
	DELETE /collections/{name}/{id}

where is a JSON object. Plain values match by equality; operator objects
support $gt, $gte, $lt, $lte, $ne, $in and $exists. Dotted field names reach
into nested objects:

	where={"category":"president","count":{"$gte":3}}

sort is a JSON array of field names, "-" prefixed for descending. limit
defaults to 100 and is capped at 1000; limit=0 with count=1 returns only the
total.

Writes to protected collections (cliparse.Config.ProtectedCollections) need
an admin user or the master key.
*/
package handlers
