// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types shared by the
collection service and its client.

# Records

Collections hold opaque JSON objects:

	type Record map[string]any

The service stamps "id", "createdAt" and "updatedAt". Nothing else about a
record's shape is known to the service or to the data access layer.

# Request Types

  - SignUpRequest: email, password, name
  - SignInRequest: email, password

# Response Types

  - SessionResponse: token, user
  - FindResponse: results, count (only when count=1 was requested)
  - ErrorResponse: error, message

# Domain Types

  - User: account returned by sign-in and GET /users/me
  - VoteControlState: election-wide voting switch and results visibility
  - Notification: entry in the notification log

# Constants

Vote-control status:

	StatusActive  = "ACTIVE"
	StatusStopped = "STOPPED"

Results visibility:

	VisibilityHidden = "HIDDEN"
	VisibilityPublic = "PUBLIC"

Roles:

	RoleVoter = "voter"
	RoleAdmin = "admin"

Collections used by the election: votes, candidates, faqs, vote_control,
notifications, audit_logs.
*/
package models
