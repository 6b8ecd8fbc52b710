// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides password hashing, session tokens and master key checks.

# Passwords

Passwords are hashed with bcrypt at the default cost:

	hash, err := auth.HashPassword(password)
	err := auth.CheckPassword(hash, password) // ErrInvalidCredentials on mismatch

# Session Tokens

Session tokens are HS256 JWTs signed with the service's session secret:

	token, err := auth.IssueSessionToken(secret, sessionID, userID, time.Now())
	claims, err := auth.ParseSessionToken(secret, token, time.Now())

The token carries the session id (jti) and user id (sub) and expires after
SessionLifetime (365 days). It is only a pointer to a session row: signing out
deletes the row, after which the still-valid token is rejected. All parse
failures wrap ErrInvalidSession so clients see one "invalid session" message.

# Master Key

Privileged requests send X-Master-Key:

	err := auth.ValidateMasterKey(provided, cfg.MasterKey)

Comparison is constant time. An unset master key disables master access.
*/
package auth
