// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package credstore persists the client's session token.
//
// A token is kept for TokenLifetime (365 days) with Secure and SameSite=Strict
// attributes. MemoryStore lasts as long as the process. SQLiteStore writes the
// credential table of a localdb database. Get returns "" for a missing or
// expired token.
package credstore
