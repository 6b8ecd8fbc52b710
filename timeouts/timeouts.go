// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package timeouts defines the timeout constants shared by the service and its client.
package timeouts

import "time"

// Dial caps the wait for a TCP connection to the collection service.
const Dial = 5 * time.Second

// TLSHandshake caps the TLS handshake with the collection service.
const TLSHandshake = 5 * time.Second

// Request is the default per-attempt deadline of a dispatched request.
const Request = 10 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests.
const Shutdown = 5 * time.Second
