// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielhkuo/quickly-elect/models"
)

var (
	ErrTimeout = errors.New("request timed out")
)

// APIError is a terminal non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Retryable reports whether the failure is worth another attempt (5xx only).
func (e *APIError) Retryable() bool {
	return e.Status >= http.StatusInternalServerError
}

// InvalidSession reports whether the server rejected the session token.
func (e *APIError) InvalidSession() bool {
	return strings.Contains(strings.ToLower(e.Message), "invalid session")
}

// newAPIError builds an APIError from a response body, falling back to
// "<status> <statusText>" when the body carries no message.
func newAPIError(status int, body []byte) *APIError {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Message != "" {
			return &APIError{Status: status, Message: resp.Message}
		}
		if resp.Error != "" {
			return &APIError{Status: status, Message: resp.Error}
		}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("%d %s", status, http.StatusText(status))}
}

// IsAborted reports whether err comes from the caller cancelling the request.
// Aborts are not failures and should not be shown to users.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// StatusOf returns the HTTP status carried by err, or 0 for network failures.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
