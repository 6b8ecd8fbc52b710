// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Vote-control status constants
const (
	StatusActive  = "ACTIVE"
	StatusStopped = "STOPPED"
)

// Results visibility constants
const (
	VisibilityHidden = "HIDDEN"
	VisibilityPublic = "PUBLIC"
)

// User roles
const (
	RoleVoter = "voter"
	RoleAdmin = "admin"
)

// Well-known collection names
const (
	CollectionVotes         = "votes"
	CollectionCandidates    = "candidates"
	CollectionFAQs          = "faqs"
	CollectionVoteControl   = "vote_control"
	CollectionNotifications = "notifications"
	CollectionAuditLogs     = "audit_logs"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification types
const (
	NotificationVote     = "vote"
	NotificationStatus   = "status"
	NotificationDeadline = "deadline"
	NotificationSystem   = "system"
)

// Record is an opaque JSON object stored in a collection.
// The service owns "id", "createdAt" and "updatedAt"; everything else belongs to the caller.
type Record map[string]any

// ID returns the record id or "" if absent.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Request types

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Response types

type SessionResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// FindResponse is the envelope of GET /collections/{name}.
// Count is only set when the request asked for count=1.
type FindResponse struct {
	Results []Record `json:"results"`
	Count   *int     `json:"count,omitempty"`
}

// Domain types

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoteControlState is the single election-wide voting switch.
type VoteControlState struct {
	ID                string     `json:"id,omitempty"`
	Status            string     `json:"status"`
	AutoStopDate      *time.Time `json:"autoStopDate"`
	ResultsVisibility string     `json:"resultsVisibility"`
	StoppedAt         *time.Time `json:"stoppedAt"`
	// Always serialized so that clearing them reaches the stored record.
	StoppedBy         string     `json:"stoppedBy"`
	Reason            string     `json:"reason"`
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Unread    bool      `json:"unread"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
