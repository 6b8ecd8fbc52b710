// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/models"
)

// DefaultRetention is how many notifications are kept.
const DefaultRetention = 50

var ErrNoBackend = errors.New("notification store has no backend")

// Toaster shows a notification briefly outside the notification list.
type Toaster interface {
	Toast(n models.Notification)
}

// ToasterFunc adapts a function to Toaster.
type ToasterFunc func(n models.Notification)

func (f ToasterFunc) Toast(n models.Notification) { f(n) }

// Store is the notification log. Writes go to the remote backend first and
// are always mirrored to the local one, so nothing is lost while the service
// is unreachable. Reads merge both.
type Store struct {
	remote    Backend
	local     Backend
	retention int
	toaster   Toaster
	now       func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

type Option func(*Store)

// WithRetention keeps the newest n notifications. n < 1 selects DefaultRetention.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithToaster surfaces high priority notifications as they are added.
func WithToaster(t Toaster) Option {
	return func(s *Store) { s.toaster = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store. Either backend may be nil, but not both.
func New(remote, local Backend, opts ...Option) (*Store, error) {
	if remote == nil && local == nil {
		return nil, ErrNoBackend
	}
	s := &Store{
		remote:    remote,
		local:     local,
		retention: DefaultRetention,
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) newID(t time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", fmt.Errorf("generate notification id: %w", err)
	}
	return id.String(), nil
}

// Add fills in the id, timestamp and unread flag of n, stores it and
// returns the stored value. It fails only when no backend accepted it.
func (s *Store) Add(ctx context.Context, n models.Notification) (models.Notification, error) {
	n.Timestamp = s.now().UTC().Truncate(time.Millisecond)
	id, err := s.newID(n.Timestamp)
	if err != nil {
		return models.Notification{}, err
	}
	n.ID = id
	n.Unread = true
	if n.Type == "" {
		n.Type = models.NotificationSystem
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}

	var stored bool
	if s.remote != nil {
		if err := s.remote.Append(ctx, n); err != nil {
			if dispatch.IsAborted(err) {
				return models.Notification{}, err
			}
			slog.Warn("remote notification write failed, keeping local copy", "id", n.ID, "error", err)
		} else {
			stored = true
		}
	}

	var localErr error
	if s.local != nil {
		if localErr = s.local.Append(ctx, n); localErr != nil {
			slog.Error("local notification write failed", "id", n.ID, "error", localErr)
		} else {
			stored = true
		}
	}
	if !stored {
		return models.Notification{}, fmt.Errorf("notification not stored: %w", cmp.Or(localErr, ErrNoBackend))
	}

	s.trim(ctx)
	if n.Priority == models.PriorityHigh && s.toaster != nil {
		s.toaster.Toast(n)
	}
	slog.Debug("notification added", "id", n.ID, "type", n.Type, "priority", n.Priority)
	return n, nil
}

func (s *Store) trim(ctx context.Context) {
	for _, b := range s.backends() {
		if err := b.Trim(ctx, s.retention); err != nil {
			slog.Warn("failed to trim notifications", "error", err)
		}
	}
}

func (s *Store) backends() []Backend {
	var out []Backend
	if s.remote != nil {
		out = append(out, s.remote)
	}
	if s.local != nil {
		out = append(out, s.local)
	}
	return out
}

// MarkRead clears the unread flag of id wherever it is stored.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	return s.each("mark read", func(b Backend) error { return b.MarkRead(ctx, id) })
}

func (s *Store) MarkAllRead(ctx context.Context) error {
	return s.each("mark all read", func(b Backend) error { return b.MarkAllRead(ctx) })
}

// each runs op on every backend and fails only if all of them failed.
func (s *Store) each(what string, op func(Backend) error) error {
	var errs []error
	backends := s.backends()
	for _, b := range backends {
		if err := op(b); err != nil {
			slog.Warn("notification update failed", "op", what, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(backends) {
		return errors.Join(errs...)
	}
	return nil
}

// List returns the merged log, newest first, capped at the retention size.
// A notification present in both backends is taken from the remote one, and
// it counts as read if either copy was read.
func (s *Store) List(ctx context.Context) ([]models.Notification, error) {
	var remote, local []models.Notification
	var remoteErr, localErr error
	if s.remote != nil {
		if remote, remoteErr = s.remote.List(ctx); remoteErr != nil {
			if dispatch.IsAborted(remoteErr) {
				return nil, remoteErr
			}
			slog.Warn("remote notification list failed, using local copy", "error", remoteErr)
		}
	}
	if s.local != nil {
		if local, localErr = s.local.List(ctx); localErr != nil {
			slog.Error("local notification list failed", "error", localErr)
		}
	}
	if (s.remote == nil || remoteErr != nil) && (s.local == nil || localErr != nil) {
		return nil, errors.Join(remoteErr, localErr)
	}

	merged := merge(remote, local)
	if len(merged) > s.retention {
		merged = merged[:s.retention]
	}
	return merged, nil
}

func merge(remote, local []models.Notification) []models.Notification {
	byID := make(map[string]models.Notification, len(remote)+len(local))
	for _, n := range local {
		byID[n.ID] = n
	}
	for _, n := range remote {
		if l, ok := byID[n.ID]; ok && !l.Unread {
			n.Unread = false
		}
		byID[n.ID] = n
	}

	out := make([]models.Notification, 0, len(byID))
	for _, n := range byID {
		out = append(out, n)
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(ns []models.Notification) {
	slices.SortStableFunc(ns, func(a, b models.Notification) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range list {
		if item.Unread {
			n++
		}
	}
	return n, nil
}
