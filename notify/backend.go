// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/db"
	"github.com/danielhkuo/quickly-elect/models"
)

// Backend is one place notifications are kept.
type Backend interface {
	Append(ctx context.Context, n models.Notification) error
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	// List returns every stored notification, newest first.
	List(ctx context.Context) ([]models.Notification, error)
	// Trim deletes all but the newest keep notifications.
	Trim(ctx context.Context, keep int) error
}

// Records is the part of collections.Client the remote backend uses.
type Records interface {
	Find(ctx context.Context, collection string, where collections.Where, opts collections.FindOptions) ([]models.Record, error)
	Create(ctx context.Context, collection string, data any) (models.Record, error)
	Update(ctx context.Context, collection, id string, patch any) (models.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// RemoteBackend keeps notifications in the service's notifications collection.
type RemoteBackend struct {
	records    Records
	collection string
}

func NewRemoteBackend(records Records) *RemoteBackend {
	return &RemoteBackend{records: records, collection: models.CollectionNotifications}
}

func (b *RemoteBackend) Append(ctx context.Context, n models.Notification) error {
	_, err := b.records.Create(ctx, b.collection, n)
	return err
}

func (b *RemoteBackend) MarkRead(ctx context.Context, id string) error {
	_, err := b.records.Update(ctx, b.collection, id, map[string]any{"unread": false})
	return err
}

func (b *RemoteBackend) MarkAllRead(ctx context.Context) error {
	unread, err := b.records.Find(ctx, b.collection, collections.Where{"unread": true}, collections.FindOptions{Limit: listLimit})
	if err != nil {
		return err
	}
	for _, rec := range unread {
		if err := b.MarkRead(ctx, rec.ID()); err != nil {
			return err
		}
	}
	return nil
}

// listLimit bounds remote list requests; the service caps pages at this size.
const listLimit = 1000

func (b *RemoteBackend) List(ctx context.Context) ([]models.Notification, error) {
	recs, err := b.records.Find(ctx, b.collection, nil, collections.FindOptions{
		Limit: listLimit,
		Sort:  []string{"-createdAt"},
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(recs))
	for _, rec := range recs {
		n, err := collections.Decode[models.Notification](rec)
		if err != nil {
			slog.Warn("skipping malformed notification", "id", rec.ID(), "error", err)
			continue
		}
		out = append(out, n)
	}
	sortNewestFirst(out)
	return out, nil
}

func (b *RemoteBackend) Trim(ctx context.Context, keep int) error {
	all, err := b.List(ctx)
	if err != nil {
		return err
	}
	if len(all) <= keep {
		return nil
	}
	for _, n := range all[keep:] {
		if err := b.records.Delete(ctx, b.collection, n.ID); err != nil {
			return fmt.Errorf("trim %s: %w", n.ID, err)
		}
	}
	return nil
}

// LocalBackend keeps notifications in the client's SQLite file.
type LocalBackend struct {
	conn *sql.DB
}

// NewLocalBackend wraps a database opened with localdb.Open.
func NewLocalBackend(conn *sql.DB) *LocalBackend {
	return &LocalBackend{conn: conn}
}

// Append stores n unless a notification with the same id is already stored.
func (b *LocalBackend) Append(ctx context.Context, n models.Notification) error {
	_, err := b.conn.ExecContext(ctx, `
		INSERT INTO notification (id, title, message, type, priority, created_at, unread)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.Title, n.Message, n.Type, n.Priority, db.ToMillis(n.Timestamp), n.Unread)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (b *LocalBackend) MarkRead(ctx context.Context, id string) error {
	if _, err := b.conn.ExecContext(ctx, `UPDATE notification SET unread = 0 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (b *LocalBackend) MarkAllRead(ctx context.Context) error {
	if _, err := b.conn.ExecContext(ctx, `UPDATE notification SET unread = 0 WHERE unread = 1`); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (b *LocalBackend) List(ctx context.Context) ([]models.Notification, error) {
	rows, err := b.conn.QueryContext(ctx, `
		SELECT id, title, message, type, priority, created_at, unread
		FROM notification
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n         models.Notification
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Type, &n.Priority, &createdAt, &n.Unread); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Timestamp = db.FromMillis(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (b *LocalBackend) Trim(ctx context.Context, keep int) error {
	_, err := b.conn.ExecContext(ctx, `
		DELETE FROM notification WHERE id NOT IN (
			SELECT id FROM notification ORDER BY created_at DESC, id DESC LIMIT $1
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to trim notifications: %w", err)
	}
	return nil
}
