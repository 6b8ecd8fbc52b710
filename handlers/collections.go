// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/danielhkuo/quickly-elect/cliparse"
	"github.com/danielhkuo/quickly-elect/db"
	"github.com/danielhkuo/quickly-elect/middleware"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/google/uuid"
)

// TimestampFormat is fixed width so timestamps sort lexically.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

const maxIDLength = 128

var collectionName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// Fields owned by the service; clients cannot set them through the body.
var reservedFields = []string{"id", "createdAt", "updatedAt"}

var errNotFound = errors.New("record not found")

type CollectionHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewCollectionHandler(db *sql.DB, cfg cliparse.Config) *CollectionHandler {
	return &CollectionHandler{db: db, cfg: cfg, now: time.Now}
}

// stamp returns a strictly increasing millisecond timestamp so records
// created in the same millisecond keep their creation order.
func (h *CollectionHandler) stamp() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms := db.ToMillis(h.now())
	if ms <= h.last {
		ms = h.last + 1
	}
	h.last = ms
	return ms
}

// collection validates the {name} path value, writing a 400 on failure.
func (h *CollectionHandler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if !collectionName.MatchString(name) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid collection name")
		return "", false
	}
	return name, true
}

// authorizeWrite rejects writes to protected collections from non-admins.
func (h *CollectionHandler) authorizeWrite(w http.ResponseWriter, r *http.Request, name string) bool {
	if !h.cfg.IsProtected(name) {
		return true
	}
	p, _ := PrincipalFrom(r.Context())
	if !p.IsAdmin() {
		middleware.ErrorResponse(w, http.StatusForbidden, "Permission denied")
		return false
	}
	return true
}

// Find handles GET /collections/{name}
func (h *CollectionHandler) Find(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}

	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	// A bare count is answered by the database without decoding records.
	if q.Count && q.Limit == 0 && len(q.Where) == 0 {
		n, err := h.count(r.Context(), name)
		if err != nil {
			slog.Error("failed to count records", "collection", name, "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		middleware.JSONResponse(w, http.StatusOK, models.FindResponse{Results: []models.Record{}, Count: &n})
		return
	}

	records, err := h.loadAll(r.Context(), name)
	if err != nil {
		slog.Error("failed to query records", "collection", name, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	matched := records[:0]
	for _, rec := range records {
		if q.Where.Match(rec) {
			matched = append(matched, rec)
		}
	}
	SortRecords(matched, q.Sort)

	resp := models.FindResponse{Results: q.Page(matched)}
	if q.Count {
		n := len(matched)
		resp.Count = &n
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Get handles GET /collections/{name}/{id}
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}

	rec, err := h.load(r.Context(), h.db, name, r.PathValue("id"))
	if errors.Is(err, errNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Record not found")
		return
	}
	if err != nil {
		slog.Error("failed to query record", "collection", name, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, rec)
}

// Create handles POST /collections/{name}
// A string "id" in the body is used as the record id.
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok || !h.authorizeWrite(w, r, name) {
		return
	}

	var body models.Record
	if err := middleware.ParseJSONBody(r, &body); err != nil || body == nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}

	id := uuid.NewString()
	if raw, present := body["id"]; present {
		s, isString := raw.(string)
		if !isString || s == "" || len(s) > maxIDLength {
			middleware.ErrorResponse(w, http.StatusBadRequest, "id must be a non-empty string")
			return
		}
		id = s
	}
	stripReserved(body)

	data, err := json.Marshal(body)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}

	now := h.stamp()
	res, err := h.db.ExecContext(r.Context(), `
		INSERT INTO record (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id) DO NOTHING
	`, name, id, string(data), now)
	if err != nil {
		slog.Error("failed to insert record", "collection", name, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create record")
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		middleware.ErrorResponse(w, http.StatusConflict, "Record already exists")
		return
	}

	slog.Info("record created", "collection", name, "id", id)
	middleware.JSONResponse(w, http.StatusCreated, withMeta(body, id, now, now))
}

// Update handles PUT /collections/{name}/{id}
// The body is merged into the stored record one level deep.
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok || !h.authorizeWrite(w, r, name) {
		return
	}
	id := r.PathValue("id")

	var patch models.Record
	if err := middleware.ParseJSONBody(r, &patch); err != nil || patch == nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Body must be a JSON object")
		return
	}
	stripReserved(patch)

	rec, err := h.update(r.Context(), name, id, patch)
	if errors.Is(err, errNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Record not found")
		return
	}
	if err != nil {
		slog.Error("failed to update record", "collection", name, "id", id, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update record")
		return
	}

	slog.Info("record updated", "collection", name, "id", id)
	middleware.JSONResponse(w, http.StatusOK, rec)
}

func (h *CollectionHandler) update(ctx context.Context, name, id string, patch models.Record) (models.Record, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := h.load(ctx, tx, name, id)
	if err != nil {
		return nil, err
	}
	createdAt := rec["createdAt"]
	stripReserved(rec)
	for k, v := range patch {
		rec[k] = v
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	now := db.ToMillis(h.now())
	if _, err := tx.ExecContext(ctx, `
		UPDATE record SET data = $1, updated_at = $2 WHERE collection = $3 AND id = $4
	`, string(data), now, name, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rec["id"] = id
	rec["createdAt"] = createdAt
	rec["updatedAt"] = formatMillis(now)
	return rec, nil
}

// Delete handles DELETE /collections/{name}/{id}
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok || !h.authorizeWrite(w, r, name) {
		return
	}
	id := r.PathValue("id")

	res, err := h.db.ExecContext(r.Context(), `DELETE FROM record WHERE collection = $1 AND id = $2`, name, id)
	if err != nil {
		slog.Error("failed to delete record", "collection", name, "id", id, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		middleware.ErrorResponse(w, http.StatusNotFound, "Record not found")
		return
	}

	slog.Info("record deleted", "collection", name, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (h *CollectionHandler) load(ctx context.Context, q queryer, name, id string) (models.Record, error) {
	var (
		data                 string
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT data, created_at, updated_at FROM record WHERE collection = $1 AND id = $2
	`, name, id).Scan(&data, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	return withMeta(rec, id, createdAt, updatedAt), nil
}

func (h *CollectionHandler) count(ctx context.Context, name string) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM record WHERE collection = $1`, name).Scan(&n)
	return n, err
}

func (h *CollectionHandler) loadAll(ctx context.Context, name string) ([]models.Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at FROM record
		WHERE collection = $1
		ORDER BY created_at, id
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var (
			id, data             string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		records = append(records, withMeta(rec, id, createdAt, updatedAt))
	}
	return records, rows.Err()
}

func decodeRecord(data string) (models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var rec models.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = models.Record{}
	}
	return rec, nil
}

func withMeta(rec models.Record, id string, createdAt, updatedAt int64) models.Record {
	rec["id"] = id
	rec["createdAt"] = formatMillis(createdAt)
	rec["updatedAt"] = formatMillis(updatedAt)
	return rec
}

func stripReserved(rec models.Record) {
	for _, f := range reservedFields {
		delete(rec, f)
	}
}

func formatMillis(ms int64) string {
	return db.FromMillis(ms).Format(TimestampFormat)
}
