// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package collections

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielhkuo/quickly-elect/credstore"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/models"
)

// Requester is the slice of dispatch.Dispatcher the client needs.
type Requester interface {
	Do(ctx context.Context, path string, opts dispatch.Options) (json.RawMessage, error)
}

// Where is a JSON predicate, e.g. Where{"category": "president", "count": Where{"$gt": 3}}.
type Where map[string]any

// FindOptions page and order a Find. Sort entries are field names, prefixed
// with "-" for descending order.
type FindOptions struct {
	Limit int
	Skip  int
	Sort  []string
}

// Client is a CRUD façade over the collection service. It never retries on
// its own; every error from the dispatcher is returned unchanged.
type Client struct {
	d     Requester
	creds credstore.Store
}

// New builds a client. creds receives the token on sign-in and may be nil
// for clients that never authenticate.
func New(d Requester, creds credstore.Store) *Client {
	return &Client{d: d, creds: creds}
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func recordPath(name, id string) string {
	return collectionPath(name) + "/" + url.PathEscape(id)
}

// EncodeQuery serializes a predicate and find options into a query string.
// Predicate and sort are JSON-encoded; map keys are emitted in sorted order so
// equal queries encode identically.
func EncodeQuery(where Where, opts FindOptions) (string, error) {
	q := url.Values{}
	if len(where) > 0 {
		b, err := json.Marshal(where)
		if err != nil {
			return "", fmt.Errorf("encode where: %w", err)
		}
		q.Set("where", string(b))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}
	if len(opts.Sort) > 0 {
		b, err := json.Marshal(opts.Sort)
		if err != nil {
			return "", fmt.Errorf("encode sort: %w", err)
		}
		q.Set("sort", string(b))
	}
	return q.Encode(), nil
}

// Find returns the records of collection matching where, paged and sorted
// by opts. No match yields an empty slice.
func (c *Client) Find(ctx context.Context, collection string, where Where, opts FindOptions) ([]models.Record, error) {
	query, err := EncodeQuery(where, opts)
	if err != nil {
		return nil, err
	}
	path := collectionPath(collection)
	if query != "" {
		path += "?" + query
	}

	body, err := c.d.Do(ctx, path, dispatch.Options{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}

	var resp models.FindResponse
	if err := decodeBody(body, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []models.Record{}
	}
	return resp.Results, nil
}

// FindOne returns the first match or nil when nothing matches.
func (c *Client) FindOne(ctx context.Context, collection string, where Where, sort ...string) (models.Record, error) {
	results, err := c.Find(ctx, collection, where, FindOptions{Limit: 1, Sort: sort})
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// Get returns one record by id. A missing record is an *dispatch.APIError
// with status 404.
func (c *Client) Get(ctx context.Context, collection, id string) (models.Record, error) {
	body, err := c.d.Do(ctx, recordPath(collection, id), dispatch.Options{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := decodeBody(body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create stores a new record and returns it as stored, including its id.
// A string "id" in data is used as the record id.
func (c *Client) Create(ctx context.Context, collection string, data any) (models.Record, error) {
	body, err := c.d.Do(ctx, collectionPath(collection), dispatch.Options{Method: http.MethodPost, Body: data})
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := decodeBody(body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch into the stored record and returns the result.
func (c *Client) Update(ctx context.Context, collection, id string, patch any) (models.Record, error) {
	body, err := c.d.Do(ctx, recordPath(collection, id), dispatch.Options{Method: http.MethodPut, Body: patch})
	if err != nil {
		return nil, err
	}
	var rec models.Record
	if err := decodeBody(body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes one record by id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.d.Do(ctx, recordPath(collection, id), dispatch.Options{Method: http.MethodDelete})
	return err
}

// Count returns how many records match where, without transferring them.
func (c *Client) Count(ctx context.Context, collection string, where Where) (int, error) {
	query, err := EncodeQuery(where, FindOptions{})
	if err != nil {
		return 0, err
	}
	q, _ := url.ParseQuery(query)
	q.Set("count", "1")
	q.Set("limit", "0")

	body, err := c.d.Do(ctx, collectionPath(collection)+"?"+q.Encode(), dispatch.Options{Method: http.MethodGet})
	if err != nil {
		return 0, err
	}
	var resp models.FindResponse
	if err := decodeBody(body, &resp); err != nil {
		return 0, err
	}
	if resp.Count == nil {
		return 0, fmt.Errorf("count missing from response")
	}
	return *resp.Count, nil
}

func decodeBody(body json.RawMessage, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Decode converts an opaque record into a typed value via its JSON form.
func Decode[T any](rec models.Record) (T, error) {
	var out T
	b, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}
