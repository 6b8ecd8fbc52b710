// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package collections

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/danielhkuo/quickly-elect/credstore"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/models"
)

type call struct {
	path string
	opts dispatch.Options
}

// fakeRequester records calls and answers with a canned body or error.
type fakeRequester struct {
	calls []call
	body  string
	err   error
}

func (f *fakeRequester) Do(ctx context.Context, path string, opts dispatch.Options) (json.RawMessage, error) {
	f.calls = append(f.calls, call{path, opts})
	if f.err != nil {
		return nil, f.err
	}
	if f.body == "" {
		return nil, nil
	}
	return json.RawMessage(f.body), nil
}

func TestEncodeQuery(t *testing.T) {
	tests := []struct {
		name  string
		where Where
		opts  FindOptions
		want  url.Values
	}{
		{"empty", nil, FindOptions{}, url.Values{}},
		{
			"where and paging",
			Where{"category": "president", "votes": Where{"$gt": 3}},
			FindOptions{Limit: 10, Skip: 20},
			url.Values{
				"where": {`{"category":"president","votes":{"$gt":3}}`},
				"limit": {"10"},
				"skip":  {"20"},
			},
		},
		{
			"sort",
			nil,
			FindOptions{Sort: []string{"-createdAt", "name"}},
			url.Values{"sort": {`["-createdAt","name"]`}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeQuery(tt.where, tt.opts)
			assert.Equal(t, err, nil)
			parsed, _ := url.ParseQuery(got)
			assert.Equal(t, parsed, tt.want)
		})
	}

	// Equal predicates encode identically regardless of construction order.
	a, _ := EncodeQuery(Where{"a": 1, "b": 2, "c": 3}, FindOptions{})
	b, _ := EncodeQuery(Where{"c": 3, "b": 2, "a": 1}, FindOptions{})
	assert.Equal(t, a, b)
}

func TestClientRequests(t *testing.T) {
	ctx := context.Background()

	f := &fakeRequester{body: `{"results":[{"id":"c1","name":"Ada"}]}`}
	c := New(f, nil)
	recs, err := c.Find(ctx, "candidates", Where{"category": "president"}, FindOptions{Limit: 5})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(recs), 1)
	assert.Equal(t, recs[0].ID(), "c1")
	assert.Equal(t, f.calls[0].opts.Method, http.MethodGet)
	assert.Equal(t, f.calls[0].path, `/collections/candidates?limit=5&where=%7B%22category%22%3A%22president%22%7D`)

	f = &fakeRequester{body: `{"id":"v1"}`}
	c = New(f, nil)
	_, err = c.Create(ctx, "votes", map[string]any{"candidateId": "c1"})
	assert.Equal(t, err, nil)
	_, err = c.Update(ctx, "votes", "v 1", map[string]any{"weight": 2})
	assert.Equal(t, err, nil)
	_, err = c.Get(ctx, "votes", "v1")
	assert.Equal(t, err, nil)
	assert.Equal(t, f.calls[0].path, "/collections/votes")
	assert.Equal(t, f.calls[0].opts.Method, http.MethodPost)
	assert.Equal(t, f.calls[1].path, "/collections/votes/v%201")
	assert.Equal(t, f.calls[1].opts.Method, http.MethodPut)
	assert.Equal(t, f.calls[2].opts.Method, http.MethodGet)

	f = &fakeRequester{}
	c = New(f, nil)
	assert.Equal(t, c.Delete(ctx, "votes", "v1"), nil)
	assert.Equal(t, f.calls[0].opts.Method, http.MethodDelete)
}

func TestFindEmptyResults(t *testing.T) {
	c := New(&fakeRequester{body: `{"results":null}`}, nil)
	recs, err := c.Find(context.Background(), "faqs", nil, FindOptions{})
	assert.Equal(t, err, nil)
	assert.NotEqual(t, recs, nil)
	assert.Equal(t, len(recs), 0)
}

func TestCount(t *testing.T) {
	f := &fakeRequester{body: `{"results":[],"count":42}`}
	c := New(f, nil)

	n, err := c.Count(context.Background(), "votes", Where{"category": "vice"})
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 42)

	u, _ := url.Parse(f.calls[0].path)
	assert.Equal(t, u.Path, "/collections/votes")
	assert.Equal(t, u.Query().Get("count"), "1")
	assert.Equal(t, u.Query().Get("limit"), "0")
	assert.Equal(t, u.Query().Get("where"), `{"category":"vice"}`)

	c = New(&fakeRequester{body: `{"results":[]}`}, nil)
	_, err = c.Count(context.Background(), "votes", nil)
	assert.NotEqual(t, err, nil)
}

func TestErrorsPassThrough(t *testing.T) {
	apiErr := &dispatch.APIError{Status: http.StatusForbidden, Message: "Permission denied"}
	f := &fakeRequester{err: apiErr}
	c := New(f, nil)

	_, err := c.Create(context.Background(), "candidates", map[string]any{"name": "x"})
	assert.Equal(t, err, error(apiErr))
	assert.Equal(t, len(f.calls), 1)
}

func TestSignInStoresTokenOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	creds := credstore.NewMemoryStore()

	f := &fakeRequester{err: &dispatch.APIError{Status: http.StatusBadRequest, Message: "Invalid email or password"}}
	_, err := New(f, creds).SignIn(ctx, "a@example.com", "nope")
	assert.NotEqual(t, err, nil)
	token, _ := creds.Get(ctx)
	assert.Equal(t, token, "")
	assert.Equal(t, *f.calls[0].opts.Retries, 0)

	f = &fakeRequester{body: `{"token":"tok-1","user":{"id":"u1","email":"a@example.com","role":"voter"}}`}
	user, err := New(f, creds).SignIn(ctx, "a@example.com", "password123")
	assert.Equal(t, err, nil)
	assert.Equal(t, user.ID, "u1")
	token, _ = creds.Get(ctx)
	assert.Equal(t, token, "tok-1")

	_, err = New(f, nil).SignIn(ctx, "a@example.com", "password123")
	assert.Equal(t, err, ErrNoCredentialStore)
}

func TestDecode(t *testing.T) {
	type candidate struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	got, err := Decode[candidate](models.Record{"id": "c1", "name": "Ada", "category": "president", "extra": true})
	assert.Equal(t, err, nil)
	assert.Equal(t, got, candidate{ID: "c1", Name: "Ada", Category: "president"})

	_, err = Decode[candidate](models.Record{"name": 12})
	assert.NotEqual(t, err, nil)
}
