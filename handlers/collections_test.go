// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/danielhkuo/quickly-elect/models"
	"github.com/danielhkuo/quickly-elect/testutil"
)

func createRecord(t *testing.T, mux http.Handler, collection string, body any, headers map[string]string) models.Record {
	t.Helper()
	w := serve(mux, testutil.MakeRequest("POST", "/collections/"+collection, body, headers))
	testutil.AssertStatus(t, w, http.StatusCreated)

	var rec models.Record
	testutil.AssertJSON(t, w, &rec)
	return rec
}

func findRecords(t *testing.T, mux http.Handler, collection string, q url.Values, headers map[string]string) models.FindResponse {
	t.Helper()
	path := "/collections/" + collection
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	w := serve(mux, testutil.MakeRequest("GET", path, nil, headers))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.FindResponse
	testutil.AssertJSON(t, w, &resp)
	return resp
}

func TestCollectionCRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	h := testutil.AppHeaders()

	// Create
	rec := createRecord(t, mux, "votes", map[string]any{"category": "president", "candidate": "c1"}, h)
	id := rec.ID()
	if id == "" {
		t.Fatal("Expected generated id")
	}
	if _, ok := rec["createdAt"].(string); !ok {
		t.Error("Expected createdAt on created record")
	}

	// Get
	w := serve(mux, testutil.MakeRequest("GET", "/collections/votes/"+id, nil, h))
	testutil.AssertStatus(t, w, http.StatusOK)
	var got models.Record
	testutil.AssertJSON(t, w, &got)
	if got["candidate"] != "c1" {
		t.Errorf("Expected candidate c1, got %v", got["candidate"])
	}

	// Update merges
	w = serve(mux, testutil.MakeRequest("PUT", "/collections/votes/"+id,
		map[string]any{"candidate": "c2", "id": "ignored"}, h))
	testutil.AssertStatus(t, w, http.StatusOK)
	var updated models.Record
	testutil.AssertJSON(t, w, &updated)
	if updated["candidate"] != "c2" || updated["category"] != "president" {
		t.Errorf("Expected merged record, got %v", updated)
	}
	if updated.ID() != id {
		t.Errorf("id must not change, got %q", updated.ID())
	}
	if updated["createdAt"] != rec["createdAt"] {
		t.Errorf("createdAt must not change: %v != %v", updated["createdAt"], rec["createdAt"])
	}

	// Delete
	w = serve(mux, testutil.MakeRequest("DELETE", "/collections/votes/"+id, nil, h))
	testutil.AssertStatus(t, w, http.StatusNoContent)

	// Gone
	for _, method := range []string{"GET", "DELETE"} {
		w = serve(mux, testutil.MakeRequest(method, "/collections/votes/"+id, nil, h))
		testutil.AssertStatus(t, w, http.StatusNotFound)
	}
	w = serve(mux, testutil.MakeRequest("PUT", "/collections/votes/"+id, map[string]any{"x": 1}, h))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestCreateWithClientID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	h := testutil.AppHeaders()

	rec := createRecord(t, mux, "notifications", map[string]any{"id": "01HZX", "title": "hi"}, h)
	if rec.ID() != "01HZX" {
		t.Errorf("Expected client id, got %q", rec.ID())
	}

	w := serve(mux, testutil.MakeRequest("POST", "/collections/notifications",
		map[string]any{"id": "01HZX", "title": "again"}, h))
	testutil.AssertStatus(t, w, http.StatusConflict)

	// Same id in another collection is fine
	createRecord(t, mux, "audit_logs", map[string]any{"id": "01HZX"}, h)

	w = serve(mux, testutil.MakeRequest("POST", "/collections/notifications", map[string]any{"id": 42}, h))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestCreateRejectsBadInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	testCases := []struct {
		name string
		path string
		body string
	}{
		{"array body", "/collections/votes", `[1,2]`},
		{"null body", "/collections/votes", `null`},
		{"invalid json", "/collections/votes", `{`},
		{"bad name", "/collections/1votes", `{}`},
		{"name with dash", "/collections/vote-s", `{}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tc.path, strings.NewReader(tc.body))
			req.Header.Set("X-Application-Id", testutil.TestApplicationID)
			w := serve(mux, req)
			testutil.AssertStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestProtectedCollections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	testutil.SeedUser(t, db, "voter@example.com", "password1", models.RoleVoter)
	testutil.SeedUser(t, db, "admin@example.com", "password1", models.RoleAdmin)

	voter := testutil.BearerHeaders(signIn(t, mux, "voter@example.com", "password1"))
	admin := testutil.BearerHeaders(signIn(t, mux, "admin@example.com", "password1"))

	// Voters cannot write candidates
	w := serve(mux, testutil.MakeRequest("POST", "/collections/candidates", map[string]any{"name": "X"}, voter))
	testutil.AssertStatus(t, w, http.StatusForbidden)

	// Admins and the master key can
	cand := createRecord(t, mux, "candidates", map[string]any{"name": "X"}, admin)
	createRecord(t, mux, "faqs", map[string]any{"q": "?"}, testutil.MasterHeaders())

	// Anyone authenticated can read
	resp := findRecords(t, mux, "candidates", nil, voter)
	if len(resp.Results) != 1 {
		t.Errorf("Expected 1 candidate, got %d", len(resp.Results))
	}

	for _, method := range []string{"PUT", "DELETE"} {
		w = serve(mux, testutil.MakeRequest(method, "/collections/candidates/"+cand.ID(), map[string]any{"name": "Y"}, voter))
		testutil.AssertStatus(t, w, http.StatusForbidden)
	}

	// Unprotected collections accept voter writes
	createRecord(t, mux, "vote_control", map[string]any{"status": "ACTIVE"}, voter)
}

func TestFindQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	h := testutil.AppHeaders()

	for i, c := range []struct {
		category string
		score    int
	}{
		{"president", 5}, {"president", 2}, {"senator", 9}, {"senator", 2}, {"president", 7},
	} {
		createRecord(t, mux, "votes", map[string]any{"n": i, "category": c.category, "score": c.score}, h)
	}

	t.Run("default order is creation order", func(t *testing.T) {
		resp := findRecords(t, mux, "votes", nil, h)
		if len(resp.Results) != 5 {
			t.Fatalf("Expected 5 results, got %d", len(resp.Results))
		}
		for i, rec := range resp.Results {
			if rec["n"] != float64(i) {
				t.Errorf("Result %d has n=%v", i, rec["n"])
			}
		}
		if resp.Count != nil {
			t.Error("Count must be omitted unless requested")
		}
	})

	t.Run("equality and operator", func(t *testing.T) {
		resp := findRecords(t, mux, "votes", url.Values{
			"where": {`{"category":"president","score":{"$gte":5}}`},
		}, h)
		if len(resp.Results) != 2 {
			t.Errorf("Expected 2 results, got %d", len(resp.Results))
		}
	})

	t.Run("sort limit skip", func(t *testing.T) {
		resp := findRecords(t, mux, "votes", url.Values{
			"sort":  {`["-score","n"]`},
			"limit": {"2"},
			"skip":  {"1"},
		}, h)
		if len(resp.Results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(resp.Results))
		}
		// scores desc: 9,7,5,2,2
		if resp.Results[0]["score"] != float64(7) || resp.Results[1]["score"] != float64(5) {
			t.Errorf("Unexpected page %v", resp.Results)
		}
	})

	t.Run("count without records", func(t *testing.T) {
		resp := findRecords(t, mux, "votes", url.Values{
			"where": {`{"score":2}`},
			"count": {"1"},
			"limit": {"0"},
		}, h)
		if resp.Count == nil || *resp.Count != 2 {
			t.Errorf("Expected count 2, got %v", resp.Count)
		}
		if len(resp.Results) != 0 {
			t.Errorf("Expected no records with limit=0, got %d", len(resp.Results))
		}
	})

	t.Run("bare count", func(t *testing.T) {
		resp := findRecords(t, mux, "votes", url.Values{"count": {"1"}, "limit": {"0"}}, h)
		if resp.Count == nil || *resp.Count != 5 {
			t.Errorf("Expected count 5, got %v", resp.Count)
		}
		if resp.Results == nil || len(resp.Results) != 0 {
			t.Errorf("Expected empty results array, got %v", resp.Results)
		}
	})

	t.Run("empty collection", func(t *testing.T) {
		resp := findRecords(t, mux, "nothing_here", url.Values{"count": {"1"}}, h)
		if resp.Results == nil || len(resp.Results) != 0 {
			t.Errorf("Expected empty results array, got %v", resp.Results)
		}
		if resp.Count == nil || *resp.Count != 0 {
			t.Errorf("Expected count 0, got %v", resp.Count)
		}
	})

	t.Run("bad queries", func(t *testing.T) {
		for _, q := range []url.Values{
			{"where": {`{"score":{"$regex":"x"}}`}},
			{"where": {`not json`}},
			{"limit": {"-1"}},
			{"skip": {"x"}},
			{"sort": {`[1]`}},
			{"count": {"maybe"}},
		} {
			w := serve(mux, testutil.MakeRequest("GET", "/collections/votes?"+q.Encode(), nil, h))
			if w.Code != http.StatusBadRequest {
				t.Errorf("%v: expected 400, got %d", q, w.Code)
			}
			if !strings.Contains(w.Body.String(), "invalid query") {
				t.Errorf("%v: expected 'invalid query' message, got %s", q, w.Body.String())
			}
		}
	})
}

func TestBareCountDoesNotDecodeRecords(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mux := newTestMux(db, testutil.GetTestConfig())
	h := testutil.AppHeaders()

	createRecord(t, mux, "votes", map[string]any{"category": "president"}, h)
	if _, err := db.Exec(`
		INSERT INTO record (collection, id, data, created_at, updated_at)
		VALUES ('votes', 'broken', 'not json', 1, 1)
	`); err != nil {
		t.Fatalf("Failed to insert record: %v", err)
	}

	resp := findRecords(t, mux, "votes", url.Values{"count": {"1"}, "limit": {"0"}}, h)
	if resp.Count == nil || *resp.Count != 2 {
		t.Errorf("Expected count 2, got %v", resp.Count)
	}

	// Finds that return records still decode every row
	w := serve(mux, testutil.MakeRequest("GET", "/collections/votes", nil, h))
	testutil.AssertStatus(t, w, http.StatusInternalServerError)
}
