// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/danielhkuo/quickly-elect/models"
)

func mustPredicate(t *testing.T, raw string) Predicate {
	t.Helper()
	q, err := ParseQuery(url.Values{"where": {raw}})
	if err != nil {
		t.Fatalf("ParseQuery(%s) error = %v", raw, err)
	}
	return q.Where
}

func mustRecord(t *testing.T, raw string) models.Record {
	t.Helper()
	rec, err := decodeRecord(raw)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != DefaultLimit || q.Skip != 0 || q.Count || q.Sort != nil || q.Where != nil {
		t.Errorf("Unexpected defaults %+v", q)
	}

	q, err = ParseQuery(url.Values{"limit": {"5000"}})
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != MaxLimit {
		t.Errorf("Expected limit clamped to %d, got %d", MaxLimit, q.Limit)
	}

	q, err = ParseQuery(url.Values{"sort": {"-createdAt, name"}})
	if err != nil {
		t.Fatal(err)
	}
	want := []SortKey{{Field: "createdAt", Desc: true}, {Field: "name"}}
	if len(q.Sort) != 2 || q.Sort[0] != want[0] || q.Sort[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, q.Sort)
	}
}

func TestParseQueryErrors(t *testing.T) {
	testCases := []url.Values{
		{"where": {`[1]`}},
		{"where": {`{"a":{"$in":3}}`}},
		{"where": {`{"a":{"$exists":"yes"}}`}},
		{"where": {`{"a":{"$near":[1,2]}}`}},
		{"sort": {`["-"]`}},
		{"skip": {"-2"}},
	}
	for _, v := range testCases {
		if _, err := ParseQuery(v); !errors.Is(err, ErrBadQuery) {
			t.Errorf("ParseQuery(%v) error = %v, want ErrBadQuery", v, err)
		}
	}
}

func TestPredicateMatch(t *testing.T) {
	rec := mustRecord(t, `{
		"category": "president",
		"count": 12,
		"active": true,
		"meta": {"round": 2},
		"tags": ["a", "b"],
		"deletedAt": null
	}`)

	testCases := []struct {
		where string
		want  bool
	}{
		{`{}`, true},
		{`{"category":"president"}`, true},
		{`{"category":"senator"}`, false},
		{`{"count":12}`, true},
		{`{"count":12.0}`, true},
		{`{"count":"12"}`, false},
		{`{"count":{"$gt":11,"$lt":13}}`, true},
		{`{"count":{"$gte":12}}`, true},
		{`{"count":{"$lte":11}}`, false},
		{`{"count":{"$ne":12}}`, false},
		{`{"missing":{"$ne":1}}`, true},
		{`{"missing":{"$gt":1}}`, false},
		{`{"category":{"$in":["senator","president"]}}`, true},
		{`{"category":{"$in":[]}}`, false},
		{`{"missing":{"$exists":false}}`, true},
		{`{"count":{"$exists":true}}`, true},
		{`{"deletedAt":{"$exists":true}}`, true},
		{`{"deletedAt":null}`, true},
		{`{"active":true}`, true},
		{`{"meta.round":2}`, true},
		{`{"meta.round":{"$gt":2}}`, false},
		{`{"meta":{"round":2}}`, true},
		{`{"tags":["a","b"]}`, true},
		{`{"category":{"$gt":"a"}}`, true},
		{`{"category":{"$gt":1}}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.where, func(t *testing.T) {
			if got := mustPredicate(t, tc.where).Match(rec); got != tc.want {
				t.Errorf("Match(%s) = %v, want %v", tc.where, got, tc.want)
			}
		})
	}
}

func TestSortRecords(t *testing.T) {
	records := []models.Record{
		mustRecord(t, `{"id":"a","score":2,"name":"x"}`),
		mustRecord(t, `{"id":"b","score":10,"name":"y"}`),
		mustRecord(t, `{"id":"c","name":"z"}`),
		mustRecord(t, `{"id":"d","score":2,"name":"w"}`),
		mustRecord(t, `{"id":"e","score":"high"}`),
	}

	ids := func() string {
		var b strings.Builder
		for _, r := range records {
			b.WriteString(r.ID())
		}
		return b.String()
	}

	// Missing first, numbers numerically, strings after numbers, ties stable
	SortRecords(records, []SortKey{{Field: "score"}})
	if got := ids(); got != "cadbe" {
		t.Errorf("ascending order = %s, want cadbe", got)
	}

	SortRecords(records, []SortKey{{Field: "score", Desc: true}, {Field: "name"}})
	if got := ids(); got != "ebdac" {
		t.Errorf("descending order = %s, want ebdac", got)
	}
}

func TestQueryPage(t *testing.T) {
	records := make([]models.Record, 5)
	for i := range records {
		records[i] = models.Record{"n": json.Number(string(rune('0' + i)))}
	}

	testCases := []struct {
		limit, skip int
		want        int
	}{
		{100, 0, 5},
		{2, 0, 2},
		{2, 4, 1},
		{0, 0, 0},
		{10, 5, 0},
		{10, 50, 0},
	}
	for _, tc := range testCases {
		got := Query{Limit: tc.limit, Skip: tc.skip}.Page(records)
		if len(got) != tc.want {
			t.Errorf("Page(limit=%d, skip=%d) = %d records, want %d", tc.limit, tc.skip, len(got), tc.want)
		}
		if got == nil {
			t.Error("Page must not return nil")
		}
	}
}
