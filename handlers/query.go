// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/danielhkuo/quickly-elect/models"
)

// Paging limits for GET /collections/{name}
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var ErrBadQuery = errors.New("invalid query")

// Query is a parsed find request.
type Query struct {
	Where Predicate
	Limit int
	Skip  int
	Sort  []SortKey
	Count bool
}

type SortKey struct {
	Field string
	Desc  bool
}

// Predicate is a decoded where clause.
type Predicate map[string]any

// ParseQuery reads where, limit, skip, sort and count from query parameters.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{Limit: DefaultLimit}

	if raw := v.Get("where"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&q.Where); err != nil {
			return Query{}, fmt.Errorf("%w: where must be a JSON object", ErrBadQuery)
		}
		if err := q.Where.validate(); err != nil {
			return Query{}, err
		}
	}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: limit must be a non-negative integer", ErrBadQuery)
		}
		q.Limit = min(n, MaxLimit)
	}

	if raw := v.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Query{}, fmt.Errorf("%w: skip must be a non-negative integer", ErrBadQuery)
		}
		q.Skip = n
	}

	if raw := v.Get("sort"); raw != "" {
		fields, err := parseSortFields(raw)
		if err != nil {
			return Query{}, err
		}
		for _, f := range fields {
			key := SortKey{Field: f}
			if strings.HasPrefix(f, "-") {
				key = SortKey{Field: f[1:], Desc: true}
			}
			if key.Field == "" {
				return Query{}, fmt.Errorf("%w: empty sort field", ErrBadQuery)
			}
			q.Sort = append(q.Sort, key)
		}
	}

	switch v.Get("count") {
	case "", "0", "false":
	case "1", "true":
		q.Count = true
	default:
		return Query{}, fmt.Errorf("%w: count must be 1 or 0", ErrBadQuery)
	}

	return q, nil
}

// parseSortFields accepts a JSON array of field names or a comma-separated list.
func parseSortFields(raw string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var fields []string
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("%w: sort must be a JSON array of strings", ErrBadQuery)
		}
		return fields, nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

var operators = map[string]bool{
	"$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$ne": true, "$in": true, "$exists": true,
}

func (p Predicate) validate() error {
	for field, cond := range p {
		ops, ok := operatorMap(cond)
		if !ok {
			continue
		}
		for op, arg := range ops {
			if !operators[op] {
				return fmt.Errorf("%w: unknown operator %s on %s", ErrBadQuery, op, field)
			}
			switch op {
			case "$in":
				if _, ok := arg.([]any); !ok {
					return fmt.Errorf("%w: $in on %s needs an array", ErrBadQuery, field)
				}
			case "$exists":
				if _, ok := arg.(bool); !ok {
					return fmt.Errorf("%w: $exists on %s needs a boolean", ErrBadQuery, field)
				}
			}
		}
	}
	return nil
}

// operatorMap returns cond as an operator object when every key starts with "$".
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// Match reports whether rec satisfies every condition.
func (p Predicate) Match(rec models.Record) bool {
	for field, cond := range p {
		value, present := lookup(rec, field)
		ops, isOps := operatorMap(cond)
		if !isOps {
			if !present || !equal(value, cond) {
				return false
			}
			continue
		}
		for op, arg := range ops {
			if !matchOp(op, value, present, arg) {
				return false
			}
		}
	}
	return true
}

func matchOp(op string, value any, present bool, arg any) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$ne":
		return !present || !equal(value, arg)
	case "$in":
		if !present {
			return false
		}
		list, _ := arg.([]any)
		for _, item := range list {
			if equal(value, item) {
				return true
			}
		}
		return false
	}

	if !present {
		return false
	}
	c, ok := compare(value, arg)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	}
	return false
}

// lookup resolves a dotted field path.
func lookup(rec models.Record, field string) (any, bool) {
	var cur any = map[string]any(rec)
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// compare orders two scalars of the same kind.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// typeRank orders values of different kinds: missing/null, bool, number, string, other.
func typeRank(v any, present bool) int {
	if !present || v == nil {
		return 0
	}
	switch v.(type) {
	case bool:
		return 1
	case json.Number, float64, int, int64:
		return 2
	case string:
		return 3
	}
	return 4
}

// SortRecords orders records in place by keys. The sort is stable so records
// with equal keys keep their creation order.
func SortRecords(records []models.Record, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			vi, pi := lookup(records[i], k.Field)
			vj, pj := lookup(records[j], k.Field)

			c := 0
			ri, rj := typeRank(vi, pi), typeRank(vj, pj)
			if ri != rj {
				c = ri - rj
			} else if cmp, ok := compare(vi, vj); ok {
				c = cmp
			}
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies skip and limit.
func (q Query) Page(records []models.Record) []models.Record {
	if q.Skip >= len(records) {
		return []models.Record{}
	}
	records = records[q.Skip:]
	if q.Limit < len(records) {
		records = records[:q.Limit]
	}
	return records
}
