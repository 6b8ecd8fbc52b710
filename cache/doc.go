// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cache keeps recent collection reads in memory.

# Cache

A Cache maps a request Signature (collection, predicate, limit, skip, sort) to
the records it returned:

	c := cache.New(0) // DefaultTTL, five minutes
	sig := cache.NewSignature("votes", where, opts)
	if data, ok := c.Read(sig); ok {
		return data
	}

Entries older than the TTL are evicted when read. A nil *Cache is valid and
never hits.

# Reader

Reader puts a Cache in front of a collections.Client:

	r := cache.NewReader(client, cache.New(0), cache.WithPublisher(bus))
	candidates, err := r.Find(ctx, "candidates", nil, collections.FindOptions{})
	fresh, err := r.Refresh(ctx, "votes", nil, collections.FindOptions{})

Create, Update and Delete invalidate every cached read of the collection
they touch and publish candidatesUpdated, votesUpdated or auditLogsUpdated
for those collections. Concurrent misses for one signature share a single
request. That request runs detached from the caller that started it, bounded
by WithFetchTimeout, so a caller whose context is canceled returns
context.Canceled without failing the callers that joined it.

A read that was in flight when a write to its collection completed is
returned to its callers but not cached, and later reads do not join it.
*/
package cache
