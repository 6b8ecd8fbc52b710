// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/models"
)

// Store is the part of collections.Client the reader fronts.
type Store interface {
	Find(ctx context.Context, collection string, where collections.Where, opts collections.FindOptions) ([]models.Record, error)
	Create(ctx context.Context, collection string, data any) (models.Record, error)
	Update(ctx context.Context, collection, id string, patch any) (models.Record, error)
	Delete(ctx context.Context, collection, id string) error
}

// collectionTopics maps collections to the event announcing their change.
var collectionTopics = map[string]string{
	models.CollectionCandidates: events.CandidatesUpdated,
	models.CollectionAuditLogs:  events.AuditLogsUpdated,
	models.CollectionVotes:      events.VotesUpdated,
}

// DefaultFetchTimeout bounds a shared fetch, which outlives the caller that
// started it.
const DefaultFetchTimeout = time.Minute

// Reader serves finds from a Cache and invalidates it on writes.
// Concurrent misses for the same signature share one request.
type Reader struct {
	store   Store
	cache   *Cache
	bus     events.Publisher
	group   singleflight.Group
	timeout time.Duration

	// gens counts completed writes per collection. A fetch only caches its
	// result if no write finished while it was in flight.
	mu   sync.Mutex
	gens map[string]uint64
}

type ReaderOption func(*Reader)

// WithFetchTimeout bounds each shared fetch. Non-positive values keep
// DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPublisher announces successful writes to collections that have a topic.
func WithPublisher(p events.Publisher) ReaderOption {
	return func(r *Reader) { r.bus = p }
}

// NewReader wraps store. A nil cache disables caching.
func NewReader(store Store, cache *Cache, opts ...ReaderOption) *Reader {
	r := &Reader{store: store, cache: cache, timeout: DefaultFetchTimeout, gens: map[string]uint64{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find returns a cached result when one is fresh, otherwise fetches and caches it.
// Failed fetches are not cached.
func (r *Reader) Find(ctx context.Context, collection string, where collections.Where, opts collections.FindOptions) ([]models.Record, error) {
	sig := NewSignature(collection, where, opts)
	if data, ok := r.cache.Read(sig); ok {
		return data, nil
	}
	return r.fetch(ctx, sig, collection, where, opts)
}

// Refresh drops the cached result and fetches it again.
func (r *Reader) Refresh(ctx context.Context, collection string, where collections.Where, opts collections.FindOptions) ([]models.Record, error) {
	sig := NewSignature(collection, where, opts)
	r.cache.Invalidate(sig)
	r.group.Forget(sig.key(r.generation(collection)))
	return r.fetch(ctx, sig, collection, where, opts)
}

// fetch runs at most one Find per signature and generation. The shared call
// is detached from ctx so a caller that gives up does not fail the others;
// each caller returns as soon as its own ctx is done.
func (r *Reader) fetch(ctx context.Context, sig Signature, collection string, where collections.Where, opts collections.FindOptions) ([]models.Record, error) {
	gen := r.generation(collection)
	ch := r.group.DoChan(sig.key(gen), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		data, err := r.store.Find(fctx, collection, where, opts)
		if err != nil {
			return nil, err
		}
		r.writeIfCurrent(sig, gen, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, _ := res.Val.([]models.Record)
		return data, nil
	}
}

func (r *Reader) generation(collection string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[collection]
}

// writeIfCurrent caches data unless a write to the collection completed
// after the fetch began.
func (r *Reader) writeIfCurrent(sig Signature, gen uint64, data []models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[sig.Collection] != gen {
		slog.Debug("dropping stale find result", "collection", sig.Collection)
		return
	}
	r.cache.Write(sig, data)
}

func (r *Reader) Create(ctx context.Context, collection string, data any) (models.Record, error) {
	rec, err := r.store.Create(ctx, collection, data)
	if err != nil {
		return nil, err
	}
	r.changed(collection)
	return rec, nil
}

func (r *Reader) Update(ctx context.Context, collection, id string, patch any) (models.Record, error) {
	rec, err := r.store.Update(ctx, collection, id, patch)
	if err != nil {
		return nil, err
	}
	r.changed(collection)
	return rec, nil
}

func (r *Reader) Delete(ctx context.Context, collection, id string) error {
	if err := r.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	r.changed(collection)
	return nil
}

func (r *Reader) changed(collection string) {
	r.mu.Lock()
	r.gens[collection]++
	r.cache.InvalidateCollection(collection)
	r.mu.Unlock()

	if topic, ok := collectionTopics[collection]; ok && r.bus != nil {
		slog.Debug("collection changed", "collection", collection, "topic", topic)
		r.bus.Publish(topic)
	}
}

func (s Signature) key(gen uint64) string {
	return s.Collection + "\x00" + s.Query + "\x00" + strconv.FormatUint(gen, 10)
}
