// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultRate is the tick interval when none is configured.
const DefaultRate = 30 * time.Second

// DefaultParallelism bounds how many callbacks run at once during a tick.
const DefaultParallelism = 4

var ErrNotRegistered = errors.New("refresh key not registered")

// Callback reloads whatever its owner displays.
type Callback func(ctx context.Context) error

// Ticker is the subset of *time.Ticker the registry uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Status describes the registry for diagnostics.
type Status struct {
	Active         bool
	Rate           time.Duration
	RegisteredKeys []string
}

// Registry fans one shared ticker out to every registered callback. The
// ticker runs only while at least one callback is registered.
type Registry struct {
	mu          sync.Mutex
	rate        time.Duration
	parallelism int
	callbacks   map[string]Callback
	newTicker   func(time.Duration) Ticker

	// set while the ticker loop runs
	stop chan struct{}
}

type Option func(*Registry)

// WithTicker replaces time.NewTicker.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(r *Registry) { r.newTicker = f }
}

// WithParallelism bounds concurrent callbacks per tick. n < 1 runs them one at a time.
func WithParallelism(n int) Option {
	return func(r *Registry) { r.parallelism = max(n, 1) }
}

// New returns an idle registry ticking every rate once something registers.
func New(rate time.Duration, opts ...Option) *Registry {
	if rate <= 0 {
		rate = DefaultRate
	}
	r := &Registry{
		rate:        rate,
		parallelism: DefaultParallelism,
		callbacks:   make(map[string]Callback),
		newTicker:   NewTicker,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds cb under key, replacing any previous callback for key.
// The first registration starts the ticker.
func (r *Registry) Register(key string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callbacks[key] = cb
	if r.stop == nil {
		r.startLocked()
	}
}

// Unregister removes key. Removing the last callback stops the ticker.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.callbacks, key)
	if len(r.callbacks) == 0 {
		r.stopLocked()
	}
}

// Close stops the ticker and drops every callback.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.callbacks)
	r.stopLocked()
}

func (r *Registry) startLocked() {
	stop := make(chan struct{})
	r.stop = stop
	ticker := r.newTicker(r.rate)
	slog.Debug("refresh ticker started", "rate", r.rate)

	go func() {
		defer ticker.Stop()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				if err := r.RefreshAll(ctx); err != nil {
					slog.Warn("refresh tick had failures", "error", err)
				}
			}
		}
	}()
}

func (r *Registry) stopLocked() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.stop = nil
	slog.Debug("refresh ticker stopped")
}

// RefreshAll runs every registered callback. A failing or panicking
// callback does not keep the others from running; all failures are
// returned joined.
func (r *Registry) RefreshAll(ctx context.Context) error {
	r.mu.Lock()
	snapshot := make(map[string]Callback, len(r.callbacks))
	for k, cb := range r.callbacks {
		snapshot[k] = cb
	}
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.parallelism)
	for key, cb := range snapshot {
		g.Go(func() error {
			if err := invoke(ctx, key, cb); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// Refresh runs the callback for key immediately, outside the ticker.
func (r *Registry) Refresh(ctx context.Context, key string) error {
	r.mu.Lock()
	cb, ok := r.callbacks[key]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	return invoke(ctx, key, cb)
}

func invoke(ctx context.Context, key string, cb Callback) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("refresh %s panicked: %v", key, p)
		}
	}()
	if err := cb(ctx); err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	return nil
}

func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return Status{
		Active:         r.stop != nil,
		Rate:           r.rate,
		RegisteredKeys: keys,
	}
}
