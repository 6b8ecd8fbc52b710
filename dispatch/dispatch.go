// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/danielhkuo/quickly-elect/credstore"
	"github.com/danielhkuo/quickly-elect/timeouts"
)

// Defaults applied by New when the Config leaves a field zero.
const (
	DefaultRetries   = 3
	DefaultBaseDelay = time.Second
)

// Paths that authenticate with the application id even when a token is stored.
var anonymousPaths = []string{"/login", "/signup"}

// Config is the connection and retry policy shared by every request.
type Config struct {
	BaseURL       string
	ApplicationID string
	// MasterKey is sent as X-Master-Key on every request when set.
	MasterKey string
	// Retries is the number of extra attempts; 0 selects DefaultRetries, negative disables retrying.
	Retries   int
	Timeout   time.Duration
	BaseDelay time.Duration
	// MaxJitter bounds the random delay added to each backoff. Defaults to BaseDelay.
	MaxJitter time.Duration
}

// Options describe one logical request.
type Options struct {
	Method string
	// Body is JSON-encoded unless it is []byte or an io.Reader, which are sent as-is.
	Body    any
	Headers map[string]string
	// Retries overrides Config.Retries when non-nil.
	Retries *int
	// Timeout overrides Config.Timeout when non-zero.
	Timeout time.Duration
}

// RetryCount is a helper for Options.Retries.
func RetryCount(n int) *int {
	return &n
}

// Dispatcher is the single place requests leave the client. It injects
// credentials, bounds every attempt with a timeout and retries transient failures.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	creds  credstore.Store
	notify backoff.Notify
	rand   func() float64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetryNotify is called before each backoff wait with the failed attempt's error.
func WithRetryNotify(n backoff.Notify) Option {
	return func(d *Dispatcher) { d.notify = n }
}

// New returns a dispatcher that reads the session token from creds.
// Zero fields of cfg take the package defaults.
func New(cfg Config, creds credstore.Store, opts ...Option) *Dispatcher {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.Request
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = cfg.BaseDelay
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	d := &Dispatcher{
		cfg:    cfg,
		client: defaultClient(),
		creds:  creds,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: timeouts.Dial,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: timeouts.TLSHandshake,
	}
	// Per-attempt deadlines come from the request context.
	return &http.Client{Transport: transport}
}

// Do sends one logical request and returns the raw JSON body, or nil for 204.
// 5xx responses and network or timeout failures are retried with exponential
// backoff; 4xx responses fail immediately with an *APIError.
func (d *Dispatcher) Do(ctx context.Context, path string, opts Options) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	payload, contentType, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	retries := d.cfg.Retries
	if opts.Retries != nil {
		retries = max(*opts.Retries, 0)
	}
	timeout := d.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	bo := newJitterBackOff(d.cfg.BaseDelay, d.cfg.MaxJitter)
	if d.rand != nil {
		bo.rand = d.rand
	}

	operation := func() (json.RawMessage, error) {
		body, err := d.attempt(ctx, method, path, payload, contentType, opts.Headers, timeout)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(context.Cause(ctx))
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := d.notify
	if notify == nil {
		notify = func(err error, next time.Duration) {
			slog.Warn("request failed, retrying", "method", method, "path", path, "error", err, "backoff_ms", next.Milliseconds())
		}
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return body, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.InvalidSession() {
		if clearErr := d.creds.Clear(ctx); clearErr != nil {
			slog.Error("failed to clear invalid session token", "error", clearErr)
		}
	}
	return nil, err
}

// attempt performs a single HTTP exchange bounded by timeout.
func (d *Dispatcher) attempt(ctx context.Context, method, path string, payload []byte, contentType string, headers map[string]string, timeout time.Duration) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	d.authorize(ctx, req, path)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w after %s", method, path, ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w after %s", method, path, ErrTimeout, timeout)
		}
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

func (d *Dispatcher) authorize(ctx context.Context, req *http.Request, path string) {
	token := ""
	if !isAnonymousPath(path) {
		var err error
		token, err = d.creds.Get(ctx)
		if err != nil {
			slog.Warn("failed to read session token", "error", err)
			token = ""
		}
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if d.cfg.ApplicationID != "" {
		req.Header.Set("X-Application-Id", d.cfg.ApplicationID)
	}
	if d.cfg.MasterKey != "" {
		req.Header.Set("X-Master-Key", d.cfg.MasterKey)
	}
}

func isAnonymousPath(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, p := range anonymousPaths {
		if path == p {
			return true
		}
	}
	return false
}

// encodeBody returns the bytes to send and the Content-Type to declare.
// Binary bodies get no Content-Type from the dispatcher.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "application/json", nil
	case []byte:
		return b, "", nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return data, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return data, "application/json", nil
	}
}
