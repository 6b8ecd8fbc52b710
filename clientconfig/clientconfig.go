// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package clientconfig reads client settings from QE_-prefixed environment
// variables.
package clientconfig

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/monitor"
	"github.com/danielhkuo/quickly-elect/timeouts"
)

// Prefix is prepended to every variable name.
const Prefix = "QE_"

type Config struct {
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:3318"`
	ApplicationID string `env:"APPLICATION_ID"`
	MasterKey     string `env:"MASTER_KEY"`
	// DataPath is the client's SQLite file (session token, notifications).
	DataPath string `env:"DATA_PATH" envDefault:"quickly-elect.db"`

	Retries   int           `env:"RETRIES" envDefault:"3"`
	Timeout   time.Duration `env:"TIMEOUT"`
	BaseDelay time.Duration `env:"BASE_DELAY" envDefault:"1s"`

	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	RefreshRate           time.Duration `env:"REFRESH_RATE" envDefault:"30s"`
	VoteInterval          time.Duration `env:"VOTE_INTERVAL" envDefault:"30s"`
	StatusInterval        time.Duration `env:"STATUS_INTERVAL" envDefault:"10s"`
	DeadlineWindow        time.Duration `env:"DEADLINE_WINDOW" envDefault:"1m"`
	NotificationRetention int           `env:"NOTIFICATION_RETENTION" envDefault:"50"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}
	if c.ApplicationID == "" {
		return errors.New(Prefix + "APPLICATION_ID required")
	}
	if c.DataPath == "" {
		return errors.New(Prefix + "DATA_PATH required")
	}
	if c.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	return nil
}

// Dispatch returns the dispatcher settings.
func (c Config) Dispatch() dispatch.Config {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = timeouts.Request
	}
	retries := c.Retries
	if retries == 0 {
		// dispatch treats 0 as "use the default"
		retries = -1
	}
	return dispatch.Config{
		BaseURL:       c.BaseURL,
		ApplicationID: c.ApplicationID,
		MasterKey:     c.MasterKey,
		Retries:       retries,
		Timeout:       timeout,
		BaseDelay:     c.BaseDelay,
	}
}

// FetchTimeout bounds one dispatched request across every attempt and
// backoff delay.
func (c Config) FetchTimeout() time.Duration {
	d := c.Dispatch()
	retries := max(d.Retries, 0)
	base := d.BaseDelay
	if base <= 0 {
		base = dispatch.DefaultBaseDelay
	}
	total := time.Duration(retries+1) * d.Timeout
	for n := 0; n < retries; n++ {
		// delay plus the largest jitter
		total += base<<n + base
	}
	return total
}

// Monitor returns the monitor polling settings.
func (c Config) Monitor() monitor.Config {
	return monitor.Config{
		VoteInterval:   c.VoteInterval,
		StatusInterval: c.StatusInterval,
		DeadlineWindow: c.DeadlineWindow,
	}
}
