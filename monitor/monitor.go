// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/danielhkuo/quickly-elect/refresh"
)

// Polling defaults.
const (
	DefaultVoteInterval   = 30 * time.Second
	DefaultStatusInterval = 10 * time.Second
	DefaultDeadlineWindow = time.Minute
)

// DefaultThresholds are the reminders sent before the auto-stop date.
var DefaultThresholds = []time.Duration{time.Hour, 15 * time.Minute, 0}

// VoteCounter is the part of collections.Client used to count votes.
type VoteCounter interface {
	Count(ctx context.Context, collection string, where collections.Where) (int, error)
}

// VoteControl is the part of votecontrol.Service the monitor reads.
type VoteControl interface {
	Get(ctx context.Context) (models.VoteControlState, error)
	// Evaluate applies the auto-stop and reports whether it stopped voting.
	// When it did, the status change has already been broadcast.
	Evaluate(ctx context.Context) (models.VoteControlState, bool, error)
}

type Notifier interface {
	Add(ctx context.Context, n models.Notification) (models.Notification, error)
}

type Config struct {
	VoteInterval   time.Duration
	StatusInterval time.Duration
	// DeadlineWindow is how long after crossing a threshold its reminder may
	// still fire. It should be longer than StatusInterval.
	DeadlineWindow time.Duration
	Thresholds     []time.Duration
}

func (c Config) withDefaults() Config {
	if c.VoteInterval <= 0 {
		c.VoteInterval = DefaultVoteInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	if c.DeadlineWindow <= 0 {
		c.DeadlineWindow = DefaultDeadlineWindow
	}
	if c.Thresholds == nil {
		c.Thresholds = DefaultThresholds
	}
	return c
}

type reminderKey struct {
	deadline  int64
	threshold time.Duration
}

// Monitor polls the vote count and the vote-control state and raises
// notifications when they change.
type Monitor struct {
	votes     VoteCounter
	control   VoteControl
	notifier  Notifier
	bus       events.Publisher
	cfg       Config
	now       func() time.Time
	newTicker func(time.Duration) refresh.Ticker

	// one check of each kind at a time
	votesBusy  atomic.Bool
	statusBusy atomic.Bool

	// baseline
	mu            sync.Mutex
	haveVotes     bool
	lastVoteCount int
	lastStatus    string
	fired         map[reminderKey]bool

	loopMu     sync.Mutex
	stopVotes  context.CancelFunc
	stopStatus context.CancelFunc
	wg         sync.WaitGroup
}

type Option func(*Monitor)

func WithConfig(cfg Config) Option {
	return func(m *Monitor) { m.cfg = cfg.withDefaults() }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTicker replaces time.NewTicker for both polling loops.
func WithTicker(f func(time.Duration) refresh.Ticker) Option {
	return func(m *Monitor) { m.newTicker = f }
}

// New builds an idle monitor. bus may be nil.
func New(votes VoteCounter, control VoteControl, notifier Notifier, bus events.Publisher, opts ...Option) *Monitor {
	m := &Monitor{
		votes:     votes,
		control:   control,
		notifier:  notifier,
		bus:       bus,
		cfg:       Config{}.withDefaults(),
		now:       time.Now,
		fired:     make(map[reminderKey]bool),
		newTicker: refresh.NewTicker,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize records the current vote count and status as the baseline
// without raising notifications.
func (m *Monitor) Initialize(ctx context.Context) error {
	count, countErr := m.votes.Count(ctx, models.CollectionVotes, nil)
	state, stateErr := m.control.Get(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if countErr == nil {
		m.haveVotes = true
		m.lastVoteCount = count
	}
	if stateErr == nil {
		m.lastStatus = state.Status
	}
	if err := errors.Join(countErr, stateErr); err != nil {
		return fmt.Errorf("initialize monitor: %w", err)
	}
	slog.Info("monitor initialized", "votes", count, "status", state.Status)
	return nil
}

// StartVoteMonitoring polls the vote count every VoteInterval until
// StopMonitoring or ctx is cancelled. Calling it again while running does nothing.
func (m *Monitor) StartVoteMonitoring(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stopVotes != nil {
		return
	}
	m.stopVotes = m.loop(ctx, "votes", m.cfg.VoteInterval, m.CheckVotes)
}

// StartVotingStatusMonitoring polls the vote-control state every StatusInterval.
func (m *Monitor) StartVotingStatusMonitoring(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.stopStatus != nil {
		return
	}
	m.stopStatus = m.loop(ctx, "status", m.cfg.StatusInterval, m.CheckStatus)
}

// StopMonitoring stops both loops and waits for a running check to return.
func (m *Monitor) StopMonitoring() {
	m.loopMu.Lock()
	for _, stop := range []context.CancelFunc{m.stopVotes, m.stopStatus} {
		if stop != nil {
			stop()
		}
	}
	m.stopVotes, m.stopStatus = nil, nil
	m.loopMu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) loop(parent context.Context, name string, every time.Duration, check func(context.Context) error) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	ticker := m.newTicker(every)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		slog.Debug("monitor loop started", "loop", name, "interval", every)

		for {
			select {
			case <-ctx.Done():
				slog.Debug("monitor loop stopped", "loop", name)
				return
			case <-ticker.C():
				if err := check(ctx); err != nil && !dispatch.IsAborted(err) {
					slog.Warn("monitor check failed", "loop", name, "error", err)
				}
			}
		}
	}()
	return cancel
}

// CheckVotes compares the vote count with the baseline. An increase raises
// one notification for the whole delta and publishes votesUpdated. A check
// started while another is running returns immediately.
func (m *Monitor) CheckVotes(ctx context.Context) error {
	if !m.votesBusy.CompareAndSwap(false, true) {
		slog.Debug("vote check skipped, previous check still running")
		return nil
	}
	defer m.votesBusy.Store(false)

	count, err := m.votes.Count(ctx, models.CollectionVotes, nil)
	if err != nil {
		return fmt.Errorf("count votes: %w", err)
	}

	m.mu.Lock()
	delta := 0
	if m.haveVotes {
		delta = count - m.lastVoteCount
	}
	m.haveVotes = true
	m.lastVoteCount = count
	m.mu.Unlock()

	if delta <= 0 {
		return nil
	}

	m.notify(ctx, models.Notification{
		Title:    "New votes",
		Message:  NewVotesMessage(delta),
		Type:     models.NotificationVote,
		Priority: models.PriorityLow,
	})
	m.publish(events.VotesUpdated)
	return nil
}

// NewVotesMessage formats a vote delta, e.g. "1 new vote" or "3 new votes".
func NewVotesMessage(n int) string {
	if n == 1 {
		return "1 new vote"
	}
	return humanize.Comma(int64(n)) + " new votes"
}

// CheckStatus evaluates the auto-stop date, then compares the vote-control
// status with the baseline and checks the deadline reminders.
func (m *Monitor) CheckStatus(ctx context.Context) error {
	if !m.statusBusy.CompareAndSwap(false, true) {
		slog.Debug("status check skipped, previous check still running")
		return nil
	}
	defer m.statusBusy.Store(false)

	state, autoStopped, err := m.control.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluate voting status: %w", err)
	}
	now := m.now()

	m.mu.Lock()
	previous := m.lastStatus
	m.lastStatus = state.Status
	reminders := m.dueRemindersLocked(state, now)
	m.mu.Unlock()

	if previous != "" && previous != state.Status {
		m.notify(ctx, statusNotification(state))
		if !autoStopped {
			m.publish(events.VotingStatusChanged)
		}
	}
	for _, n := range reminders {
		m.notify(ctx, n)
	}
	return nil
}

func statusNotification(state models.VoteControlState) models.Notification {
	if state.Status == models.StatusActive {
		return models.Notification{
			Title:    "Voting started",
			Message:  "Voting is now open",
			Type:     models.NotificationStatus,
			Priority: models.PriorityHigh,
		}
	}
	msg := "Voting is now closed"
	if state.Reason != "" {
		msg += ": " + state.Reason
	}
	return models.Notification{
		Title:    "Voting ended",
		Message:  msg,
		Type:     models.NotificationStatus,
		Priority: models.PriorityHigh,
	}
}

// dueRemindersLocked returns the reminders whose threshold was crossed
// within the deadline window and marks them fired. Reminders before the
// deadline only fire while voting is active.
func (m *Monitor) dueRemindersLocked(state models.VoteControlState, now time.Time) []models.Notification {
	if state.AutoStopDate == nil {
		return nil
	}
	deadline := *state.AutoStopDate
	remaining := deadline.Sub(now)

	var due []models.Notification
	for _, th := range m.cfg.Thresholds {
		if th > 0 && state.Status != models.StatusActive {
			continue
		}
		if remaining > th || remaining <= th-m.cfg.DeadlineWindow {
			continue
		}
		key := reminderKey{deadline: deadline.UnixMilli(), threshold: th}
		if m.fired[key] {
			continue
		}
		m.fired[key] = true
		due = append(due, reminder(th, deadline, now))
	}
	return due
}

func reminder(th time.Duration, deadline, now time.Time) models.Notification {
	if th <= 0 {
		return models.Notification{
			Title:    "Voting deadline reached",
			Message:  "The automatic stop date has been reached",
			Type:     models.NotificationDeadline,
			Priority: models.PriorityHigh,
		}
	}
	priority := models.PriorityMedium
	if th <= 15*time.Minute {
		priority = models.PriorityHigh
	}
	return models.Notification{
		Title:    "Voting closes in " + thresholdLabel(th),
		Message:  "Voting closes " + humanize.RelTime(deadline, now, "ago", "from now"),
		Type:     models.NotificationDeadline,
		Priority: priority,
	}
}

func thresholdLabel(d time.Duration) string {
	if d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	return plural(int(d/time.Minute), "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func (m *Monitor) notify(ctx context.Context, n models.Notification) {
	if m.notifier == nil {
		return
	}
	if _, err := m.notifier.Add(ctx, n); err != nil {
		slog.Warn("failed to record notification", "title", n.Title, "error", err)
	}
}

func (m *Monitor) publish(topic string) {
	if m.bus != nil {
		m.bus.Publish(topic)
	}
}
