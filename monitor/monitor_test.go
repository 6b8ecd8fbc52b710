// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/danielhkuo/quickly-elect/refresh"
)

type fakeCounter struct {
	mu    sync.Mutex
	count int
	err   error
	calls atomic.Int32
	// when set, Count blocks until the channel is closed
	gate chan struct{}
}

func (f *fakeCounter) set(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = n
}

func (f *fakeCounter) Count(ctx context.Context, collection string, where collections.Where) (int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.err
}

// fakeControl stops voting once the auto-stop date passes and announces it,
// like votecontrol.Service.
type fakeControl struct {
	mu    sync.Mutex
	state models.VoteControlState
	now   func() time.Time
	bus   events.Publisher
}

func (f *fakeControl) Get(ctx context.Context) (models.VoteControlState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeControl) Evaluate(ctx context.Context) (models.VoteControlState, bool, error) {
	f.mu.Lock()
	if f.state.Status != models.StatusActive || f.state.AutoStopDate == nil || f.now().Before(*f.state.AutoStopDate) {
		defer f.mu.Unlock()
		return f.state, false, nil
	}
	f.state.Status = models.StatusStopped
	f.state.Reason = "Automatic stop date reached"
	st := f.state
	f.mu.Unlock()

	if f.bus != nil {
		f.bus.Publish(events.VotingStatusChanged)
	}
	return st, true, nil
}

func (f *fakeControl) update(change func(*models.VoteControlState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change(&f.state)
}

type recordingNotifier struct {
	mu    sync.Mutex
	added []models.Notification
}

func (r *recordingNotifier) Add(ctx context.Context, n models.Notification) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, n)
	return n, nil
}

func (r *recordingNotifier) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.added...)
}

func (r *recordingNotifier) ofType(typ string) []models.Notification {
	var out []models.Notification
	for _, n := range r.all() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	counter  *fakeCounter
	control  *fakeControl
	notifier *recordingNotifier
	bus      *events.Bus
	clock    *clock
	monitor  *Monitor
}

var start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		counter:  &fakeCounter{},
		notifier: &recordingNotifier{},
		bus:      events.NewBus(),
		clock:    &clock{t: start},
	}
	h.control = &fakeControl{
		state: models.VoteControlState{Status: models.StatusActive, ResultsVisibility: models.VisibilityHidden},
		now:   h.clock.now,
		bus:   h.bus,
	}
	opts = append([]Option{WithClock(h.clock.now)}, opts...)
	h.monitor = New(h.counter, h.control, h.notifier, h.bus, opts...)
	return h
}

func TestVoteIncreaseNotifiesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	updates := 0
	h.bus.Subscribe(events.VotesUpdated, func() { updates++ })

	h.counter.set(5)
	assert.Equal(t, h.monitor.Initialize(ctx), nil)
	assert.Equal(t, len(h.notifier.all()), 0)

	h.counter.set(8)
	assert.Equal(t, h.monitor.CheckVotes(ctx), nil)
	votes := h.notifier.ofType(models.NotificationVote)
	assert.Equal(t, len(votes), 1)
	assert.Equal(t, votes[0].Message, "3 new votes")
	assert.Equal(t, updates, 1)

	// Same count: nothing new
	assert.Equal(t, h.monitor.CheckVotes(ctx), nil)
	assert.Equal(t, len(h.notifier.ofType(models.NotificationVote)), 1)
	assert.Equal(t, updates, 1)

	h.counter.set(9)
	h.monitor.CheckVotes(ctx)
	votes = h.notifier.ofType(models.NotificationVote)
	assert.Equal(t, len(votes), 2)
	assert.Equal(t, votes[1].Message, "1 new vote")
}

func TestFirstCheckWithoutInitializeSetsBaseline(t *testing.T) {
	h := newHarness(t)
	h.counter.set(40)
	assert.Equal(t, h.monitor.CheckVotes(context.Background()), nil)
	assert.Equal(t, len(h.notifier.all()), 0)
}

func TestFailedCheckKeepsBaseline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter.set(2)
	h.monitor.Initialize(ctx)

	h.counter.mu.Lock()
	h.counter.err = errors.New("503 Service Unavailable")
	h.counter.count = 7
	h.counter.mu.Unlock()
	assert.NotEqual(t, h.monitor.CheckVotes(ctx), nil)

	h.counter.mu.Lock()
	h.counter.err = nil
	h.counter.mu.Unlock()
	assert.Equal(t, h.monitor.CheckVotes(ctx), nil)

	votes := h.notifier.ofType(models.NotificationVote)
	assert.Equal(t, len(votes), 1)
	assert.Equal(t, votes[0].Message, "5 new votes")
}

func TestOverlappingVoteCheckIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.monitor.Initialize(ctx)

	gate := make(chan struct{})
	h.counter.mu.Lock()
	h.counter.gate = gate
	h.counter.count = 4
	h.counter.mu.Unlock()
	calls := h.counter.calls.Load()

	done := make(chan error)
	go func() { done <- h.monitor.CheckVotes(ctx) }()
	for h.counter.calls.Load() == calls {
		time.Sleep(time.Millisecond)
	}

	// The first check is blocked inside Count; this one must not start.
	assert.Equal(t, h.monitor.CheckVotes(ctx), nil)
	assert.Equal(t, h.counter.calls.Load(), calls+1)

	close(gate)
	assert.Equal(t, <-done, nil)

	votes := h.notifier.ofType(models.NotificationVote)
	assert.Equal(t, len(votes), 1)
	assert.Equal(t, votes[0].Message, "4 new votes")
}

func TestConcurrentChecksCountEveryVoteOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.monitor.Initialize(ctx)
	h.counter.set(10)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.monitor.CheckVotes(ctx)
		}()
	}
	wg.Wait()
	h.monitor.CheckVotes(ctx)

	total := 0
	for _, n := range h.notifier.ofType(models.NotificationVote) {
		var k int
		if _, err := fmt.Sscanf(n.Message, "%d new vote", &k); err != nil {
			t.Fatalf("unexpected message %q", n.Message)
		}
		total += k
	}
	assert.Equal(t, total, 10)
}

func TestStatusTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changes := 0
	h.bus.Subscribe(events.VotingStatusChanged, func() { changes++ })

	assert.Equal(t, h.monitor.Initialize(ctx), nil)
	assert.Equal(t, h.monitor.CheckStatus(ctx), nil)
	assert.Equal(t, len(h.notifier.all()), 0)

	h.control.update(func(st *models.VoteControlState) {
		st.Status = models.StatusStopped
		st.Reason = "Count in progress"
	})
	h.monitor.CheckStatus(ctx)
	h.monitor.CheckStatus(ctx)

	status := h.notifier.ofType(models.NotificationStatus)
	assert.Equal(t, len(status), 1)
	assert.Equal(t, status[0].Title, "Voting ended")
	assert.Equal(t, status[0].Message, "Voting is now closed: Count in progress")
	assert.Equal(t, status[0].Priority, models.PriorityHigh)
	assert.Equal(t, changes, 1)

	h.control.update(func(st *models.VoteControlState) { st.Status = models.StatusActive })
	h.monitor.CheckStatus(ctx)

	status = h.notifier.ofType(models.NotificationStatus)
	assert.Equal(t, len(status), 2)
	assert.Equal(t, status[1].Title, "Voting started")
	assert.Equal(t, changes, 2)
}

func TestAutoStopBroadcastsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changes := 0
	h.bus.Subscribe(events.VotingStatusChanged, func() { changes++ })

	deadline := start.Add(time.Minute)
	h.control.update(func(st *models.VoteControlState) { st.AutoStopDate = &deadline })
	assert.Equal(t, h.monitor.Initialize(ctx), nil)

	h.clock.set(deadline.Add(time.Second))
	assert.Equal(t, h.monitor.CheckStatus(ctx), nil)
	assert.Equal(t, changes, 1)

	// The stop is still reported to the user once.
	status := h.notifier.ofType(models.NotificationStatus)
	assert.Equal(t, len(status), 1)
	assert.Equal(t, status[0].Message, "Voting is now closed: Automatic stop date reached")

	h.monitor.CheckStatus(ctx)
	assert.Equal(t, changes, 1)
}

func TestDeadlineRemindersFireOncePerThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	deadline := start.Add(61 * time.Minute)
	h.control.update(func(st *models.VoteControlState) { st.AutoStopDate = &deadline })
	h.monitor.Initialize(ctx)

	// Tick every 5 seconds until two minutes past the deadline.
	for now := start; !now.After(deadline.Add(2 * time.Minute)); now = now.Add(5 * time.Second) {
		h.clock.set(now)
		assert.Equal(t, h.monitor.CheckStatus(ctx), nil)
	}

	reminders := h.notifier.ofType(models.NotificationDeadline)
	assert.Equal(t, len(reminders), 3)
	assert.Equal(t, reminders[0].Title, "Voting closes in 1 hour")
	assert.Equal(t, reminders[0].Priority, models.PriorityMedium)
	assert.Equal(t, reminders[0].Message, "Voting closes 1 hour from now")
	assert.Equal(t, reminders[1].Title, "Voting closes in 15 minutes")
	assert.Equal(t, reminders[1].Priority, models.PriorityHigh)
	assert.Equal(t, reminders[2].Title, "Voting deadline reached")

	// The auto-stop itself is reported as a status change.
	status := h.notifier.ofType(models.NotificationStatus)
	assert.Equal(t, len(status), 1)
	assert.Equal(t, status[0].Title, "Voting ended")
}

func TestStaleThresholdsDoNotFire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Monitoring starts 40 minutes before the deadline: the one hour
	// reminder is long past its window.
	deadline := start.Add(40 * time.Minute)
	h.control.update(func(st *models.VoteControlState) { st.AutoStopDate = &deadline })

	for now := start; now.Before(deadline.Add(-14 * time.Minute)); now = now.Add(10 * time.Second) {
		h.clock.set(now)
		h.monitor.CheckStatus(ctx)
	}

	reminders := h.notifier.ofType(models.NotificationDeadline)
	assert.Equal(t, len(reminders), 1)
	assert.Equal(t, reminders[0].Title, "Voting closes in 15 minutes")
}

func TestNewDeadlineRearmsReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := start.Add(15 * time.Minute)
	h.control.update(func(st *models.VoteControlState) { st.AutoStopDate = &first })
	h.monitor.CheckStatus(ctx)
	h.monitor.CheckStatus(ctx)
	assert.Equal(t, len(h.notifier.ofType(models.NotificationDeadline)), 1)

	// Deadline moved: the same threshold fires again for the new date.
	second := start.Add(14*time.Minute + 30*time.Second)
	h.control.update(func(st *models.VoteControlState) { st.AutoStopDate = &second })
	h.monitor.CheckStatus(ctx)
	h.monitor.CheckStatus(ctx)
	assert.Equal(t, len(h.notifier.ofType(models.NotificationDeadline)), 2)
}

func TestRemindersSkippedWhileStopped(t *testing.T) {
	h := newHarness(t)
	deadline := start.Add(10 * time.Minute)
	h.control.update(func(st *models.VoteControlState) {
		st.Status = models.StatusStopped
		st.AutoStopDate = &deadline
	})
	h.clock.set(deadline.Add(-15 * time.Minute).Add(20 * time.Second))
	h.monitor.CheckStatus(context.Background())
	assert.Equal(t, len(h.notifier.ofType(models.NotificationDeadline)), 0)
}

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func TestMonitoringLoops(t *testing.T) {
	var (
		mu      sync.Mutex
		tickers = map[time.Duration]*fakeTicker{}
		starts  int
	)
	newTicker := func(d time.Duration) refresh.Ticker {
		mu.Lock()
		defer mu.Unlock()
		starts++
		tk := &fakeTicker{c: make(chan time.Time)}
		tickers[d] = tk
		return tk
	}

	h := newHarness(t, WithTicker(newTicker), WithConfig(Config{
		VoteInterval:   30 * time.Second,
		StatusInterval: 10 * time.Second,
	}))
	ctx := context.Background()
	h.monitor.Initialize(ctx)

	h.monitor.StartVoteMonitoring(ctx)
	h.monitor.StartVoteMonitoring(ctx)
	h.monitor.StartVotingStatusMonitoring(ctx)
	mu.Lock()
	assert.Equal(t, starts, 2)
	votes, status := tickers[30*time.Second], tickers[10*time.Second]
	mu.Unlock()

	h.counter.set(2)
	votes.c <- time.Now()
	votes.c <- time.Now() // second send waits for the first check to finish

	h.control.update(func(st *models.VoteControlState) { st.Status = models.StatusStopped })
	status.c <- time.Now()
	status.c <- time.Now()

	h.monitor.StopMonitoring()
	assert.Equal(t, votes.stopped.Load(), true)
	assert.Equal(t, status.stopped.Load(), true)

	assert.Equal(t, len(h.notifier.ofType(models.NotificationVote)), 1)
	assert.Equal(t, len(h.notifier.ofType(models.NotificationStatus)), 1)

	// Stopping twice is harmless, and monitoring can start again.
	h.monitor.StopMonitoring()
	h.monitor.StartVoteMonitoring(ctx)
	h.monitor.StopMonitoring()
	mu.Lock()
	assert.Equal(t, starts, 3)
	mu.Unlock()
}

func TestNewVotesMessage(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "1 new vote"},
		{2, "2 new votes"},
		{1200, "1,200 new votes"},
	}
	for _, tt := range tests {
		assert.Equal(t, NewVotesMessage(tt.n), tt.want)
	}
}

func TestThresholdLabel(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Hour, "1 hour"},
		{2 * time.Hour, "2 hours"},
		{15 * time.Minute, "15 minutes"},
		{time.Minute, "1 minute"},
		{90 * time.Minute, "90 minutes"},
	}
	for _, tt := range tests {
		assert.Equal(t, thresholdLabel(tt.d), tt.want)
	}
}
