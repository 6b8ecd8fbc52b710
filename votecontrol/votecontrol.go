// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package votecontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/quickly-elect/collections"
	"github.com/danielhkuo/quickly-elect/dispatch"
	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/models"
)

// StateID is the id of the single vote-control record.
const StateID = "current"

// AutoStopReason is recorded when the auto-stop date stops voting.
const AutoStopReason = "Automatic stop date reached"

// AutoStopActor is recorded as StoppedBy for automatic stops.
const AutoStopActor = "system"

var ErrInvalidVisibility = errors.New("results visibility must be HIDDEN or PUBLIC")

// Records is the part of collections.Client the service uses.
type Records interface {
	Get(ctx context.Context, collection, id string) (models.Record, error)
	Create(ctx context.Context, collection string, data any) (models.Record, error)
	Update(ctx context.Context, collection, id string, patch any) (models.Record, error)
}

// Notifier records notifications about deadline changes.
type Notifier interface {
	Add(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Service reads and changes the election's vote-control state. Every change
// is a read-modify-write of the latest stored state; concurrent writers from
// other clients are not detected and the last write wins.
type Service struct {
	records  Records
	bus      events.Publisher
	notifier Notifier
	now      func() time.Time

	// serializes read-modify-write within this process
	mu sync.Mutex
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a service. bus may be nil when nobody listens.
func New(records Records, bus events.Publisher, opts ...Option) *Service {
	s := &Service{records: records, bus: bus, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultState() models.VoteControlState {
	return models.VoteControlState{
		ID:                StateID,
		Status:            models.StatusActive,
		ResultsVisibility: models.VisibilityHidden,
	}
}

// Get returns the current state, creating the default ACTIVE/HIDDEN state
// if none is stored yet.
func (s *Service) Get(ctx context.Context) (models.VoteControlState, error) {
	rec, err := s.records.Get(ctx, models.CollectionVoteControl, StateID)
	if dispatch.StatusOf(err) == http.StatusNotFound {
		rec, err = s.records.Create(ctx, models.CollectionVoteControl, defaultState())
		if dispatch.StatusOf(err) == http.StatusConflict {
			// another client created it first
			rec, err = s.records.Get(ctx, models.CollectionVoteControl, StateID)
		} else if err == nil {
			slog.Info("vote control state created", "id", StateID)
		}
	}
	if err != nil {
		return models.VoteControlState{}, err
	}

	state, err := collections.Decode[models.VoteControlState](rec)
	if err != nil {
		return models.VoteControlState{}, err
	}
	if state.Status == "" {
		state.Status = models.StatusActive
	}
	if state.ResultsVisibility == "" {
		state.ResultsVisibility = models.VisibilityHidden
	}
	return state, nil
}

// Set applies change to the latest state and writes the result back.
// On success it publishes votingStatusChanged, and resultsVisibilityChanged
// as well when the visibility flag changed.
func (s *Service) Set(ctx context.Context, change func(*models.VoteControlState)) (models.VoteControlState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, change)
}

func (s *Service) setLocked(ctx context.Context, change func(*models.VoteControlState)) (models.VoteControlState, error) {
	before, err := s.Get(ctx)
	if err != nil {
		return models.VoteControlState{}, fmt.Errorf("read vote control: %w", err)
	}

	after := before
	change(&after)
	after.ID = StateID

	if _, err := s.records.Update(ctx, models.CollectionVoteControl, StateID, after); err != nil {
		return models.VoteControlState{}, fmt.Errorf("write vote control: %w", err)
	}

	s.publish(events.VotingStatusChanged)
	if after.ResultsVisibility != before.ResultsVisibility {
		s.publish(events.ResultsVisibilityChanged)
	}
	return after, nil
}

func (s *Service) publish(topic string) {
	if s.bus != nil {
		s.bus.Publish(topic)
	}
}

// Start resumes voting and clears the record of the last stop.
func (s *Service) Start(ctx context.Context) error {
	_, err := s.Set(ctx, func(st *models.VoteControlState) {
		st.Status = models.StatusActive
		st.StoppedAt = nil
		st.StoppedBy = ""
		st.Reason = ""
	})
	if err == nil {
		slog.Info("voting started")
	}
	return err
}

// Stop ends voting, recording who stopped it and why.
func (s *Service) Stop(ctx context.Context, by, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.stopLocked(ctx, by, reason)
	return err
}

func (s *Service) stopLocked(ctx context.Context, by, reason string) (models.VoteControlState, error) {
	now := s.now().UTC()
	st, err := s.setLocked(ctx, func(st *models.VoteControlState) {
		st.Status = models.StatusStopped
		st.StoppedAt = &now
		st.StoppedBy = by
		st.Reason = reason
	})
	if err == nil {
		slog.Info("voting stopped", "by", by, "reason", reason)
	}
	return st, err
}

// SetAutoStopDate schedules the automatic stop, or clears it when at is nil,
// and records a notification about the change.
func (s *Service) SetAutoStopDate(ctx context.Context, at *time.Time) error {
	var date *time.Time
	if at != nil {
		t := at.UTC()
		date = &t
	}
	if _, err := s.Set(ctx, func(st *models.VoteControlState) { st.AutoStopDate = date }); err != nil {
		return err
	}

	n := models.Notification{
		Title:    "Auto-stop cleared",
		Message:  "Voting will no longer stop automatically",
		Type:     models.NotificationDeadline,
		Priority: models.PriorityMedium,
	}
	if date != nil {
		n.Title = "Auto-stop scheduled"
		n.Message = fmt.Sprintf("Voting will stop automatically %s (%s)",
			humanize.RelTime(*date, s.now(), "ago", "from now"),
			date.Format("Jan 2, 2006 15:04 MST"))
	}
	s.notify(ctx, n)
	return nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Add(ctx, n); err != nil {
		slog.Warn("failed to record notification", "title", n.Title, "error", err)
	}
}

func (s *Service) SetResultsVisibility(ctx context.Context, visibility string) error {
	if visibility != models.VisibilityHidden && visibility != models.VisibilityPublic {
		return ErrInvalidVisibility
	}
	_, err := s.Set(ctx, func(st *models.VoteControlState) { st.ResultsVisibility = visibility })
	return err
}

func (s *Service) ResultsVisibility(ctx context.Context) (string, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return st.ResultsVisibility, nil
}

// IsVotingActive reports whether votes may be cast. An ACTIVE state whose
// auto-stop date has passed is stopped and stored as STOPPED first.
func (s *Service) IsVotingActive(ctx context.Context) (bool, error) {
	st, _, err := s.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	return st.Status == models.StatusActive, nil
}

// Evaluate applies the auto-stop rule and returns the resulting state.
// autoStopped reports whether this call stopped voting, in which case
// votingStatusChanged has already been published.
func (s *Service) Evaluate(ctx context.Context) (st models.VoteControlState, autoStopped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err = s.Get(ctx)
	if err != nil {
		return models.VoteControlState{}, false, err
	}
	if st.Status != models.StatusActive || !Expired(st, s.now()) {
		return st, false, nil
	}

	st, err = s.stopLocked(ctx, AutoStopActor, AutoStopReason)
	if err != nil {
		return models.VoteControlState{}, false, fmt.Errorf("auto-stop: %w", err)
	}
	return st, true, nil
}

// Expired reports whether st has an auto-stop date at or before now.
func Expired(st models.VoteControlState, now time.Time) bool {
	return st.AutoStopDate != nil && !now.Before(*st.AutoStopDate)
}
