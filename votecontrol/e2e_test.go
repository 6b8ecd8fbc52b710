// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package votecontrol_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/danielhkuo/quickly-elect/events"
	"github.com/danielhkuo/quickly-elect/models"
	"github.com/danielhkuo/quickly-elect/monitor"
	"github.com/danielhkuo/quickly-elect/testutil/servertest"
	"github.com/danielhkuo/quickly-elect/votecontrol"
)

func TestAutoStopAgainstService(t *testing.T) {
	srv := servertest.Start(t)
	ctx := context.Background()

	admin := votecontrol.New(srv.AdminClient(), events.NewBus())
	past := time.Now().Add(-time.Second)
	if err := admin.SetAutoStopDate(ctx, &past); err != nil {
		t.Fatalf("SetAutoStopDate() error = %v", err)
	}

	// A voter's client evaluates the deadline and persists the stop.
	voter := votecontrol.New(srv.Client(nil), nil)
	active, err := voter.IsVotingActive(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, active, false)

	st, err := admin.Get(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, st.Status, models.StatusStopped)
	assert.Equal(t, st.Reason, votecontrol.AutoStopReason)
	assert.Equal(t, st.StoppedAt != nil, true)

	var count int
	err = srv.DB.QueryRow(`SELECT COUNT(*) FROM record WHERE collection = $1`, models.CollectionVoteControl).Scan(&count)
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 1)
}

func TestMonitoredAutoStopBroadcastsOnce(t *testing.T) {
	srv := servertest.Start(t)
	ctx := context.Background()
	bus := events.NewBus()

	client := srv.AdminClient()
	s := votecontrol.New(client, bus)
	m := monitor.New(client, s, nil, bus)
	assert.Equal(t, m.Initialize(ctx), nil)

	past := time.Now().Add(-time.Second)
	assert.Equal(t, s.SetAutoStopDate(ctx, &past), nil)

	changes := 0
	bus.Subscribe(events.VotingStatusChanged, func() { changes++ })
	assert.Equal(t, m.CheckStatus(ctx), nil)
	assert.Equal(t, changes, 1)

	st, err := s.Get(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, st.Status, models.StatusStopped)
}

func TestResultsVisibilityAgainstService(t *testing.T) {
	srv := servertest.Start(t)
	ctx := context.Background()
	bus := events.NewBus()

	fired := 0
	bus.Subscribe(events.ResultsVisibilityChanged, func() { fired++ })

	s := votecontrol.New(srv.AdminClient(), bus)
	assert.Equal(t, s.SetResultsVisibility(ctx, models.VisibilityPublic), nil)

	got, err := s.ResultsVisibility(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, got, models.VisibilityPublic)
	assert.Equal(t, fired, 1)

	assert.Equal(t, s.Start(ctx), nil)
	st, _ := s.Get(ctx)
	assert.Equal(t, st.ResultsVisibility, models.VisibilityPublic)
	assert.Equal(t, st.Status, models.StatusActive)
}
