// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package monitor detects election changes by polling and turns them into
notifications and events.

Two loops run independently:

  - Vote loop (every 30 seconds by default): counts the votes collection. When
    the count rose since the last check, one notification such as "3 new votes"
    is recorded and events.VotesUpdated is published.
  - Status loop (every 10 seconds by default): evaluates the auto-stop date
    and reads the resulting vote-control state. A status change is reported
    once and published as events.VotingStatusChanged, unless the check itself
    performed the auto-stop, which votecontrol has already announced.

The status loop also sends reminders before the auto-stop date, at one hour,
at 15 minutes and when it is reached. A reminder is due while the time left is
inside (threshold-DeadlineWindow, threshold]. Each reminder fires at most once
per auto-stop date, however often the loop ticks inside that window. A new
date re-arms all of them.

# Baseline

Initialize records the current count and status without notifying, so the
first check after a restart does not report every existing vote as new. The
baseline is compared and updated under one lock, and a check that starts while
another check of the same kind is still running returns immediately. Slow
responses therefore cannot double-count a delta.

A failed check leaves the baseline untouched and is logged; the next tick
tries again.

	m := monitor.New(client, control, store, bus)
	if err := m.Initialize(ctx); err != nil {
		slog.Warn("monitor baseline incomplete", "error", err)
	}
	m.StartVoteMonitoring(ctx)
	m.StartVotingStatusMonitoring(ctx)
	defer m.StopMonitoring()

High priority notifications reach the user as toasts through the
notify.Store's Toaster.
*/
package monitor
