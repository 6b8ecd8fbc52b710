// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package votecontrol manages the election's voting switch.

The state lives in a single record with id "current" in the vote_control
collection. Get creates it with status ACTIVE and results HIDDEN the first
time it is read.

	ACTIVE --(Stop | auto-stop date passed)--> STOPPED --(Start)--> ACTIVE

Results visibility (HIDDEN or PUBLIC) is independent of the status and only
changes through SetResultsVisibility.

Every change reads the latest record, applies the change and writes the whole
state back. Concurrent changes from different clients are not detected; the
last write wins. Successful changes publish events.VotingStatusChanged, plus
events.ResultsVisibilityChanged when visibility changed.

No server timer enforces the auto-stop date. The next IsVotingActive or
Evaluate call after the date passes stores the STOPPED state with reason
"Automatic stop date reached". Evaluate also reports whether it performed
that stop, so pollers can avoid announcing the change a second time.
*/
package votecontrol
