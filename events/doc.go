// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events broadcasts payload-free change signals inside one process.

	bus := events.NewBus()
	stop := bus.Subscribe(events.VotesUpdated, func() { reload() })
	defer stop()

	bus.Publish(events.VotesUpdated)

Handlers run synchronously on the publishing goroutine. A panicking handler
is logged and does not affect the others. SubscribeChan coalesces signals
into a channel with a buffer of one for select loops.
*/
package events
