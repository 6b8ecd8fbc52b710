// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"log/slog"
	"sync"
)

// Topics carry no payload; subscribers re-query whatever they display.
const (
	VotesUpdated             = "votesUpdated"
	VotingStatusChanged      = "votingStatusChanged"
	ResultsVisibilityChanged = "resultsVisibilityChanged"
	CandidatesUpdated        = "candidatesUpdated"
	AuditLogsUpdated         = "auditLogsUpdated"
)

// Publisher is the part of Bus that producers depend on.
type Publisher interface {
	Publish(topic string)
}

type subscriber struct {
	id      uint64
	handler func()
}

// Bus is an in-process publish/subscribe hub keyed by topic.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscriber
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscriber)}
}

// Subscribe registers handler for topic and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic string, handler func()) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

// SubscribeChan delivers topic signals on a channel with a buffer of one.
// Signals that arrive while one is already pending are coalesced.
func (b *Bus) SubscribeChan(topic string) (<-chan struct{}, func()) {
	c := make(chan struct{}, 1)
	unsubscribe := b.Subscribe(topic, func() {
		select {
		case c <- struct{}{}:
		default:
		}
	})
	return c, unsubscribe
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish calls every handler subscribed to topic, in subscription order.
// A panicking handler is logged and does not stop the others.
func (b *Bus) Publish(topic string) {
	b.mu.Lock()
	subs := b.subs[topic]
	b.mu.Unlock()

	for _, s := range subs {
		deliver(topic, s.handler)
	}
}

func deliver(topic string, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "topic", topic, "panic", r)
		}
	}()
	handler()
}
