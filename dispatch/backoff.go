// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package dispatch

import (
	"math/rand/v2"
	"time"
)

// jitterBackOff yields base*2^attempt plus a uniform jitter in [0, jitter).
// With jitter <= base every delay is strictly larger than the previous one.
type jitterBackOff struct {
	base    time.Duration
	jitter  time.Duration
	attempt int
	rand    func() float64
}

func newJitterBackOff(base, jitter time.Duration) *jitterBackOff {
	return &jitterBackOff{base: base, jitter: jitter, rand: rand.Float64}
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	d := b.base << b.attempt
	if b.jitter > 0 {
		d += time.Duration(b.rand() * float64(b.jitter))
	}
	b.attempt++
	return d
}

func (b *jitterBackOff) Reset() {
	b.attempt = 0
}
