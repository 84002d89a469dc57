// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// Package backoff provides a jittered exponential backoff for polling and
// retry loops.
package backoff

import (
	"math/rand/v2"
	"sync"
	"time"
)

type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64

	mu       sync.Mutex
	current  time.Duration
	attempts int
}

func New(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		current:    min,
	}
}

// Next returns the wait before the following attempt, with +/-20% jitter,
// and advances the schedule. The jittered wait is clamped to
// [minDelay, maxDelay]: a reconnect poller must never sleep past the
// configured ceiling, or connectivity recovery is detected late.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	jitter := time.Duration((rand.Float64() - 0.5) * 0.4 * float64(b.current))
	wait := b.current + jitter
	if wait < b.minDelay {
		wait = b.minDelay
	}
	if wait > b.maxDelay {
		wait = b.maxDelay
	}

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
