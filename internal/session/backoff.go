package session

import "time"

// Backoff tracks the reconnect period. It doubles on each failure up to
// max and returns to min after a successful connection.
//
// Backoff is not safe for concurrent use; the Machine guards it.
type Backoff struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at min. A max below min is raised
// to min.
func NewBackoff(min, max time.Duration) *Backoff {
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max, current: min}
}

// Current returns the period used for the next retry.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Fail doubles the period, capped at max, and returns it.
func (b *Backoff) Fail() time.Duration {
	next := b.current * 2
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next
	return b.current
}

// Reset returns the period to min.
func (b *Backoff) Reset() {
	b.current = b.min
}
