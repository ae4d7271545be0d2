// Package budget tracks the wall-clock allowance of a single run.
package budget

import (
	"fmt"
	"time"
)

// ErrExceeded is returned by Check once the allowance is spent.
type ErrExceeded struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e ErrExceeded) Error() string {
	return fmt.Sprintf("run budget exceeded: %s elapsed, limit %s", e.Elapsed.Round(time.Second), e.Limit)
}

// Budget is a deadline fixed at construction. A Budget is not safe for
// concurrent use; the run controller owns it.
type Budget struct {
	max   time.Duration
	start time.Time
	now   func() time.Time
}

// New starts a budget of max measured with now. A nil now uses time.Now.
func New(max time.Duration, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{max: max, start: now(), now: now}
}

// Started returns the instant the budget began.
func (b *Budget) Started() time.Time { return b.start }

// Deadline returns the instant the budget runs out.
func (b *Budget) Deadline() time.Time { return b.start.Add(b.max) }

// Elapsed returns the time spent so far.
func (b *Budget) Elapsed() time.Duration { return b.now().Sub(b.start) }

// Remaining returns the time left, never negative.
func (b *Budget) Remaining() time.Duration {
	return max(b.max-b.Elapsed(), 0)
}

// Expired reports whether elapsed time has reached the limit.
func (b *Budget) Expired() bool {
	return b.Elapsed() >= b.max
}

// Check returns ErrExceeded once the budget is expired.
func (b *Budget) Check() error {
	if elapsed := b.Elapsed(); elapsed >= b.max {
		return ErrExceeded{Elapsed: elapsed, Limit: b.max}
	}
	return nil
}
