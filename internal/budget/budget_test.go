package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestBudget(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(60*time.Second, clock.now)

	if diff := cmp.Diff(clock.t.Add(60*time.Second), b.Deadline()); diff != "" {
		t.Errorf("deadline mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name          string
		advance       time.Duration
		wantElapsed   time.Duration
		wantRemaining time.Duration
		wantExpired   bool
	}{
		{name: "fresh", advance: 0, wantElapsed: 0, wantRemaining: 60 * time.Second},
		{name: "first target", advance: 25 * time.Second, wantElapsed: 25 * time.Second, wantRemaining: 35 * time.Second},
		{name: "second target", advance: 25 * time.Second, wantElapsed: 50 * time.Second, wantRemaining: 10 * time.Second},
		{name: "third target", advance: 25 * time.Second, wantElapsed: 75 * time.Second, wantRemaining: 0, wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.t = clock.t.Add(tt.advance)
			if got := b.Elapsed(); got != tt.wantElapsed {
				t.Errorf("Elapsed() = %s, want %s", got, tt.wantElapsed)
			}
			if got := b.Remaining(); got != tt.wantRemaining {
				t.Errorf("Remaining() = %s, want %s", got, tt.wantRemaining)
			}
			if got := b.Expired(); got != tt.wantExpired {
				t.Errorf("Expired() = %v, want %v", got, tt.wantExpired)
			}
			err := b.Check()
			var exceeded ErrExceeded
			if got := errors.As(err, &exceeded); got != tt.wantExpired {
				t.Errorf("Check() = %v, want exceeded %v", err, tt.wantExpired)
			}
		})
	}
}

func TestBudgetExactLimit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := New(time.Minute, clock.now)
	clock.t = clock.t.Add(time.Minute)
	if !b.Expired() {
		t.Error("budget should be expired at exactly the limit")
	}
}

func TestBudgetDefaultClock(t *testing.T) {
	b := New(time.Hour, nil)
	if b.Expired() {
		t.Error("fresh budget expired")
	}
	if b.Started().IsZero() {
		t.Error("start time not set")
	}
}
