// Package agent defines the contract between the fetcher and whatever drives
// a target's feedback surface (a headless browser, a review feed).
package agent

import (
	"context"
	"errors"

	"placewatch/internal/model"
)

// ErrNoFeedbackSurface is returned by Agent.Open when the target page loads
// but exposes no feedback section. It is a final answer for the visit, not a
// transient failure.
var ErrNoFeedbackSurface = errors.New("no feedback surface")

// PageInfo is what the target page states about itself.
type PageInfo struct {
	DisplayName string
	Address     string
	// DisplayedTotal is the item count the source shows. Zero means unknown.
	DisplayedTotal int
	Rating         *float64
}

// Agent opens targets. An Agent is used by one goroutine at a time.
type Agent interface {
	Open(ctx context.Context, locator string) (Handle, error)
	Close() error
}

// Handle is an opened feedback surface. Items are exposed newest first and
// the visible window only grows.
type Handle interface {
	Info() PageInfo
	// RevealMore asks the surface to load further items and returns how many
	// are visible afterwards.
	RevealMore(ctx context.Context) (int, error)
	// ExtractVisible returns every visible item in source order.
	ExtractVisible(ctx context.Context) ([]model.RawItem, error)
	Close() error
}

// Factory establishes a fresh agent. The run controller calls it at start
// and whenever it recycles a misbehaving or long-lived agent.
type Factory func(ctx context.Context) (Agent, error)
