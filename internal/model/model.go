// Package model defines the domain types used across the application.
package model

import "time"

// Target is a monitored place whose feedback items are tracked over time.
type Target struct {
	ID                 string
	DisplayName        string
	Address            string
	Latitude           *float64
	Longitude          *float64
	Zone               string
	Riverside          *bool
	LastKnownItemCount int
	LastRating         *float64
	LastSyncAt         *time.Time
	Summary            string
	SummaryUpdatedAt   *time.Time
	AnalysisCheckedAt  *time.Time
	CreatedAt          time.Time
}

// Pending reports whether the target has never completed a visit.
func (t Target) Pending() bool {
	return t.LastSyncAt == nil
}

// FeedbackItem is one review attached to a target. Items are append-only.
type FeedbackItem struct {
	Fingerprint      string
	TargetID         string
	Author           string
	Text             string
	Rating           *float64
	RelativeDateText string
	ResolvedDate     *time.Time
	CapturedAt       time.Time
}

// RawItem is a review as extracted by a fetch agent, before identity is assigned.
type RawItem struct {
	Author   string
	Text     string
	DateText string
	Rating   *float64
}

// Status is the result of one visit to a target.
type Status string

// Visit statuses.
const (
	StatusSuccess           Status = "SUCCESS"
	StatusNoFeedbackSurface Status = "NO_FEEDBACK_SURFACE"
	StatusTransientError    Status = "TRANSIENT_ERROR"
	StatusRunTimeout        Status = "RUN_TIMEOUT"
)

// AdvancesSync reports whether an outcome with this status moves the
// target's last_sync_at forward. Failed and interrupted visits keep the old
// value so the target stays at the front of the queue.
func (s Status) AdvancesSync() bool {
	return s == StatusSuccess || s == StatusNoFeedbackSurface
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusNoFeedbackSurface, StatusTransientError, StatusRunTimeout:
		return true
	}
	return false
}

// Outcome records one visit attempt. Outcomes are never updated.
type Outcome struct {
	ID         int64
	RunID      string
	TargetID   string
	Status     Status
	Message    string
	Attempt    int
	NewItems   int
	OccurredAt time.Time
}

// CountSnapshot is a point-in-time record of the item total displayed by the source.
type CountSnapshot struct {
	TargetID   string
	Count      int
	Rating     *float64
	Delta      int
	RecordedAt time.Time
}

// Stats holds aggregate counters over the whole store.
type Stats struct {
	Targets        int
	PendingTargets int
	Items          int
	ItemsLast24h   int
	Summaries      int
}
