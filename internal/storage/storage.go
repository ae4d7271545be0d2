// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"placewatch/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
//
// Every write is an upsert or an append keyed by immutable identity
// (target ID, item fingerprint), so retrying a write is always safe.
type Storage interface {
	UpsertTarget(ctx context.Context, t *model.Target) error
	GetTarget(ctx context.Context, id string) (*model.Target, error)
	ListTargets(ctx context.Context) ([]model.Target, error)
	ListDueTargets(ctx context.Context, limit int) ([]model.Target, error)
	SaveSummary(ctx context.Context, targetID, summary string, at, checkedUntil time.Time) error
	MarkAnalysisChecked(ctx context.Context, targetID string, at time.Time) error

	RecordOutcome(ctx context.Context, o *model.Outcome) error
	LatestOutcome(ctx context.Context, targetID string) (*model.Outcome, error)
	ListOutcomes(ctx context.Context, targetID string, limit int) ([]model.Outcome, error)

	InsertItems(ctx context.Context, items []model.FeedbackItem) (int, error)
	RecentFingerprints(ctx context.Context, targetID string, n int) ([]string, error)
	ExistingFingerprints(ctx context.Context, targetID string, fps []string) (map[string]bool, error)
	ListItems(ctx context.Context, targetID string, limit int) ([]model.FeedbackItem, error)
	ItemsSince(ctx context.Context, targetID string, since *time.Time) ([]model.FeedbackItem, error)

	RecordCountSnapshot(ctx context.Context, targetID string, count int, rating *float64) (int, error)
	ListCountHistory(ctx context.Context, targetID string, limit int) ([]model.CountSnapshot, error)

	Stats(ctx context.Context) (model.Stats, error)

	Close() error
}
