// Package fetcher retrieves the feedback items of a target that are not
// stored yet, revealing no more of the source than the expected number of
// new items requires.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placewatch/internal/agent"
	"placewatch/internal/fingerprint"
	"placewatch/internal/model"
	"placewatch/internal/reldate"
	"placewatch/internal/retry"
)

// ErrIndex wraps failures of the item index. The caller should treat them as
// persistence failures rather than as a problem with the target.
var ErrIndex = errors.New("item index")

// ItemIndex answers which fingerprints a target already has.
type ItemIndex interface {
	RecentFingerprints(ctx context.Context, targetID string, n int) ([]string, error)
	ExistingFingerprints(ctx context.Context, targetID string, fps []string) (map[string]bool, error)
}

// Options bound a single visit.
type Options struct {
	// SafetyFloor is the least number of new items expected, guarding against
	// a stale or missing displayed total.
	SafetyFloor int
	// Margin is added to the expected count before capping.
	Margin int
	// HardCap bounds how many items are revealed, whatever the estimate.
	HardCap int
	// StagnationTicks is how many reveals in a row may add nothing before the
	// reveal loop gives up.
	StagnationTicks int
	// RevealInterval is the pause between reveals.
	RevealInterval time.Duration
	// TargetTimeout bounds the reveal loop.
	TargetTimeout time.Duration
	// RecentMatch is how many of the newest stored fingerprints stop extraction.
	RecentMatch int
	// SkipUnchanged skips reveal and extraction when the displayed total
	// equals the last known count.
	SkipUnchanged bool
	// Retry governs opening the target.
	Retry retry.Policy

	// Sleep waits between reveals. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		SafetyFloor:     20,
		Margin:          10,
		HardCap:         100,
		StagnationTicks: 8,
		RevealInterval:  time.Second,
		TargetTimeout:   60 * time.Second,
		RecentMatch:     2,
		SkipUnchanged:   true,
		Retry:           retry.Policy{Attempts: 3, Backoff: 2 * time.Second},
	}
}

// Result is the outcome of one successful visit.
type Result struct {
	// Items are the new items, newest first.
	Items []model.FeedbackItem
	Info  agent.PageInfo
	// Revealed is how many items the surface showed when extraction ran.
	Revealed int
	// Goal is the reveal target that was computed for the visit.
	Goal int
	// EarlyStopped is set when extraction hit an already stored item.
	EarlyStopped bool
	// Unchanged is set when the displayed total matched the known count and
	// nothing was extracted.
	Unchanged bool
}

// Fetcher runs visits against an agent.
type Fetcher struct {
	opts  Options
	index ItemIndex
	log   *slog.Logger
}

// New creates a Fetcher.
func New(opts Options, index ItemIndex, log *slog.Logger) *Fetcher {
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry.NoRetry
	}
	return &Fetcher{opts: opts, index: index, log: log}
}

// Goal returns how many items should be revealed for a target whose source
// displays displayed items and of which known were seen last time. A
// displayed total of zero means unknown.
func (f *Fetcher) Goal(displayed, known int) int {
	expected := max(displayed-known, f.opts.SafetyFloor)
	return max(min(expected+f.opts.Margin, f.opts.HardCap), 1)
}

// Fetch visits t through a. It returns agent.ErrNoFeedbackSurface when the
// target has no feedback section, an error wrapping ErrIndex when the index
// fails, and any other error for failures worth retrying on a later visit.
func (f *Fetcher) Fetch(ctx context.Context, a agent.Agent, t model.Target) (Result, error) {
	log := f.log.With("target_id", t.ID)

	h, err := retry.DoValue(ctx, f.opts.Retry, func(ctx context.Context) (agent.Handle, error) {
		h, err := a.Open(ctx, t.ID)
		if errors.Is(err, agent.ErrNoFeedbackSurface) {
			return nil, retry.Permanent(err)
		}
		return h, err
	})
	if err != nil {
		if errors.Is(err, agent.ErrNoFeedbackSurface) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("open target: %w", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			log.Debug("close handle", "error", err)
		}
	}()

	res := Result{Info: h.Info()}
	known := t.LastKnownItemCount
	if f.opts.SkipUnchanged && res.Info.DisplayedTotal > 0 && res.Info.DisplayedTotal == known {
		log.Debug("displayed total unchanged", "count", known)
		res.Unchanged = true
		return res, nil
	}

	res.Goal = f.Goal(res.Info.DisplayedTotal, known)

	recent, err := f.index.RecentFingerprints(ctx, t.ID, f.opts.RecentMatch)
	if err != nil {
		return Result{}, fmt.Errorf("%w: recent fingerprints: %w", ErrIndex, err)
	}

	res.Revealed, err = f.reveal(ctx, h, res.Goal, log)
	if err != nil {
		return Result{}, err
	}

	raw, err := h.ExtractVisible(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("extract items: %w", err)
	}
	res.Revealed = max(res.Revealed, len(raw))

	candidates, early := f.candidates(t.ID, raw, recent)
	res.EarlyStopped = early

	res.Items, err = f.dropStored(ctx, t.ID, candidates)
	if err != nil {
		return Result{}, err
	}

	log.Debug("fetched",
		"goal", res.Goal,
		"revealed", res.Revealed,
		"new", len(res.Items),
		"early_stop", res.EarlyStopped,
	)
	return res, nil
}

// reveal grows the visible window until the goal is met, growth stalls, or
// the per-target timeout passes. Reveal failures count as stalled ticks.
func (f *Fetcher) reveal(ctx context.Context, h agent.Handle, goal int, log *slog.Logger) (int, error) {
	deadline := f.opts.Now().Add(f.opts.TargetTimeout)
	visible, stagnant := 0, 0
	for {
		n, err := h.RevealMore(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return visible, ctx.Err()
			}
			log.Debug("reveal failed", "error", err)
			n = visible
		}

		if n >= goal {
			return n, nil
		}
		if n <= visible {
			stagnant++
			if stagnant > f.opts.StagnationTicks {
				log.Debug("reveal stagnated", "visible", visible, "goal", goal)
				return visible, nil
			}
		} else {
			stagnant = 0
			visible = n
		}
		if !f.opts.Now().Before(deadline) {
			log.Debug("reveal timed out", "visible", visible, "goal", goal)
			return visible, nil
		}
		if err := f.opts.Sleep(ctx, f.opts.RevealInterval); err != nil {
			return visible, err
		}
	}
}

// candidates fingerprints raw items in source order, stopping at the first
// one that matches a recently stored item and skipping repeats.
func (f *Fetcher) candidates(targetID string, raw []model.RawItem, recent []string) ([]model.FeedbackItem, bool) {
	stop := make(map[string]bool, len(recent))
	for _, fp := range recent {
		stop[fp] = true
	}

	now := f.opts.Now()
	seen := make(map[string]bool, len(raw))
	var out []model.FeedbackItem
	for _, r := range raw {
		fp := fingerprint.FromRaw(targetID, r)
		if stop[fp] {
			return out, true
		}
		if seen[fp] {
			continue
		}
		seen[fp] = true

		it := model.FeedbackItem{
			Fingerprint:      fp,
			TargetID:         targetID,
			Author:           r.Author,
			Text:             r.Text,
			Rating:           r.Rating,
			RelativeDateText: r.DateText,
			CapturedAt:       now,
		}
		if d, ok := reldate.Resolve(r.DateText, now); ok {
			it.ResolvedDate = &d
		}
		out = append(out, it)
	}
	return out, false
}

func (f *Fetcher) dropStored(ctx context.Context, targetID string, items []model.FeedbackItem) ([]model.FeedbackItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	fps := make([]string, len(items))
	for i, it := range items {
		fps[i] = it.Fingerprint
	}
	stored, err := f.index.ExistingFingerprints(ctx, targetID, fps)
	if err != nil {
		return nil, fmt.Errorf("%w: existing fingerprints: %w", ErrIndex, err)
	}
	out := items[:0]
	for _, it := range items {
		if !stored[it.Fingerprint] {
			out = append(out, it)
		}
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
