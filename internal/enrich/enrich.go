// Package enrich refreshes target summaries out of band from crawling. For
// each target it weighs the items captured since the last check and only
// pays for a new summary when they are plentiful and novel.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"placewatch/internal/model"
	"placewatch/internal/sampler"
	"placewatch/internal/staleness"
	"placewatch/internal/storage"
)

// Summarizer writes a summary from a sample of items.
type Summarizer interface {
	Summarize(ctx context.Context, items []model.FeedbackItem, placeName string) (string, error)
}

// Options tune a pass.
type Options struct {
	// PoolSize caps how many of the newest items are offered to the sampler.
	PoolSize int
	// SampleSize is how many items the summarizer sees.
	SampleSize int
	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns a pool of 500 and a sample of 50.
func DefaultOptions() Options {
	return Options{PoolSize: 500, SampleSize: sampler.DefaultTotal}
}

// Stats counts what a pass did.
type Stats struct {
	Targets     int
	Regenerated int
	Checked     int
	Skipped     int
	Failed      int
}

// Refresher runs passes.
type Refresher struct {
	store      storage.Storage
	evaluator  *staleness.Evaluator
	sampler    *sampler.Sampler
	summarizer Summarizer
	opts       Options
	log        *slog.Logger
}

// New creates a Refresher.
func New(store storage.Storage, eval *staleness.Evaluator, smp *sampler.Sampler, sum Summarizer, opts Options, log *slog.Logger) *Refresher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = sampler.DefaultTotal
	}
	return &Refresher{store: store, evaluator: eval, sampler: smp, summarizer: sum, opts: opts, log: log}
}

// Run makes one pass over every target. Summarizer failures are isolated to
// their target and retried on the next pass; storage failures end the pass.
func (r *Refresher) Run(ctx context.Context) (Stats, error) {
	var st Stats
	targets, err := r.store.ListTargets(ctx)
	if err != nil {
		return st, fmt.Errorf("list targets: %w", err)
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Targets++
		if err := r.refresh(ctx, t, &st); err != nil {
			return st, err
		}
	}

	r.log.Info("enrichment finished",
		"targets", st.Targets,
		"regenerated", st.Regenerated,
		"checked", st.Checked,
		"skipped", st.Skipped,
		"failed", st.Failed,
	)
	return st, nil
}

func (r *Refresher) refresh(ctx context.Context, t model.Target, st *Stats) error {
	log := r.log.With("target_id", t.ID)

	queried := r.opts.Now().UTC()
	fresh, err := r.store.ItemsSince(ctx, t.ID, t.AnalysisCheckedAt)
	if err != nil {
		return fmt.Errorf("items since for %s: %w", t.ID, err)
	}
	until := watermark(fresh, queried)
	if len(fresh) == 0 && t.Summary != "" {
		st.Skipped++
		return nil
	}

	v := r.evaluator.Evaluate(ctx, t.Summary, fresh)
	log.Debug("staleness verdict", "reanalyze", v.Reanalyze, "considered", v.Considered, "reason", v.Reason)

	switch {
	case v.Reanalyze:
		pool, err := r.store.ListItems(ctx, t.ID, r.opts.PoolSize)
		if err != nil {
			return fmt.Errorf("list items for %s: %w", t.ID, err)
		}
		sample := r.sampler.Select(pool, r.opts.SampleSize)
		if len(sample) == 0 {
			st.Skipped++
			return nil
		}

		name := t.DisplayName
		if name == "" {
			name = t.ID
		}
		text, err := r.summarizer.Summarize(ctx, sample, name)
		if err != nil || text == "" {
			log.Warn("summary not generated", "error", err, "sample", len(sample))
			st.Failed++
			return nil
		}
		if err := r.store.SaveSummary(ctx, t.ID, text, r.opts.Now().UTC(), until); err != nil {
			return fmt.Errorf("save summary for %s: %w", t.ID, err)
		}
		log.Info("summary regenerated", "sample", len(sample), "reason", v.Reason)
		st.Regenerated++

	case v.AdvanceCheck:
		if err := r.store.MarkAnalysisChecked(ctx, t.ID, until); err != nil {
			return fmt.Errorf("mark checked for %s: %w", t.ID, err)
		}
		st.Checked++
	}
	return nil
}

// watermark is the capture time of the newest judged item. Items a crawl
// commits while the pass runs stay after it and are judged next time.
func watermark(judged []model.FeedbackItem, fallback time.Time) time.Time {
	if len(judged) == 0 {
		return fallback
	}
	var newest time.Time
	for _, it := range judged {
		if it.CapturedAt.After(newest) {
			newest = it.CapturedAt
		}
	}
	return newest.UTC()
}
