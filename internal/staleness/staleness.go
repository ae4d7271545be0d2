// Package staleness decides whether a target's stored summary should be
// regenerated from the items that arrived after it was last checked.
package staleness

import (
	"context"
	"log/slog"
	"strings"

	"placewatch/internal/model"
	"placewatch/internal/textutil"
)

// NoveltyChecker tells whether items add information the summary lacks.
type NoveltyChecker interface {
	HasNewInfo(ctx context.Context, summary string, texts []string) (bool, error)
}

// Options tune the evaluator.
type Options struct {
	// MinLength drops items whose cleaned text is not longer than this.
	MinLength int
	// MinVolume is the least number of substantive items worth asking about.
	MinVolume int
}

// DefaultOptions returns 30 characters and 20 items.
func DefaultOptions() Options {
	return Options{MinLength: 30, MinVolume: 20}
}

// Verdict is the decision for one target.
type Verdict struct {
	// Reanalyze asks for a new summary.
	Reanalyze bool
	// AdvanceCheck means the items were judged and the check timestamp may
	// move forward without regenerating.
	AdvanceCheck bool
	// Considered is how many items passed the length filter.
	Considered int
	Reason     string
}

// Evaluator applies the rules.
type Evaluator struct {
	opts    Options
	checker NoveltyChecker
	log     *slog.Logger
}

// New creates an Evaluator.
func New(opts Options, checker NoveltyChecker, log *slog.Logger) *Evaluator {
	return &Evaluator{opts: opts, checker: checker, log: log}
}

// Evaluate judges newItems against summary. A missing summary always asks
// for one. Too few substantive items never trigger the checker. A checker
// failure errs on the side of regenerating.
func (e *Evaluator) Evaluate(ctx context.Context, summary string, newItems []model.FeedbackItem) Verdict {
	if strings.TrimSpace(summary) == "" {
		return Verdict{Reanalyze: true, Reason: "no summary"}
	}

	var texts []string
	for _, it := range newItems {
		if textutil.Length(it.Text) > e.opts.MinLength {
			texts = append(texts, textutil.Clean(it.Text))
		}
	}
	v := Verdict{Considered: len(texts)}
	if len(texts) < e.opts.MinVolume {
		v.AdvanceCheck = true
		v.Reason = "not enough new items"
		return v
	}

	fresh, err := e.checker.HasNewInfo(ctx, summary, texts)
	if err != nil {
		e.log.Warn("novelty check failed, regenerating", "error", err)
		v.Reanalyze = true
		v.Reason = "novelty check failed"
		return v
	}
	if fresh {
		v.Reanalyze = true
		v.Reason = "new information"
		return v
	}
	v.AdvanceCheck = true
	v.Reason = "nothing new"
	return v
}

// ShouldReanalyze is Evaluate reduced to its main answer.
func (e *Evaluator) ShouldReanalyze(ctx context.Context, summary string, items []model.FeedbackItem) bool {
	return e.Evaluate(ctx, summary, items).Reanalyze
}
