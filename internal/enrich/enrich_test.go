package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"placewatch/internal/model"
	"placewatch/internal/sampler"
	"placewatch/internal/staleness"
	"placewatch/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSummarizer struct {
	fail  map[string]bool
	calls map[string]int
	sizes map[string]int
}

func (f *fakeSummarizer) Summarize(_ context.Context, items []model.FeedbackItem, name string) (string, error) {
	f.calls[name]++
	f.sizes[name] = len(items)
	if f.fail[name] {
		return "", errors.New("llm unavailable")
	}
	return "summary of " + name, nil
}

type fakeChecker struct {
	answer bool
	calls  int
}

func (f *fakeChecker) HasNewInfo(context.Context, string, []string) (bool, error) {
	f.calls++
	return f.answer, nil
}

func newTestStore(t *testing.T) *storage.DB {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addItems(t *testing.T, s *storage.DB, targetID string, n int, at time.Time) {
	t.Helper()
	items := make([]model.FeedbackItem, n)
	for i := range items {
		items[i] = model.FeedbackItem{
			Fingerprint: fmt.Sprintf("%s-%s-%d", targetID, at.Format("150405"), i),
			TargetID:    targetID,
			Text:        fmt.Sprintf("review %d of %s, long enough to be worth reading", i, targetID),
			CapturedAt:  at,
		}
	}
	if _, err := s.InsertItems(context.Background(), items); err != nil {
		t.Fatalf("insert items: %v", err)
	}
}

func TestRefresherRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	checkedAt := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	later := checkedAt.Add(48 * time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"fresh", "quiet", "busy", "broken", "empty", "idle"} {
		if err := s.UpsertTarget(ctx, &model.Target{ID: id, DisplayName: id}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	// Targets with an existing summary checked at checkedAt.
	for _, id := range []string{"quiet", "busy", "idle"} {
		if err := s.SaveSummary(ctx, id, "old summary", checkedAt, checkedAt); err != nil {
			t.Fatalf("save summary: %v", err)
		}
	}

	addItems(t, s, "fresh", 70, later)
	addItems(t, s, "quiet", 30, checkedAt.Add(-time.Hour))
	addItems(t, s, "quiet", 19, later)
	addItems(t, s, "busy", 25, later)
	addItems(t, s, "broken", 5, later)
	addItems(t, s, "idle", 10, checkedAt.Add(-time.Hour))

	sum := &fakeSummarizer{fail: map[string]bool{"broken": true}, calls: map[string]int{}, sizes: map[string]int{}}
	checker := &fakeChecker{answer: true}
	r := New(s,
		staleness.New(staleness.DefaultOptions(), checker, discard),
		sampler.New(sampler.DefaultQuotas(), rand.New(rand.NewPCG(1, 2))),
		sum,
		Options{PoolSize: 500, SampleSize: 50, Now: func() time.Time { return now }},
		discard,
	)

	st, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := Stats{Targets: 6, Regenerated: 2, Checked: 1, Skipped: 2, Failed: 1}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"fresh": 1, "busy": 1, "broken": 1}, sum.calls); diff != "" {
		t.Errorf("summarizer calls mismatch (-want +got):\n%s", diff)
	}
	if sum.sizes["fresh"] != 50 {
		t.Errorf("fresh sample = %d items, want 50", sum.sizes["fresh"])
	}
	if checker.calls != 1 {
		t.Errorf("checker calls = %d, want 1 (busy only)", checker.calls)
	}

	tests := []struct {
		id          string
		wantSummary string
		wantChecked *time.Time
	}{
		{id: "fresh", wantSummary: "summary of fresh", wantChecked: &later},
		{id: "quiet", wantSummary: "old summary", wantChecked: &later},
		{id: "busy", wantSummary: "summary of busy", wantChecked: &later},
		{id: "broken", wantSummary: "", wantChecked: nil},
		{id: "empty", wantSummary: "", wantChecked: nil},
		{id: "idle", wantSummary: "old summary", wantChecked: &checkedAt},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := s.GetTarget(ctx, tt.id)
			if err != nil {
				t.Fatalf("get target: %v", err)
			}
			if got.Summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", got.Summary, tt.wantSummary)
			}
			if diff := cmp.Diff(tt.wantChecked, got.AnalysisCheckedAt); diff != "" {
				t.Errorf("analysis checked mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// crawlingChecker stores more items for the target while it is being
// judged, the way a crawl run overlapping the pass would.
type crawlingChecker struct {
	t      *testing.T
	store  *storage.DB
	at     time.Time
	judged []int
}

func (c *crawlingChecker) HasNewInfo(_ context.Context, _ string, texts []string) (bool, error) {
	if len(c.judged) == 0 {
		addItems(c.t, c.store, "cafe", 25, c.at)
	}
	c.judged = append(c.judged, len(texts))
	return false, nil
}

func TestRefresherKeepsItemsStoredDuringPass(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	checkedAt := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	seen := checkedAt.Add(5 * time.Minute)
	crawled := checkedAt.Add(9*time.Minute + 59*time.Second)
	now := checkedAt.Add(10 * time.Minute)

	if err := s.UpsertTarget(ctx, &model.Target{ID: "cafe"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SaveSummary(ctx, "cafe", "old summary", checkedAt, checkedAt); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	addItems(t, s, "cafe", 25, seen)

	checker := &crawlingChecker{t: t, store: s, at: crawled}
	r := New(s,
		staleness.New(staleness.DefaultOptions(), checker, discard),
		sampler.New(sampler.DefaultQuotas(), rand.New(rand.NewPCG(1, 2))),
		&fakeSummarizer{calls: map[string]int{}, sizes: map[string]int{}},
		Options{Now: func() time.Time { return now }},
		discard,
	)

	for range 2 {
		if _, err := r.Run(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	if diff := cmp.Diff([]int{25, 25}, checker.judged); diff != "" {
		t.Errorf("judged items per pass mismatch (-want +got):\n%s", diff)
	}
	got, err := s.GetTarget(ctx, "cafe")
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	if !got.AnalysisCheckedAt.Equal(crawled) {
		t.Errorf("analysis checked = %v, want %v", got.AnalysisCheckedAt, crawled)
	}
}

func TestRefresherCancelled(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertTarget(context.Background(), &model.Target{ID: "a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r := New(s,
		staleness.New(staleness.DefaultOptions(), &fakeChecker{}, discard),
		sampler.New(sampler.DefaultQuotas(), nil),
		&fakeSummarizer{calls: map[string]int{}, sizes: map[string]int{}},
		DefaultOptions(),
		discard,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
