// Package scheduler runs one time-budgeted crawl over the targets that are
// most overdue for a visit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"placewatch/internal/agent"
	"placewatch/internal/budget"
	"placewatch/internal/fetcher"
	"placewatch/internal/geo"
	"placewatch/internal/metrics"
	"placewatch/internal/model"
	"placewatch/internal/storage"
	"placewatch/internal/textutil"
)

const (
	maxMessage    = 200
	reportTimeout = 30 * time.Second

	recycleFailures = "failures"
	recyclePeriodic = "periodic"
)

// Notifier receives the report of a finished run.
type Notifier interface {
	NotifyRun(ctx context.Context, r Report) error
}

// Options tune a run.
type Options struct {
	// MaxDuration is the wall-clock budget of the run.
	MaxDuration time.Duration
	// BatchSize caps how many due targets are loaded.
	BatchSize int
	// PaceInterval is the least time between two target starts.
	PaceInterval time.Duration
	// RecycleEvery recreates the agent after this many targets. Zero disables it.
	RecycleEvery int
	// MaxConsecutiveFailures recreates the agent after this many transient
	// failures in a row.
	MaxConsecutiveFailures int
	// Lookahead declines to start a target when the time left is shorter
	// than the average time a target has taken so far in the run.
	Lookahead bool
	// PushJob names the Pushgateway job.
	PushJob string
	// PushURL is the Pushgateway address. Empty disables pushing.
	PushURL string

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		MaxDuration:            5 * time.Hour,
		BatchSize:              10000,
		PaceInterval:           1500 * time.Millisecond,
		RecycleEvery:           50,
		MaxConsecutiveFailures: 3,
		Lookahead:              true,
		PushJob:                "placewatch_crawl",
	}
}

// Report summarizes one run.
type Report struct {
	RunID     string
	Started   time.Time
	Elapsed   time.Duration
	Due       int
	Processed int
	Statuses  map[model.Status]int
	NewItems  int
	Recycles  int
	// MoreWork is set when due targets were left unvisited because the
	// budget ran out or the run was cancelled.
	MoreWork bool
}

// Controller owns the fetch agent for the duration of a run.
type Controller struct {
	store    storage.Storage
	fetcher  *fetcher.Fetcher
	factory  agent.Factory
	zones    geo.Lookup
	notifier Notifier
	metrics  *metrics.Recorder
	opts     Options
	log      *slog.Logger
}

// New creates a Controller.
func New(store storage.Storage, f *fetcher.Fetcher, factory agent.Factory, opts Options, log *slog.Logger) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	return &Controller{store: store, fetcher: f, factory: factory, opts: opts, log: log}
}

// SetZones installs the lookup used to place newly located targets.
func (c *Controller) SetZones(z geo.Lookup) { c.zones = z }

// SetNotifier installs the run report receiver.
func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

// SetMetrics installs the metrics recorder.
func (c *Controller) SetMetrics(m *metrics.Recorder) { c.metrics = m }

// Run visits due targets, oldest first, until they are all done, the budget
// is spent, or ctx is cancelled. A target that was started is always
// finished and its outcome recorded. The returned error is set only when the
// agent cannot be established or persistence fails.
func (c *Controller) Run(ctx context.Context) (Report, error) {
	b := budget.New(c.opts.MaxDuration, c.opts.Now)
	rep := Report{
		RunID:    uuid.NewString(),
		Started:  b.Started(),
		Statuses: make(map[model.Status]int),
	}
	log := c.log.With("run_id", rep.RunID)

	ag, err := c.factory(ctx)
	if err != nil {
		return rep, fmt.Errorf("establish agent: %w", err)
	}
	defer func() {
		if ag == nil {
			return
		}
		if err := ag.Close(); err != nil {
			log.Warn("close agent", "error", err)
		}
	}()

	due, err := c.store.ListDueTargets(ctx, c.opts.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list due targets: %w", err)
	}
	rep.Due = len(due)
	log.Info("run started", "due", rep.Due, "budget", c.opts.MaxDuration)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if c.opts.PaceInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.opts.PaceInterval), 1)
	}

	failures := 0
	for i, t := range due {
		if reason, stop := c.shouldStop(ctx, b, rep.Processed); stop {
			rep.MoreWork = true
			log.Warn("run stopped", "reason", reason, "remaining_targets", len(due)-i)
			if reason == reasonBudget {
				if err := c.record(ctx, &rep, t.ID, model.StatusRunTimeout, "run budget exhausted", 0); err != nil {
					return rep, err
				}
			}
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			rep.MoreWork = true
			break
		}

		status, err := c.process(ctx, ag, &rep, t, log)
		if err != nil {
			rep.Elapsed = b.Elapsed()
			return rep, err
		}
		rep.Processed++

		if status == model.StatusRunTimeout {
			rep.MoreWork = true
			break
		}
		if status == model.StatusTransientError {
			failures++
		} else {
			failures = 0
		}

		if i == len(due)-1 {
			break
		}
		reason := ""
		switch {
		case failures >= c.opts.MaxConsecutiveFailures:
			reason = recycleFailures
			failures = 0
		case c.opts.RecycleEvery > 0 && rep.Processed%c.opts.RecycleEvery == 0:
			reason = recyclePeriodic
		}
		if reason != "" {
			if ag, err = c.recycle(ctx, ag, reason, log); err != nil {
				rep.Elapsed = b.Elapsed()
				return rep, err
			}
			rep.Recycles++
		}
	}

	if err := ag.Close(); err != nil {
		log.Warn("close agent", "error", err)
	}
	ag = nil

	rep.Elapsed = b.Elapsed()
	log.Info("run finished",
		"processed", rep.Processed,
		"new_items", rep.NewItems,
		"recycles", rep.Recycles,
		"more_work", rep.MoreWork,
		"elapsed", rep.Elapsed.Round(time.Second),
	)
	c.report(ctx, rep, log)
	return rep, nil
}

const (
	reasonBudget    = "budget exhausted"
	reasonCancelled = "cancelled"
)

func (c *Controller) shouldStop(ctx context.Context, b *budget.Budget, processed int) (string, bool) {
	if ctx.Err() != nil {
		return reasonCancelled, true
	}
	if b.Expired() {
		return reasonBudget, true
	}
	if c.opts.Lookahead && processed > 0 {
		avg := b.Elapsed() / time.Duration(processed)
		if b.Remaining() < avg {
			return reasonBudget, true
		}
	}
	return "", false
}

// process visits one target and records its outcome. Writes use a context
// that survives cancellation so a started target is always accounted for.
func (c *Controller) process(ctx context.Context, ag agent.Agent, rep *Report, t model.Target, log *slog.Logger) (model.Status, error) {
	log = log.With("target_id", t.ID)
	wctx := context.WithoutCancel(ctx)

	res, err := c.fetcher.Fetch(ctx, ag, t)
	switch {
	case err == nil:
		n, err := c.persist(wctx, t, res)
		if err != nil {
			return "", err
		}
		log.Info("target synced", "new", n, "early_stop", res.EarlyStopped, "unchanged", res.Unchanged)
		return model.StatusSuccess, c.record(wctx, rep, t.ID, model.StatusSuccess, fmt.Sprintf("+%d new", n), n)

	case ctx.Err() != nil:
		log.Warn("target interrupted", "error", err)
		return model.StatusRunTimeout, c.record(wctx, rep, t.ID, model.StatusRunTimeout, "interrupted", 0)

	case errors.Is(err, fetcher.ErrIndex):
		return "", fmt.Errorf("target %s: %w", t.ID, err)

	case errors.Is(err, agent.ErrNoFeedbackSurface):
		log.Info("target has no feedback surface")
		return model.StatusNoFeedbackSurface, c.record(wctx, rep, t.ID, model.StatusNoFeedbackSurface, err.Error(), 0)

	default:
		log.Warn("target failed", "error", err)
		return model.StatusTransientError, c.record(wctx, rep, t.ID, model.StatusTransientError, err.Error(), 0)
	}
}

// persist stores new items and refreshes what the page says about the
// target. It returns how many items were actually inserted.
func (c *Controller) persist(ctx context.Context, t model.Target, res fetcher.Result) (int, error) {
	n, err := c.store.InsertItems(ctx, res.Items)
	if err != nil {
		return 0, fmt.Errorf("insert items for %s: %w", t.ID, err)
	}

	info := res.Info
	if info.DisplayName != "" {
		t.DisplayName = info.DisplayName
	}
	if info.Address != "" {
		t.Address = info.Address
	}
	if info.Rating != nil {
		t.LastRating = info.Rating
	}
	t.LastKnownItemCount = max(info.DisplayedTotal, t.LastKnownItemCount)
	if t.Latitude == nil || t.Longitude == nil {
		if lat, lon, ok := geo.CoordinatesFromLocator(t.ID); ok {
			t.Latitude, t.Longitude = &lat, &lon
		}
	}
	if t.Zone == "" && c.zones != nil && t.Latitude != nil && t.Longitude != nil {
		if z, ok := c.zones.AssignZone(*t.Latitude, *t.Longitude); ok {
			t.Zone = z.Name
			t.Riverside = &z.Riverside
		}
	}
	if err := c.store.UpsertTarget(ctx, &t); err != nil {
		return 0, fmt.Errorf("update target %s: %w", t.ID, err)
	}

	if info.DisplayedTotal > 0 {
		if _, err := c.store.RecordCountSnapshot(ctx, t.ID, info.DisplayedTotal, info.Rating); err != nil {
			return 0, fmt.Errorf("record count for %s: %w", t.ID, err)
		}
	}
	return n, nil
}

func (c *Controller) record(ctx context.Context, rep *Report, targetID string, status model.Status, msg string, newItems int) error {
	o := &model.Outcome{
		RunID:      rep.RunID,
		TargetID:   targetID,
		Status:     status,
		Message:    textutil.Truncate(msg, maxMessage),
		NewItems:   newItems,
		OccurredAt: c.opts.Now().UTC(),
	}
	if err := c.store.RecordOutcome(ctx, o); err != nil {
		return fmt.Errorf("record outcome for %s: %w", targetID, err)
	}
	rep.Statuses[status]++
	rep.NewItems += newItems
	c.metrics.Outcome(string(status))
	c.metrics.ItemsStored(newItems)
	return nil
}

// recycle replaces the agent. Failing to get a new one is fatal, like
// failing to get the first.
func (c *Controller) recycle(ctx context.Context, old agent.Agent, reason string, log *slog.Logger) (agent.Agent, error) {
	log.Info("recycling agent", "reason", reason)
	if err := old.Close(); err != nil {
		log.Warn("close agent", "error", err)
	}
	next, err := c.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("recycle agent: %w", err)
	}
	c.metrics.Recycle(reason)
	return next, nil
}

// report publishes the run summary. Failures are logged only.
func (c *Controller) report(ctx context.Context, rep Report, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	c.metrics.RunFinished(rep.Elapsed, rep.MoreWork)
	if err := c.metrics.Push(ctx, c.opts.PushURL, c.opts.PushJob); err != nil {
		log.Warn("push metrics", "error", err)
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyRun(ctx, rep); err != nil {
			log.Warn("notify run", "error", err)
		}
	}
}
