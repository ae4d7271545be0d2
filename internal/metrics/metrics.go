// Package metrics exposes crawl run counters on a private Prometheus
// registry and pushes them to a Pushgateway, since runs are short-lived
// batch jobs.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "placewatch"

// Recorder collects run metrics. A nil Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	processed   *prometheus.CounterVec
	itemsStored prometheus.Counter
	recycles    *prometheus.CounterVec
	runDuration prometheus.Gauge
	moreWork    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_processed_total",
			Help:      "Targets visited, by outcome status.",
		}, []string{"status"}),
		itemsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_stored_total",
			Help:      "New feedback items stored.",
		}),
		recycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_recycles_total",
			Help:      "Fetch agent recycles, by reason.",
		}, []string{"reason"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
		moreWork: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_more_work",
			Help:      "1 when the last run stopped with due targets left.",
		}),
	}
	r.reg.MustRegister(r.processed, r.itemsStored, r.recycles, r.runDuration, r.moreWork)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Outcome counts one visit.
func (r *Recorder) Outcome(status string) {
	if r == nil {
		return
	}
	r.processed.WithLabelValues(status).Inc()
}

// ItemsStored adds n stored items.
func (r *Recorder) ItemsStored(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.itemsStored.Add(float64(n))
}

// Recycle counts one agent recycle.
func (r *Recorder) Recycle(reason string) {
	if r == nil {
		return
	}
	r.recycles.WithLabelValues(reason).Inc()
}

// RunFinished sets the run gauges.
func (r *Recorder) RunFinished(elapsed time.Duration, moreWork bool) {
	if r == nil {
		return
	}
	r.runDuration.Set(elapsed.Seconds())
	if moreWork {
		r.moreWork.Set(1)
	} else {
		r.moreWork.Set(0)
	}
}

// Push sends the registry to the Pushgateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if r == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
