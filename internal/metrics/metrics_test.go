package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// values flattens the registry into "name{label}" -> value.
func values(t *testing.T, r *Recorder) map[string]float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				key += "{" + l.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestRecorder(t *testing.T) {
	r := New()
	r.Outcome("SUCCESS")
	r.Outcome("SUCCESS")
	r.Outcome("TRANSIENT_ERROR")
	r.ItemsStored(7)
	r.ItemsStored(0)
	r.Recycle("failures")
	r.RunFinished(90*time.Second, true)

	want := map[string]float64{
		"placewatch_targets_processed_total{SUCCESS}":         2,
		"placewatch_targets_processed_total{TRANSIENT_ERROR}": 1,
		"placewatch_items_stored_total":                       7,
		"placewatch_agent_recycles_total{failures}":           1,
		"placewatch_run_duration_seconds":                     90,
		"placewatch_run_more_work":                            1,
	}
	if diff := cmp.Diff(want, values(t, r)); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Outcome("SUCCESS")
	r.ItemsStored(1)
	r.Recycle("periodic")
	r.RunFinished(time.Second, false)
	if err := r.Push(context.Background(), "http://unused", "job"); err != nil {
		t.Errorf("Push on nil recorder: %v", err)
	}
}

func TestPush(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath, gotMethod = req.URL.Path, req.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Outcome("SUCCESS")
	if err := r.Push(context.Background(), srv.URL, "placewatch_crawl"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/metrics/job/placewatch_crawl" {
		t.Errorf("pushed %s %s", gotMethod, gotPath)
	}

	if err := r.Push(context.Background(), "", "job"); err != nil {
		t.Errorf("Push without url: %v", err)
	}
}
