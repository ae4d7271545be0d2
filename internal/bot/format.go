package bot

import (
	"fmt"
	"strings"
	"time"

	"placewatch/internal/model"
	"placewatch/internal/scheduler"
)

const timeFormat = "2006-01-02 15:04 UTC"

// FormatRunReport formats a crawl run summary as a plain-text message.
func FormatRunReport(r scheduler.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crawl run %s\n", shortID(r.RunID))
	fmt.Fprintf(&b, "Started: %s\n", r.Started.UTC().Format(timeFormat))
	fmt.Fprintf(&b, "Duration: %s\n", r.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Places: %d of %d due\n", r.Processed, r.Due)
	fmt.Fprintf(&b, "New reviews: %d\n", r.NewItems)
	for _, s := range []model.Status{
		model.StatusSuccess,
		model.StatusNoFeedbackSurface,
		model.StatusTransientError,
		model.StatusRunTimeout,
	} {
		if n := r.Statuses[s]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", statusLabel(s), n)
		}
	}
	if r.Recycles > 0 {
		fmt.Fprintf(&b, "Browser restarts: %d\n", r.Recycles)
	}
	if r.MoreWork {
		b.WriteString("More places remain; another run is needed.")
	} else {
		b.WriteString("All due places visited.")
	}
	return b.String()
}

// FormatDueList formats the stalest places, oldest first.
func FormatDueList(targets []model.Target) string {
	if len(targets) == 0 {
		return "No places tracked yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Next places to visit:\n")
	for i, t := range targets {
		fmt.Fprintf(&b, "\n%d. %s\n   last sync: %s, %d reviews\n", i+1, displayName(&t), syncLabel(t.LastSyncAt), t.LastKnownItemCount)
	}
	return b.String()
}

// FormatTargetInfo formats the state of a single place.
func FormatTargetInfo(t *model.Target, latest *model.Outcome, history []model.CountSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", displayName(t))
	fmt.Fprintf(&b, "URL: %s\n", t.ID)
	if t.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", t.Address)
	}
	if t.Zone != "" {
		zone := t.Zone
		if t.Riverside != nil && *t.Riverside {
			zone += " (riverside)"
		}
		fmt.Fprintf(&b, "Zone: %s\n", zone)
	}
	fmt.Fprintf(&b, "Reviews: %d", t.LastKnownItemCount)
	if t.LastRating != nil {
		fmt.Fprintf(&b, ", rating %.1f", *t.LastRating)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Last sync: %s\n", syncLabel(t.LastSyncAt))
	if latest != nil {
		fmt.Fprintf(&b, "Last visit: %s (attempt %d) %s\n", statusLabel(latest.Status), latest.Attempt, latest.Message)
	}
	if t.SummaryUpdatedAt != nil {
		fmt.Fprintf(&b, "Summary updated: %s\n", t.SummaryUpdatedAt.UTC().Format(timeFormat))
	}
	if len(history) > 0 {
		b.WriteString("\nReview count history:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "  %s  %d (%+d)\n", h.RecordedAt.UTC().Format(timeFormat), h.Count, h.Delta)
		}
	}
	return b.String()
}

// FormatSummary formats the stored summary of a place.
func FormatSummary(t *model.Target) string {
	if strings.TrimSpace(t.Summary) == "" {
		return fmt.Sprintf("No summary for %s yet.", displayName(t))
	}
	return fmt.Sprintf("%s\n\n%s", displayName(t), t.Summary)
}

// FormatOutcomes formats the visit log of a place, newest first.
func FormatOutcomes(t *model.Target, outcomes []model.Outcome) string {
	if len(outcomes) == 0 {
		return fmt.Sprintf("%s has not been visited yet.", displayName(t))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Visits of %s:\n", displayName(t))
	for _, o := range outcomes {
		fmt.Fprintf(&b, "\n%s  %s #%d", o.OccurredAt.UTC().Format(timeFormat), statusLabel(o.Status), o.Attempt)
		if o.Message != "" {
			fmt.Fprintf(&b, "  %s", o.Message)
		}
	}
	return b.String()
}

// FormatStats formats store-wide counters.
func FormatStats(s model.Stats) string {
	return fmt.Sprintf("Places: %d (%d never visited)\nReviews: %d (%d in the last 24h)\nSummaries: %d",
		s.Targets, s.PendingTargets, s.Items, s.ItemsLast24h, s.Summaries)
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusSuccess:
		return "ok"
	case model.StatusNoFeedbackSurface:
		return "no reviews"
	case model.StatusTransientError:
		return "error"
	case model.StatusRunTimeout:
		return "timed out"
	default:
		return string(s)
	}
}

func syncLabel(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(timeFormat)
}

func displayName(t *model.Target) string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
