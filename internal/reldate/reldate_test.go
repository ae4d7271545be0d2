package reldate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	now := time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		text   string
		want   time.Time
		wantOK bool
	}{
		{"Hace 1 día", day(2026, 10, 14), true},
		{"hace 3 días", day(2026, 10, 12), true},
		{"una semana atrás", day(2026, 10, 8), true},
		{"Hace 2 semanas", day(2026, 10, 1), true},
		{"hace un mes", day(2026, 9, 15), true},
		{"Hace 3 meses", day(2026, 7, 17), true},
		{"un año atrás", day(2025, 10, 15), true},
		{"hace dos años", day(2024, 10, 15), true},
		{"Hace 5 horas", day(2026, 10, 15), true},
		{"hace 20 horas", day(2026, 10, 14), true},
		{"hace 10 minutos", day(2026, 10, 15), true},
		{"2 days ago", day(2026, 10, 13), true},
		{"a week ago", day(2026, 10, 8), true},
		{"an hour ago", day(2026, 10, 15), true},
		{"Edited 4 months ago", day(2026, 6, 17), true},
		{"a year ago", day(2025, 10, 15), true},
		{"2026-10-10", day(2026, 10, 10), true},
		{"", time.Time{}, false},
		{"ayer", time.Time{}, false},
		{"recently", time.Time{}, false},
		{"hace 300 años", time.Time{}, false},
		{"hace 99999999999999999999 días", time.Time{}, false},
		{"hace 200 años", day(1826, 12, 3), true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := Resolve(tt.text, now)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}
