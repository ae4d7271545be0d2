package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCoordinatesFromLocator(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		lat     float64
		lon     float64
		ok      bool
	}{
		{
			name:    "at with zoom",
			locator: "https://www.google.com/maps/place/Cafe/@-38.9516,-68.0591,17z/data=!4m6",
			lat:     -38.9516,
			lon:     -68.0591,
			ok:      true,
		},
		{
			name:    "data block",
			locator: "https://www.google.com/maps/place/Cafe/data=!4m7!3m6!1s0x0:0x1!8m2!3d-38.95!4d-68.06!16s",
			lat:     -38.95,
			lon:     -68.06,
			ok:      true,
		},
		{
			name:    "at wins over data",
			locator: "https://maps/x/@1.5,2.5,10z/data=!3d3.5!4d4.5",
			lat:     1.5,
			lon:     2.5,
			ok:      true,
		},
		{
			name:    "out of range",
			locator: "https://maps/x/@123.0,2.0",
		},
		{
			name:    "none",
			locator: "https://example.com/reviews.xml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := CoordinatesFromLocator(tt.locator)
			if ok != tt.ok || lat != tt.lat || lon != tt.lon {
				t.Errorf("CoordinatesFromLocator() = (%v, %v, %v), want (%v, %v, %v)", lat, lon, ok, tt.lat, tt.lon, tt.ok)
			}
		})
	}
}

const zonesYAML = `
zones:
  - name: RIO GRANDE
    zone: Paseo de la Costa
    riverside: true
    min_lat: -38.99
    max_lat: -38.97
    min_lon: -68.08
    max_lon: -68.04
  - name: AREA CENTRO ESTE
    zone: Centro
    min_lat: -38.96
    max_lat: -38.94
    min_lon: -68.07
    max_lon: -68.04
  - name: CENTRO AMPLIO
    min_lat: -39.00
    max_lat: -38.90
    min_lon: -68.10
    max_lon: -68.00
`

func TestBoxesAssignZone(t *testing.T) {
	boxes, err := ParseBoxes([]byte(zonesYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name     string
		lat, lon float64
		want     Zone
		ok       bool
	}{
		{name: "riverside", lat: -38.98, lon: -68.06, want: Zone{Name: "Paseo de la Costa", Riverside: true}, ok: true},
		{name: "first match wins", lat: -38.95, lon: -68.05, want: Zone{Name: "Centro"}, ok: true},
		{name: "zone defaults to name", lat: -38.91, lon: -68.01, want: Zone{Name: "CENTRO AMPLIO"}, ok: true},
		{name: "edge included", lat: -38.94, lon: -68.04, want: Zone{Name: "Centro"}, ok: true},
		{name: "outside", lat: -40, lon: -70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := boxes.AssignZone(tt.lat, tt.lon)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AssignZone() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseBoxesInvalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":     "zones: [",
		"missing name": "zones:\n  - min_lat: 1\n    max_lat: 2\n",
		"inverted":     "zones:\n  - name: X\n    min_lat: 2\n    max_lat: 1\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseBoxes([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadBoxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	if err := os.WriteFile(path, []byte(zonesYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	boxes, err := LoadBoxes(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(boxes) != 3 {
		t.Errorf("got %d boxes, want 3", len(boxes))
	}

	if _, err := LoadBoxes(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
