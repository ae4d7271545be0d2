package browser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"placewatch/internal/agent"
	"placewatch/internal/model"
)

func ptr(v float64) *float64 { return &v }

const placePage = `<html><body>
<h1 class="DUwDvf">Parrilla Don Julio</h1>
<button data-item-id="address" aria-label="Dirección: Guatemala 4691, Palermo"><div>Guatemala 4691, Palermo</div></button>
<div class="F7nice"><span><span aria-hidden="true">4,7</span></span><span><span aria-label="12.345 opiniones">(12.345)</span></span></div>
<div class="jANrlb"><div class="fontDisplayLarge">4,7</div><div class="fontBodySmall">12.345 opiniones</div></div>
<div class="m6QErb DxyBCb">
  <div class="jftiEf">
    <div class="d4r55"> Ana Pérez </div>
    <span role="img" aria-label="5 estrellas"></span>
    <span class="rsqaWe">Hace 2 días</span>
    <span class="wiI7pd">La mejor carne de Buenos Aires.</span>
  </div>
  <div class="jftiEf">
    <div class="d4r55">Bob</div>
    <span role="img" aria-label="Foto"></span>
    <span role="img" aria-label="2 stars"></span>
    <span class="rsqaWe">a week ago</span>
  </div>
  <div class="jftiEf">
    <span class="wiI7pd">Sin autor</span>
  </div>
</div>
</body></html>`

func TestParseItems(t *testing.T) {
	got, err := ParseItems(placePage, DefaultSelectors())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []model.RawItem{
		{Author: "Ana Pérez", Text: "La mejor carne de Buenos Aires.", DateText: "Hace 2 días", Rating: ptr(5)},
		{Author: "Bob", DateText: "a week ago", Rating: ptr(2)},
		{Author: "Anónimo", Text: "Sin autor"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseItems mismatch (-want +got):\n%s", diff)
	}
}

func TestParseItemsEmpty(t *testing.T) {
	got, err := ParseItems("<html><body><p>nothing</p></body></html>", DefaultSelectors())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no items, got %d", len(got))
	}
}

func TestParseInfo(t *testing.T) {
	tests := []struct {
		name string
		html string
		want agent.PageInfo
	}{
		{
			name: "full header",
			html: placePage,
			want: agent.PageInfo{
				DisplayName:    "Parrilla Don Julio",
				Address:        "Guatemala 4691, Palermo",
				DisplayedTotal: 12345,
				Rating:         ptr(4.7),
			},
		},
		{
			name: "address only in label",
			html: `<h1>Café</h1><button data-item-id="address" aria-label="Address: 1 Main St"></button>
				<div class="fontDisplayLarge">4.1</div><div class="F7nice">4.1 (87)</div>`,
			want: agent.PageInfo{DisplayName: "Café", Address: "1 Main St", DisplayedTotal: 87, Rating: ptr(4.1)},
		},
		{
			name: "count from aria label",
			html: `<h1>Kiosco</h1><div class="F7nice"><span aria-label="Rating"></span><span aria-label="1,024 reviews"></span></div>`,
			want: agent.PageInfo{DisplayName: "Kiosco", DisplayedTotal: 1024},
		},
		{
			name: "nothing known",
			html: `<h1>Nuevo</h1>`,
			want: agent.PageInfo{DisplayName: "Nuevo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInfo(tt.html, DefaultSelectors())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseInfo mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWithLanguage(t *testing.T) {
	tests := []struct {
		locator string
		lang    string
		want    string
	}{
		{"https://maps.example/place/x?hl=en", "es", "https://maps.example/place/x?hl=es"},
		{"https://maps.example/place/x", "es", "https://maps.example/place/x?hl=es"},
		{"https://maps.example/place/x", "", "https://maps.example/place/x"},
	}
	for _, tt := range tests {
		if got := withLanguage(tt.locator, tt.lang); got != tt.want {
			t.Errorf("withLanguage(%q, %q) = %q, want %q", tt.locator, tt.lang, got, tt.want)
		}
	}
}
