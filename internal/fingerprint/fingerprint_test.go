package fingerprint

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"placewatch/internal/model"
)

func TestOfDeterministic(t *testing.T) {
	a := Of("https://maps.example/place/1", "Ana", "hace 2 días", "Muy buena atención")
	b := Of("https://maps.example/place/1", "Ana", "hace 2 días", "Muy buena atención")
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("fingerprint not deterministic (-first +second):\n%s", diff)
	}
	if len(a) != Size {
		t.Errorf("len = %d, want %d", len(a), Size)
	}
}

func TestOfNormalization(t *testing.T) {
	base := Of("t1", "Ana", "hace 2 días", "Muy buena atención")

	tests := []struct {
		name     string
		author   string
		dateText string
		text     string
		same     bool
	}{
		{name: "case and surrounding space", author: "  ANA ", dateText: "Hace 2 Días", text: " muy buena atención ", same: true},
		{name: "different author", author: "Beto", dateText: "hace 2 días", text: "Muy buena atención", same: false},
		{name: "different date", author: "Ana", dateText: "hace 3 días", text: "Muy buena atención", same: false},
		{name: "different text", author: "Ana", dateText: "hace 2 días", text: "Mala atención", same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Of("t1", tt.author, tt.dateText, tt.text)
			if (got == base) != tt.same {
				t.Errorf("Of(%q, %q, %q) == base: %v, want %v", tt.author, tt.dateText, tt.text, got == base, tt.same)
			}
		})
	}
}

func TestOfTargetScoped(t *testing.T) {
	if Of("t1", "Ana", "", "hola") == Of("t2", "Ana", "", "hola") {
		t.Error("same item on different targets must not share a fingerprint")
	}
}

func TestOfIgnoresTextPastPrefix(t *testing.T) {
	head := strings.Repeat("á", PrefixLength)
	a := Of("t1", "Ana", "", head+" original ending")
	b := Of("t1", "Ana", "", head+" edited later by the author")
	if a != b {
		t.Error("edits past the prefix changed the fingerprint")
	}

	c := Of("t1", "Ana", "", strings.Repeat("á", PrefixLength-1)+"x tail")
	if a == c {
		t.Error("edit inside the prefix did not change the fingerprint")
	}
}

func TestOfEmptyFields(t *testing.T) {
	got := Of("", "", "", "")
	if len(got) != Size {
		t.Errorf("len = %d, want %d", len(got), Size)
	}
	if got != Of("", "   ", "\t", "") {
		t.Error("whitespace-only fields should normalize to empty")
	}
}

func TestFromRaw(t *testing.T) {
	item := model.RawItem{Author: "Ana", DateText: "hace 1 semana", Text: "Excelente"}
	if diff := cmp.Diff(Of("t1", "Ana", "hace 1 semana", "Excelente"), FromRaw("t1", item)); diff != "" {
		t.Errorf("FromRaw mismatch (-want +got):\n%s", diff)
	}
}
