package document

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestIndexFold(t *testing.T) {
	tests := []struct {
		name       string
		text, term string
		want       string
	}{
		{"ascii", "Gateway routes", "ROUTES", "routes"},
		{"expanding lower case", strings.Repeat("Ⱥ", 10) + " needle", "needle", "needle"},
		{"matches expanding rune", "xȺy", "ⱥ", "Ⱥ"},
		{"kelvin sign", "273 \u212A", "k", "\u212A"},
		{"dotted capital", "İstanbul", "stanbul", "stanbul"},
		{"missing", "plain text", "needle", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := IndexFold(tt.text, tt.term)
			if tt.want == "" {
				if start != -1 || end != -1 {
					t.Fatalf("expected no match, got [%d:%d]", start, end)
				}
				return
			}
			if start < 0 || end > len(tt.text) || start > end {
				t.Fatalf("bad bounds [%d:%d] for %q", start, end, tt.text)
			}
			got := tt.text[start:end]
			if got != tt.want || !utf8.ValidString(got) {
				t.Fatalf("IndexFold(%q, %q) = %q, want %q", tt.text, tt.term, got, tt.want)
			}
		})
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("Security & Authentication", "AUTH") {
		t.Fatal("expected case-insensitive match")
	}
	if ContainsFold("Security", "secure") {
		t.Fatal("unexpected match")
	}
	if !ContainsFold("anything", "") {
		t.Fatal("empty term matches everything")
	}
}
