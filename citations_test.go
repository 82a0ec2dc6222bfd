package graphrag

import (
	"reflect"
	"testing"
)

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string][]string
	}{
		{
			name: "single kind",
			text: "Alice is a person [Data: Entities (1)].",
			want: map[string][]string{"Entities": {"1"}},
		},
		{
			name: "multiple kinds with more marker",
			text: "... [Data: Entities (1, 2, 3, +more); Reports (7)] ...",
			want: map[string][]string{
				"Entities": {"1", "2", "3"},
				"Reports":  {"7"},
			},
		},
		{
			name: "whitespace variation",
			text: "[Data:  Sources ( 12 ,3 )]",
			want: map[string][]string{"Sources": {"3", "12"}},
		},
		{
			name: "duplicates across references",
			text: "[Data: Claims (2)] and [Data: Claims (2, 1)]",
			want: map[string][]string{"Claims": {"1", "2"}},
		},
		{
			name: "unknown kind ignored",
			text: "[Data: Widgets (9); Relationships (4)]",
			want: map[string][]string{"Relationships": {"4"}},
		},
		{
			name: "no references",
			text: "nothing cited here",
			want: nil,
		},
		{
			name: "non-numeric ids sort lexically",
			text: "[Data: Entities (b, a)]",
			want: map[string][]string{"Entities": {"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCitations(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRenderCitation(t *testing.T) {
	got := RenderCitation(map[string][]string{
		"Reports":  {"7"},
		"Entities": {"3", "1", "2"},
	})
	want := "[Data: Entities (1, 2, 3); Reports (7)]"
	if got != want {
		t.Errorf("RenderCitation = %q, want %q", got, want)
	}
}

func TestRenderCitationTruncates(t *testing.T) {
	got := RenderCitation(map[string][]string{
		"Entities": {"1", "2", "3", "4", "5", "6", "7"},
	})
	want := "[Data: Entities (1, 2, 3, 4, 5, +more)]"
	if got != want {
		t.Errorf("RenderCitation = %q, want %q", got, want)
	}
}

func TestRenderCitationEmpty(t *testing.T) {
	if got := RenderCitation(nil); got != "" {
		t.Errorf("RenderCitation(nil) = %q, want empty", got)
	}
}

// Extraction must invert rendering on well-formed references.
func TestCitationRoundTrip(t *testing.T) {
	sets := []map[string][]string{
		{"Entities": {"1", "2", "3"}},
		{"Entities": {"1"}, "Reports": {"7"}, "Sources": {"2", "10"}},
		{"Claims": {"4"}, "Relationships": {"8", "9"}},
	}
	for _, set := range sets {
		rendered := RenderCitation(set)
		parsed := ExtractCitations("prefix " + rendered + " suffix")
		if !reflect.DeepEqual(parsed, set) {
			t.Errorf("round trip of %v: rendered %q, parsed %v", set, rendered, parsed)
		}
	}
}
