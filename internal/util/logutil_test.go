package util

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "returns empty when limit non-positive", input: "B.Tech resume", limit: 0, expect: ""},
		{name: "shorter than limit", input: "resume", limit: 10, expect: "resume"},
		{name: "truncates and adds ellipsis", input: "Bachelor of Technology", limit: 8, expect: "Bachelor..."},
		{name: "trims surrounding whitespace", input: "  Hyderabad  ", limit: 5, expect: "Hyder..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	if got := FirstNonEmpty("", "  ", " b ", "c"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
