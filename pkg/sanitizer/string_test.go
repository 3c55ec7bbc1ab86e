package sanitizer

import "testing"

func TestNormalizeReason(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trim spaces",
			input: "  flight cancelled  ",
			want:  "flight cancelled",
		},
		{
			name:  "multiple spaces between words",
			input: "flight    cancelled",
			want:  "flight cancelled",
		},
		{
			name:  "tabs and newlines",
			input: "flight\t\ncancelled",
			want:  "flight cancelled",
		},
		{
			name:  "control characters dropped",
			input: "flight\x00 cancelled\x07",
			want:  "flight cancelled",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n  ",
			want:  "",
		},
		{
			name:  "preserve special characters",
			input: " Café & Spa™ closed ",
			want:  "Café & Spa™ closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReason(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeReason(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeReason(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeID(t *testing.T) {
	if got := NormalizeID("  acc-1 "); got != "acc-1" {
		t.Errorf("NormalizeID = %q", got)
	}
}
