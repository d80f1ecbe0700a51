package textutil_test

import (
	"testing"

	"vidharvest/internal/textutil"
)

func TestSanitizeKeySegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABC-123", "ABC-123"},
		{" ABC 1 ", "ABC1"},
		{"a/b\\c", "abc"},
		{"what?*<>|\"", "what"},
		{"tab\there", "tabhere"},
		{"50%#off", "50off"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := textutil.SanitizeKeySegment(tc.in); got != tc.want {
			t.Fatalf("SanitizeKeySegment(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
