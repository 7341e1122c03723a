package ynab

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdef", 3, "abc..."},
		// "é" spans bytes 1 and 2; cutting at 2 must back off to 1.
		{"inside rune", "héllo", 2, "h..."},
		{"rune boundary", "héllo", 3, "hé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8: %q", tt.in, tt.n, got)
			}
		})
	}
}

func TestAPIError_BodyKeepsValidUTF8(t *testing.T) {
	err := &APIError{Endpoint: "/budgets", StatusCode: 502, Body: strings.Repeat("€", 100)}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Errorf("Error() = %q is not valid UTF-8", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("Error() = %q, want truncated body", msg)
	}
}
