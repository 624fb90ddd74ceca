package tasks

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateRuneBoundary(t *testing.T) {
	t.Parallel()

	// An odd byte limit lands mid-rune on two-byte runes; the cut must
	// back up to the rune boundary.
	got := truncate(strings.Repeat("д", 20), 29)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string missing ellipsis: %q", got)
	}
	if want := strings.Repeat("д", 14) + "..."; got != want {
		t.Errorf("truncate() = %q, want %q", got, want)
	}
}

func TestTruncateShortString(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 29); got != "short" {
		t.Errorf("truncate() = %q, want unchanged input", got)
	}
}
