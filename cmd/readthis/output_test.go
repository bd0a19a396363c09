package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateKeepsRunesIntact(t *testing.T) {
	title := strings.Repeat("é", 80) // 2 bytes per rune

	got := truncate(title, 70)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 71 { // 70 kept + ellipsis
		t.Errorf("rune count = %d, want 71", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("missing ellipsis: %q", got)
	}
}

func TestTruncateShortTitleUntouched(t *testing.T) {
	if got := truncate("短いタイトル", 70); got != "短いタイトル" {
		t.Errorf("truncate(%q) = %q", "短いタイトル", got)
	}
}
