package validation

import (
	"strings"
	"testing"
)

func TestPinValue(t *testing.T) {
	valid := []string{"a3f9", "0000", "deadbeef", "0123456789abcdef"}
	for _, v := range valid {
		if err := PinValue(v); err != nil {
			t.Fatalf("PinValue(%q): unexpected error: %v", v, err)
		}
	}
	invalid := []string{"", "abc", "A3F9", "a3f9!", "0123456789abcdef0", "xyz9"}
	for _, v := range invalid {
		if err := PinValue(v); err == nil {
			t.Fatalf("PinValue(%q): expected error", v)
		}
	}
}

func TestNumber(t *testing.T) {
	if err := Number("0x0-123-4567-8901"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range []string{"", "0x0-12-4567-8901", "0x1-123-4567-8901", "0x0-123-4567-890"} {
		if err := Number(v); err == nil {
			t.Fatalf("Number(%q): expected error", v)
		}
	}
}

func TestContentBounds(t *testing.T) {
	if err := Content("hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Content(""); err == nil {
		t.Fatalf("expected error for empty content")
	}
	if err := Content(strings.Repeat("x", 65537)); err == nil {
		t.Fatalf("expected error for oversized content")
	}
}

func TestLabelClamp(t *testing.T) {
	long := strings.Repeat("l", 200)
	if got := Label(long); len(got) != 100 {
		t.Fatalf("expected clamp to 100, got %d", len(got))
	}
	if got := Label("ok"); got != "ok" {
		t.Fatalf("unexpected label: %q", got)
	}
}

func TestFilenameSanitize(t *testing.T) {
	if got := Filename("../../etc/passwd"); got != "passwd" {
		t.Fatalf("expected path stripped, got %q", got)
	}
	if got := Filename(""); got != "file" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
