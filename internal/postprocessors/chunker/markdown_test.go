package chunker

import (
	"strings"
	"testing"
)

func TestStripMarkdown(t *testing.T) {
	input := "# Decorators\n\n" +
		"> Wrap **functions** with [decorators](https://example.com).\n\n" +
		"- uses `functools.wraps`\n" +
		"1. first\n\n" +
		"![diagram](img.png)\n\n" +
		"---\n\n" +
		"```python\n@cache\ndef f(): pass\n```\n"

	got := StripMarkdown(input)

	for _, gone := range []string{"#", "**", "](", "```", "@cache", "> ", "- uses", "1. "} {
		if strings.Contains(got, gone) {
			t.Errorf("expected %q to be stripped from %q", gone, got)
		}
	}
	for _, kept := range []string{"Decorators", "Wrap functions with decorators.", "functools.wraps", "first"} {
		if !strings.Contains(got, kept) {
			t.Errorf("expected %q in %q", kept, got)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short text", 100); got != "short text" {
		t.Errorf("unexpected excerpt %q", got)
	}

	long := strings.Repeat("alpha beta ", 50)
	got := Excerpt(long, 40)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	if len([]rune(got)) > 43 {
		t.Errorf("excerpt too long: %d", len([]rune(got)))
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "..."), "alph") {
		t.Errorf("excerpt cut mid-word: %q", got)
	}

	if got := Excerpt(long, 0); got != strings.TrimSpace(long) {
		t.Error("zero limit should return the full text")
	}
}
