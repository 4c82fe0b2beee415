package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, verboseMode bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verboseMode)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	if IsVerbose() {
		t.Fatal("expected verbose off")
	}
	SetVerbose(true)
	if !IsVerbose() {
		t.Fatal("expected verbose on after SetVerbose(true)")
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		log     func()
		verbose bool
		want    string
	}{
		{"debug verbose", func() { Debug("embedded %d chunks", 3) }, true, "[DEBUG] embedded 3 chunks\n"},
		{"debug quiet", func() { Debug("embedded %d chunks", 3) }, false, ""},
		{"info verbose", func() { Info("wiki %s", "w1") }, true, "[INFO] wiki w1\n"},
		{"info quiet", func() { Info("wiki %s", "w1") }, false, ""},
		{"warn quiet", func() { Warn("semantic degraded: %v", "timeout") }, false, "[WARN] semantic degraded: timeout\n"},
		{"error quiet", func() { Error("worker %d failed", 2) }, false, "[ERROR] worker 2 failed\n"},
		{"section verbose", func() { Section("Search Execution") }, true, "\n=== Search Execution ===\n"},
		{"section quiet", func() { Section("Search Execution") }, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose)
			tt.log()
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimed(t *testing.T) {
	buf := capture(t, true)
	Timed("cluster build")()
	got := buf.String()
	if !strings.HasPrefix(got, "[DEBUG] cluster build took ") {
		t.Errorf("unexpected output: %q", got)
	}

	buf = capture(t, false)
	Timed("cluster build")()
	if buf.Len() != 0 {
		t.Errorf("expected no output when quiet, got %q", buf.String())
	}
}

func TestConcurrentWrites(t *testing.T) {
	buf := capture(t, true)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			Debug("worker %d", n)
			Warn("worker %d", n)
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	if got := strings.Count(buf.String(), "\n"); got != 16 {
		t.Errorf("expected 16 lines, got %d", got)
	}
}
