// Package logger provides leveled logging for wikiscope.
// Debug, Info and Section output is gated behind the --verbose flag.
// Warnings and errors always print.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput redirects all log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// write holds the exclusive lock so concurrent callers never interleave on output.
func write(gated bool, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if gated && !verbose {
		return
	}
	fmt.Fprintf(output, prefix+format+"\n", args...)
}

// Debug prints a message in verbose mode.
func Debug(format string, args ...any) { write(true, "[DEBUG] ", format, args...) }

// Info prints a message in verbose mode.
func Info(format string, args ...any) { write(true, "[INFO] ", format, args...) }

// Warn always prints.
func Warn(format string, args ...any) { write(false, "[WARN] ", format, args...) }

// Error always prints.
func Error(format string, args ...any) { write(false, "[ERROR] ", format, args...) }

// Section prints a section header in verbose mode.
func Section(name string) { write(true, "\n=== ", "%s ===", name) }

// Timed returns a func that logs the elapsed time of label at debug level.
//
//	defer logger.Timed("search")()
func Timed(label string) func() {
	start := time.Now()
	return func() {
		Debug("%s took %s", label, time.Since(start).Round(time.Microsecond))
	}
}
