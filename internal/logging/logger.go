// Package logging provides the leveled diagnostic logger used by the
// apksigner commands. Diagnostics go to stderr so command output such as
// certificate digests and verification results stays clean on stdout.
// Password material must never reach the logger; values that merely refer to
// passwords (spec strings, literals) are redacted before printing.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger writes leveled, optionally colored diagnostics.
type Logger struct {
	debug   bool
	noColor bool
	out     io.Writer
}

// New creates a logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return NewWithWriter(debug, noColor, os.Stderr)
}

// NewWithWriter creates a logger writing to w. Tests use it to capture
// diagnostics without touching process stderr.
func NewWithWriter(debug, noColor bool, w io.Writer) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
		out:     w,
	}
}

// SetDebug switches debug output on or off. Commands raise it when the
// user asks for verbose mode after the logger already exists.
func (l *Logger) SetDebug(debug bool) {
	l.debug = debug
}

func (l *Logger) emit(color, glyph, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s\n", glyph, msg)
		return
	}
	fmt.Fprintf(l.out, "%s%s\033[0m %s\n", color, glyph, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m", "✓", format, args)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m", "⚠", format, args)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m", "✗", format, args)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m", "[DEBUG]", format, args)
}

// Secret is a value that always prints as [REDACTED].
type Secret string

// String implements fmt.Stringer, always returning the redaction marker.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// RedactSpec makes a password spec string safe to log. Only the pass: kind
// embeds the password itself; every other kind names a source, not a value,
// and passes through unchanged.
func RedactSpec(spec string) string {
	if strings.HasPrefix(spec, "pass:") {
		return "pass:[REDACTED]"
	}
	return spec
}

// Redact replaces each non-trivial secret in s with [REDACTED].
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
