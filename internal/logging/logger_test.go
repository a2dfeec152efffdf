package logging_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigforge/apksigner/internal/logging"
	"github.com/sigforge/apksigner/tests/testutil"
)

// TestSecretNeverPrintsValue verifies the Secret type redacts through every
// formatting path.
func TestSecretNeverPrintsValue(t *testing.T) {
	t.Parallel()

	secret := logging.Secret("super-secret-password")

	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", secret.GoString())
}

// TestLoggerRedactsSecretsAtAllLevels verifies a Secret argument never
// reaches the output in cleartext.
func TestLoggerRedactsSecretsAtAllLevels(t *testing.T) {
	t.Parallel()

	const value = "hunter2-hunter2"

	levels := []struct {
		name  string
		debug bool
		logFn func(*logging.Logger, string, ...interface{})
	}{
		{"info", false, (*logging.Logger).Info},
		{"warn", false, (*logging.Logger).Warn},
		{"error", false, (*logging.Logger).Error},
		{"debug", true, (*logging.Logger).Debug},
	}

	for _, tt := range levels {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := logging.NewWithWriter(tt.debug, true, &buf)

			tt.logFn(logger, "store password: %s", logging.Secret(value))

			testutil.AssertSecretRedacted(t, buf.String(), value)
		})
	}
}

// TestDebugGating verifies debug lines appear only in debug mode.
func TestDebugGating(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logging.NewWithWriter(false, true, &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	logging.NewWithWriter(true, true, &buf).Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG]")
	assert.Contains(t, buf.String(), "shown")
}

// TestSetDebug verifies debug output can be raised after construction.
func TestSetDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewWithWriter(false, true, &buf)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.SetDebug(true)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestNoColorOmitsANSICodes verifies noColor output carries glyphs but no
// escape sequences.
func TestNoColorOmitsANSICodes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logging.NewWithWriter(false, true, &buf).Info("signed")

	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "✓ signed")
}

// TestRedactSpec verifies only the pass: kind hides its payload.
func TestRedactSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec string
		want string
	}{
		{"pass:hunter2", "pass:[REDACTED]"},
		{"env:KS_PASS", "env:KS_PASS"},
		{"file:/run/secrets/ks", "file:/run/secrets/ks"},
		{"stdin", "stdin"},
		{"keyring:apksigner/release", "keyring:apksigner/release"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, logging.RedactSpec(tt.spec))
	}
}

// TestRedactReplacesKnownSecrets verifies the sweep helper replaces each
// non-trivial secret occurrence.
func TestRedactReplacesKnownSecrets(t *testing.T) {
	t.Parallel()

	out := logging.Redact("pass=secret123 user=admin pin=abc", []string{"secret123", "abc"})
	assert.Equal(t, "pass=[REDACTED] user=admin pin=abc", out)
}
