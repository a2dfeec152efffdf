package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertSecretRedacted verifies that a secret value was replaced by the
// [REDACTED] marker in log output. Use AssertNoSecretLeak for output that
// carries no marker, like error messages.
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue,
		"Secret value %q should be redacted, but appears in output", secretValue)
	assert.Contains(t, output, "[REDACTED]",
		"Expected [REDACTED] marker when a secret is logged")
}

// AssertNoSecretLeak verifies that none of the given secret values appear
// in output. This is the sweep for command output and error messages,
// where passwords must simply never show up.
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		assert.NotContains(t, output, secret,
			"Secret %q must not appear in output", secret)
	}
}

// AssertLinesContain verifies that each expected string appears on some
// line of the multi-line output.
func AssertLinesContain(t *testing.T, output string, expectedLines []string) {
	t.Helper()

	lines := strings.Split(output, "\n")
	for _, expected := range expectedLines {
		found := false
		for _, line := range lines {
			if strings.Contains(line, expected) {
				found = true
				break
			}
		}
		assert.True(t, found,
			"Expected to find line containing %q in output:\n%s", expected, output)
	}
}
