package profile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/internal/profile"
	"github.com/sigforge/apksigner/internal/signer"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadFullProfile verifies a document using every section decodes and
// converts into ordered loader descriptors.
func TestLoadFullProfile(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signing:
  v1: true
  v2: true
  v3: false
  minSdk: 24
lineage: release.lineage
signers:
  - name: release
    keystore:
      path: release.p12
      alias: "1"
      type: pkcs12
      storePass: "env:KS_PASS"
      keyPass: "env:KEY_PASS"
      passEncoding: ""
  - key: app.pk8
    cert: app.x509.pem
    keyPass: "file:kp.txt"
`)

	p, err := profile.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, p.Version)
	assert.True(t, p.Signing.V1Enabled())
	assert.True(t, p.Signing.V2Enabled())
	assert.False(t, p.Signing.V3Enabled())
	assert.Equal(t, 24, p.Signing.MinSdk)
	assert.Zero(t, p.Signing.MaxSdk)
	assert.Equal(t, "release.lineage", p.Lineage)

	descs := p.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, signer.Descriptor{
		Name:              "signer #1",
		V1Basename:        "release",
		KeystorePath:      "release.p12",
		StoreType:         "pkcs12",
		Alias:             "1",
		StorePasswordSpec: "env:KS_PASS",
		KeyPasswordSpec:   "env:KEY_PASS",
	}, descs[0])
	assert.Equal(t, signer.Descriptor{
		Name:            "signer #2",
		KeyFile:         "app.pk8",
		CertFile:        "app.x509.pem",
		KeyPasswordSpec: "file:kp.txt",
	}, descs[1])

	assert.Equal(t, "release", descs[0].DisplayName())
	assert.Equal(t, "app", descs[1].DisplayName())
}

// TestLoadMinimalProfile verifies the scheme toggles default to enabled
// when the signing section is absent.
func TestLoadMinimalProfile(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - key: app.pk8
    cert: app.pem
`)

	p, err := profile.Load(path)
	require.NoError(t, err)

	assert.True(t, p.Signing.V1Enabled())
	assert.True(t, p.Signing.V2Enabled())
	assert.True(t, p.Signing.V3Enabled())
	assert.Zero(t, p.Signing.MinSdk)
	assert.Empty(t, p.Lineage)
	require.Len(t, p.Descriptors(), 1)
}

// TestLoadPasswordEncoding verifies the per signer encoding accessor reads
// from whichever shape carries it.
func TestLoadPasswordEncoding(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - keystore:
      path: release.jks
      type: jks
      storePass: "env:KS_PASS"
      passEncoding: utf-16le
  - key: app.pk8
    cert: app.pem
    keyPass: "file:kp.txt"
    passEncoding: iso-8859-1
`)

	p, err := profile.Load(path)
	require.NoError(t, err)
	require.Len(t, p.Signers, 2)

	assert.Equal(t, "utf-16le", p.Signers[0].PasswordEncoding())
	assert.Equal(t, "iso-8859-1", p.Signers[1].PasswordEncoding())
}

// TestLoadRejectsMixedSigner verifies a signer cannot be both store backed
// and file backed.
func TestLoadRejectsMixedSigner(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - keystore:
      path: release.p12
      storePass: "env:KS_PASS"
    key: app.pk8
    cert: app.pem
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")

	var cfgErr apkerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestLoadRejectsUnknownField verifies typos fail validation instead of
// being silently dropped.
func TestLoadRejectsUnknownField(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - keystoer:
      path: release.p12
      storePass: "env:KS_PASS"
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keystoer")
}

// TestLoadRejectsMissingStorePass verifies store backed signers must say
// where the store password comes from.
func TestLoadRejectsMissingStorePass(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - keystore:
      path: release.p12
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storePass")
}

// TestLoadRejectsStdinSpec verifies interactive password sources are
// refused.
func TestLoadRejectsStdinSpec(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers:
  - keystore:
      path: release.p12
      storePass: stdin
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer #1: stdin password sources are not allowed in a profile")

	var cfgErr apkerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestLoadRejectsUnsupportedVersion verifies unknown document versions are
// refused up front.
func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 2
signers:
  - key: app.pk8
    cert: app.pem
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
	assert.Contains(t, err.Error(), "version")
}

// TestLoadRejectsEmptySigners verifies a profile must declare at least one
// signer.
func TestLoadRejectsEmptySigners(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
version: 1
signers: []
`)

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signers")
}

// TestLoadMissingFile verifies the read failure names the operation.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := profile.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading profile")
}

// TestLoadRejectsMalformedYAML verifies syntax errors surface as
// configuration errors.
func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, "version: [1\n")

	_, err := profile.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse profile")

	var cfgErr apkerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
