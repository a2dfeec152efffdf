package lineage_test

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/pkg/lineage"
	"github.com/sigforge/apksigner/tests/testutil"
)

func newIdentity(t *testing.T, key crypto.Signer, commonName string) lineage.SignerIdentity {
	t.Helper()
	cert := testutil.SelfSignedCert(t, key, commonName)
	id, err := lineage.NewSignerIdentity(key, cert)
	require.NoError(t, err)
	return id
}

func serialize(t *testing.T, l *lineage.Lineage) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := l.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	return buf.Bytes()
}

// TestRotateFreshChain verifies rotating without an existing lineage builds
// a two signer chain with the requested gate and, absent builders, no
// grants.
func TestRotateFreshChain(t *testing.T) {
	t.Parallel()

	old := newIdentity(t, testutil.RSAKey(t), "first")
	next := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, old, next, nil, nil, 28)
	require.NoError(t, err)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 28, l.MinSDK())

	signers := l.Signers()
	require.Len(t, signers, 2)
	assert.Equal(t, old.Certificate.Raw, signers[0].Raw)
	assert.Equal(t, next.Certificate.Raw, signers[1].Raw)
	assert.Equal(t, next.Certificate.Raw, l.Terminal().Raw)

	for _, cert := range signers {
		caps, err := l.Capabilities(cert)
		require.NoError(t, err)
		assert.Equal(t, lineage.Capabilities{}, caps)
	}
}

// TestRotateFreshChainExplicitGrants verifies each signer ends up with
// exactly the grants its builder set.
func TestRotateFreshChainExplicitGrants(t *testing.T) {
	t.Parallel()

	old := newIdentity(t, testutil.NewECKey(t), "first")
	next := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, old, next,
		lineage.NewCapabilitiesBuilder().SetAuth(true),
		lineage.NewCapabilitiesBuilder().SetRollback(true), 28)
	require.NoError(t, err)

	oldCaps, err := l.Capabilities(old.Certificate)
	require.NoError(t, err)
	assert.True(t, oldCaps.Auth())
	assert.False(t, oldCaps.Rollback())
	assert.False(t, oldCaps.InstalledData())

	newCaps, err := l.Capabilities(next.Certificate)
	require.NoError(t, err)
	assert.True(t, newCaps.Rollback())
	assert.False(t, newCaps.Auth())
	assert.False(t, newCaps.SharedUID())
}

// TestRotateAppendKeepsInputAndGate verifies appending returns a new chain,
// leaves the input untouched, and ignores the minSDK argument in favor of
// the stored gate.
func TestRotateAppendKeepsInputAndGate(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")
	third := newIdentity(t, testutil.NewECKey(t), "third")

	base, err := lineage.Rotate(nil, first, second, nil, nil, 30)
	require.NoError(t, err)

	grown, err := lineage.Rotate(base, second, third, nil, nil, 99)
	require.NoError(t, err)

	assert.Equal(t, 3, grown.Len())
	assert.Equal(t, 30, grown.MinSDK())
	assert.Equal(t, third.Certificate.Raw, grown.Terminal().Raw)

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, second.Certificate.Raw, base.Terminal().Raw)
}

// TestRotateRejectsWrongOldSigner verifies an append whose old signer is
// not the terminal signer fails and reports who the terminal actually is.
func TestRotateRejectsWrongOldSigner(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")
	third := newIdentity(t, testutil.NewECKey(t), "third")

	base, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	_, err = lineage.Rotate(base, first, third, nil, nil, 28)
	var mismatch lineage.LineageMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, second.Certificate.Raw, mismatch.Terminal.Raw)
}

// TestRotateAppliesOldCapsToFormerTerminal verifies the old signer's
// capability overrides land on its node during the append, without touching
// the input chain.
func TestRotateAppliesOldCapsToFormerTerminal(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")
	third := newIdentity(t, testutil.NewECKey(t), "third")

	granted := lineage.NewCapabilitiesBuilder().SetAuth(true).SetInstalledData(true).Build()
	base, err := lineage.Rotate(nil, first, second, nil,
		lineage.NewCapabilitiesBuilder().SetAuth(true).SetInstalledData(true), 28)
	require.NoError(t, err)

	oldCaps := lineage.NewCapabilitiesBuilder().SetAuth(false).SetRollback(true)
	grown, err := lineage.Rotate(base, second, third, oldCaps, nil, 28)
	require.NoError(t, err)

	caps, err := grown.Capabilities(second.Certificate)
	require.NoError(t, err)
	assert.False(t, caps.Auth())
	assert.True(t, caps.Rollback())
	assert.True(t, caps.InstalledData())

	unchanged, err := base.Capabilities(second.Certificate)
	require.NoError(t, err)
	assert.Equal(t, granted, unchanged)
}

// TestRotateRejectsIncompleteIdentity verifies both identities must carry a
// key and a certificate.
func TestRotateRejectsIncompleteIdentity(t *testing.T) {
	t.Parallel()

	complete := newIdentity(t, testutil.NewECKey(t), "first")

	_, err := lineage.Rotate(nil, lineage.SignerIdentity{}, complete, nil, nil, 28)
	assert.EqualError(t, err, "old signer needs both a private key and a certificate")

	var cfgErr apkerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = lineage.Rotate(nil, complete, lineage.SignerIdentity{Key: complete.Key}, nil, nil, 28)
	assert.EqualError(t, err, "new signer needs both a private key and a certificate")
}

// TestUpdateCapabilitiesReportsChange verifies the change report is true
// exactly when the stored grants differ afterward, and that sibling
// signers stay untouched.
func TestUpdateCapabilitiesReportsChange(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	grant := lineage.NewCapabilitiesBuilder().SetAuth(true)

	changed, err := l.UpdateCapabilities(first.Certificate, grant)
	require.NoError(t, err)
	assert.True(t, changed)

	caps, err := l.Capabilities(first.Certificate)
	require.NoError(t, err)
	assert.True(t, caps.Auth())

	sibling, err := l.Capabilities(second.Certificate)
	require.NoError(t, err)
	assert.Equal(t, lineage.Capabilities{}, sibling)

	changed, err = l.UpdateCapabilities(first.Certificate, grant)
	require.NoError(t, err)
	assert.False(t, changed)
}

// TestUpdateCapabilitiesUnknownSigner verifies a certificate outside the
// chain is rejected.
func TestUpdateCapabilitiesUnknownSigner(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")
	stranger := newIdentity(t, testutil.NewECKey(t), "stranger")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	_, err = l.UpdateCapabilities(stranger.Certificate, lineage.NewCapabilitiesBuilder().SetAuth(false))
	var notFound lineage.SignerNotInLineageError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, stranger.Certificate.Raw, notFound.Certificate.Raw)
}

// TestSerializationRoundTrip verifies a chain with RSA and EC rotation
// proofs survives WriteTo and ReadFrom intact.
func TestSerializationRoundTrip(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.RSAKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")
	third := newIdentity(t, testutil.NewECKey(t), "third")

	base, err := lineage.Rotate(nil, first, second,
		lineage.NewCapabilitiesBuilder().SetRollback(true), nil, 24)
	require.NoError(t, err)
	l, err := lineage.Rotate(base, second, third, nil, nil, 24)
	require.NoError(t, err)

	got, err := lineage.ReadFrom(bytes.NewReader(serialize(t, l)))
	require.NoError(t, err)

	assert.Equal(t, 3, got.Len())
	assert.Equal(t, 24, got.MinSDK())

	want := l.Signers()
	for i, cert := range got.Signers() {
		assert.Equal(t, want[i].Raw, cert.Raw, "signer %d", i)

		wantCaps, err := l.Capabilities(want[i])
		require.NoError(t, err)
		gotCaps, err := got.Capabilities(cert)
		require.NoError(t, err)
		assert.Equal(t, wantCaps, gotCaps, "signer %d", i)
	}

	rollback, err := got.Capabilities(first.Certificate)
	require.NoError(t, err)
	assert.True(t, rollback.Rollback())
}

// TestReadFromRejectsTamperedProof verifies a flipped proof byte fails
// validation instead of loading.
func TestReadFromRejectsTamperedProof(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	data := serialize(t, l)
	// The file ends with the final node's proof followed by its four
	// capability bytes.
	data[len(data)-5] ^= 0x01

	_, err = lineage.ReadFrom(bytes.NewReader(data))
	var invalid lineage.InvalidLineageError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "rotation proof")
}

// TestReadFromRejectsBadMagic verifies a foreign file is refused up front.
func TestReadFromRejectsBadMagic(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	data := serialize(t, l)
	data[0] ^= 0xff

	_, err = lineage.ReadFrom(bytes.NewReader(data))
	assert.EqualError(t, err, "invalid lineage: not a lineage file")
}

// TestReadFromRejectsUnknownVersion verifies files from a newer format are
// refused rather than misread.
func TestReadFromRejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	data := serialize(t, l)
	binary.LittleEndian.PutUint32(data[8:12], 9)

	_, err = lineage.ReadFrom(bytes.NewReader(data))
	assert.EqualError(t, err, "invalid lineage: unsupported version 9")
}

// TestReadFromRejectsTruncated verifies a cut short file reports truncation.
func TestReadFromRejectsTruncated(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	data := serialize(t, l)

	_, err = lineage.ReadFrom(bytes.NewReader(data[:len(data)-3]))
	var invalid lineage.InvalidLineageError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "truncated")
}

// TestWriteAndReadFile verifies the file helpers round trip and name the
// path on failure.
func TestWriteAndReadFile(t *testing.T) {
	t.Parallel()

	first := newIdentity(t, testutil.NewECKey(t), "first")
	second := newIdentity(t, testutil.NewECKey(t), "second")

	l, err := lineage.Rotate(nil, first, second, nil, nil, 28)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "release.lineage")
	require.NoError(t, l.WriteFile(path))

	got, err := lineage.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, second.Certificate.Raw, got.Terminal().Raw)

	_, err = lineage.ReadFile(filepath.Join(t.TempDir(), "missing.lineage"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading lineage file")
}

// TestNewSignerIdentityRejectsUnsupportedKey verifies key types outside
// RSA, EC, and DSA are refused with the algorithm named.
func TestNewSignerIdentityRejectsUnsupportedKey(t *testing.T) {
	t.Parallel()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cert := testutil.SelfSignedCert(t, key, "ed25519")

	_, err = lineage.NewSignerIdentity(key, cert)
	var algErr apkerrors.UnsupportedKeyAlgorithmError
	require.ErrorAs(t, err, &algErr)
	assert.Equal(t, "ed25519.PrivateKey", algErr.Algorithm)
}
