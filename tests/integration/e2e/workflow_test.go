// Package e2e exercises complete signing workflows through the apksigner
// command tree: rotation, capability maintenance, signing, and
// verification run against shared on-disk fixtures, with only the APK
// engine faked out.
package e2e

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigforge/apksigner/cmd/apksigner/commands"
	"github.com/sigforge/apksigner/internal/config"
	"github.com/sigforge/apksigner/internal/logging"
	"github.com/sigforge/apksigner/pkg/apk"
	"github.com/sigforge/apksigner/pkg/lineage"
	"github.com/sigforge/apksigner/tests/fakes"
	"github.com/sigforge/apksigner/tests/testutil"
)

// runRoot executes one command line through a fresh command tree.
func runRoot(t *testing.T, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()

	root := commands.NewRootCommand(cfg)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func newConfig(eng apk.Engine) *config.Config {
	return &config.Config{
		Logger:         logging.New(false, true),
		NonInteractive: true,
		Engine:         eng,
	}
}

type signerFiles struct {
	key      *ecdsa.PrivateKey
	cert     *x509.Certificate
	keyPath  string
	certPath string
}

func writeSigner(t *testing.T, dir, base, commonName string) signerFiles {
	t.Helper()

	key := testutil.NewECKey(t)
	cert := testutil.SelfSignedCert(t, key, commonName)
	keyPath := filepath.Join(dir, base+".pk8")
	certPath := filepath.Join(dir, base+".x509.pem")
	require.NoError(t, os.WriteFile(keyPath, testutil.PKCS8DER(t, key), 0o600))
	require.NoError(t, os.WriteFile(certPath, testutil.CertPEM(t, cert), 0o644))
	return signerFiles{key: key, cert: cert, keyPath: keyPath, certPath: certPath}
}

// TestKeyRotationLifecycle walks a key through its whole life: rotate into
// a lineage, grant the retired key a capability, sign with both keys, and
// verify the result.
func TestKeyRotationLifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeSigner(t, dir, "first", "first")
	second := writeSigner(t, dir, "second", "second")
	lineagePath := filepath.Join(dir, "release.lineage")

	eng := &fakes.FakeEngine{}
	cfg := newConfig(eng)

	_, _, err := runRoot(t, cfg, "rotate",
		"--out", lineagePath,
		"--min-sdk-version", "28",
		"--old-signer", "--key", first.keyPath, "--cert", first.certPath,
		"--new-signer", "--key", second.keyPath, "--cert", second.certPath, "--set-rollback",
	)
	require.NoError(t, err)

	lin, err := lineage.ReadFile(lineagePath)
	require.NoError(t, err)
	assert.Equal(t, 2, lin.Len())
	assert.Equal(t, 28, lin.MinSDK())

	caps, err := lin.Capabilities(second.cert)
	require.NoError(t, err)
	assert.True(t, caps.Rollback())

	// Grant the retired key the auth capability and inspect the chain.
	stdout, _, err := runRoot(t, cfg, "lineage",
		"--in", lineagePath, "--out", lineagePath,
		"--signer", "--key", first.keyPath, "--cert", first.certPath, "--set-auth",
		"--print-certs",
	)
	require.NoError(t, err)
	testutil.AssertLinesContain(t, stdout, []string{
		"Signer #1 in lineage certificate DN: CN=first",
		"Signer #2 in lineage certificate DN: CN=second",
		"Has auth capability          : true",
		"Has rollback capability      : true",
	})

	apkPath := filepath.Join(dir, "app.apk")
	outPath := filepath.Join(dir, "app-signed.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte("unsigned"), 0o644))

	_, _, err = runRoot(t, cfg, "sign",
		"--lineage", lineagePath,
		"--out", outPath,
		"--key", first.keyPath, "--cert", first.certPath,
		"--next-signer",
		"--key", second.keyPath, "--cert", second.certPath,
		apkPath,
	)
	require.NoError(t, err)

	require.Len(t, eng.SignRequests, 1)
	req := eng.SignRequests[0]
	require.NotNil(t, req.Lineage)
	assert.Equal(t, 2, req.Lineage.Len())
	require.Len(t, req.Signers, 2)
	assert.Equal(t, "first", req.Signers[0].Name)
	assert.Equal(t, "second", req.Signers[1].Name)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "signed", string(data))

	eng.VerifyResult = &apk.VerifyResult{
		Verified:    true,
		V2:          true,
		V3:          true,
		SignerCerts: []*x509.Certificate{second.cert},
	}
	stdout, stderr, err := runRoot(t, cfg, "verify", "-v", "--print-certs", outPath)
	require.NoError(t, err)
	assert.Empty(t, stderr)
	testutil.AssertLinesContain(t, stdout, []string{
		"Verifies",
		"Verified using v2 scheme (APK Signature Scheme v2): true",
		"Signer #1 certificate DN: CN=second",
	})

	require.Len(t, eng.VerifyRequests, 1)
	assert.Equal(t, outPath, eng.VerifyRequests[0].Path)
}

// TestProfileStoreSigningWorkflow signs through a profile whose signer
// lives in a real PKCS #12 store, with the store password drawn from a
// file source.
func TestProfileStoreSigningWorkflow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := testutil.RSAKey(t)
	cert := testutil.SelfSignedCert(t, key, "store release")

	const storePass = "e2e-store-pass"
	storePath := filepath.Join(dir, "release.p12")
	require.NoError(t, os.WriteFile(storePath, testutil.PKCS12Store(t, key, cert, storePass), 0o600))
	passPath := filepath.Join(dir, "ks.pass")
	require.NoError(t, os.WriteFile(passPath, []byte(storePass+"\n"), 0o600))

	profilePath := testutil.NewProfile(t).
		WithSchemes(true, true, false).
		WithMinSdk(24).
		WithStoreSigner("release", storePath, "file:"+passPath, map[string]string{"type": "pkcs12"}).
		Write()

	apkPath := filepath.Join(dir, "app.apk")
	outPath := filepath.Join(dir, "app-signed.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte("unsigned"), 0o644))

	eng := &fakes.FakeEngine{}
	cfg := newConfig(eng)

	stdout, stderr, err := runRoot(t, cfg, "sign",
		"--profile", profilePath, "--out", outPath, "-v", apkPath,
	)
	require.NoError(t, err)

	require.Len(t, eng.SignRequests, 1)
	req := eng.SignRequests[0]
	assert.True(t, req.V1)
	assert.False(t, req.V3)
	assert.Equal(t, 24, req.MinSDK)
	assert.True(t, req.MinSDKSet)

	require.Len(t, req.Signers, 1)
	assert.Equal(t, "release", req.Signers[0].Name)
	rsaKey, ok := req.Signers[0].Key.(*rsa.PrivateKey)
	require.True(t, ok, "expected the RSA key from the store, got %T", req.Signers[0].Key)
	assert.True(t, rsaKey.PublicKey.Equal(key.Public()))
	require.NotEmpty(t, req.Signers[0].Certificates)
	assert.Equal(t, cert.Raw, req.Signers[0].Certificates[0].Raw)

	assert.Contains(t, stdout, "Signed")
	testutil.AssertNoSecretLeak(t, stdout+stderr, []string{storePass})
}

// TestKeystoreCLISigningWorkflow signs with a multi-entry capable JKS
// store named on the command line, exercising both password layers.
func TestKeystoreCLISigningWorkflow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := testutil.NewECKey(t)
	cert := testutil.SelfSignedCert(t, key, "jks release")

	const storePass = "jks-store-pass"
	const keyPass = "jks-key-pass"
	jksPath := filepath.Join(dir, "release.jks")
	data := testutil.JKSStore(t, []byte(storePass), []byte(keyPass), testutil.JKSEntry{
		Alias: "release",
		Key:   key,
		Chain: []*x509.Certificate{cert},
	})
	require.NoError(t, os.WriteFile(jksPath, data, 0o600))

	apkPath := filepath.Join(dir, "app.apk")
	outPath := filepath.Join(dir, "app-signed.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte("unsigned"), 0o644))

	eng := &fakes.FakeEngine{}
	cfg := newConfig(eng)

	stdout, stderr, err := runRoot(t, cfg, "sign",
		"--ks", jksPath, "--ks-type", "jks",
		"--ks-pass", "pass:"+storePass,
		"--key-pass", "pass:"+keyPass,
		"--out", outPath, apkPath,
	)
	require.NoError(t, err)

	require.Len(t, eng.SignRequests, 1)
	req := eng.SignRequests[0]
	require.Len(t, req.Signers, 1)
	assert.Equal(t, "release", req.Signers[0].Name, "the adopted store alias becomes the display name")

	ecKey, ok := req.Signers[0].Key.(*ecdsa.PrivateKey)
	require.True(t, ok, "expected the EC key from the store, got %T", req.Signers[0].Key)
	assert.True(t, ecKey.PublicKey.Equal(key.Public()))

	testutil.AssertNoSecretLeak(t, stdout+stderr, []string{storePass, keyPass})
}
