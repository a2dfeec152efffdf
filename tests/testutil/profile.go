package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// ProfileBuilder assembles a signing profile document for tests.
//
// The builder starts from a minimal valid profile (version 1) and writes
// schema-conforming YAML, so tests exercise the same validation path as a
// hand-written profile.
//
// Example usage:
//
//	path := testutil.NewProfile(t).
//	    WithSchemes(true, true, false).
//	    WithFileSigner("release", keyPath, certPath, "file:"+passPath).
//	    Write()
type ProfileBuilder struct {
	t       *testing.T
	tempDir string
	doc     map[string]any
	signing map[string]any
	signers []map[string]any
}

// NewProfile creates a ProfileBuilder writing into a fresh temp directory.
func NewProfile(t *testing.T) *ProfileBuilder {
	t.Helper()
	return &ProfileBuilder{
		t:       t,
		tempDir: t.TempDir(),
		doc:     map[string]any{"version": 1},
		signing: map[string]any{},
	}
}

// WithSchemes sets the three signature scheme toggles.
func (b *ProfileBuilder) WithSchemes(v1, v2, v3 bool) *ProfileBuilder {
	b.signing["v1"] = v1
	b.signing["v2"] = v2
	b.signing["v3"] = v3
	return b
}

// WithMinSdk sets the minimum platform level.
func (b *ProfileBuilder) WithMinSdk(level int) *ProfileBuilder {
	b.signing["minSdk"] = level
	return b
}

// WithMaxSdk sets the maximum platform level.
func (b *ProfileBuilder) WithMaxSdk(level int) *ProfileBuilder {
	b.signing["maxSdk"] = level
	return b
}

// WithLineage points the profile at a lineage file.
func (b *ProfileBuilder) WithLineage(path string) *ProfileBuilder {
	b.doc["lineage"] = path
	return b
}

// WithStoreSigner adds a keystore-backed signer. The extra map merges
// additional keystore fields (alias, type, keyPass, passEncoding).
func (b *ProfileBuilder) WithStoreSigner(name, path, storePass string, extra map[string]string) *ProfileBuilder {
	ks := map[string]any{
		"path":      path,
		"storePass": storePass,
	}
	for k, v := range extra {
		ks[k] = v
	}
	s := map[string]any{"keystore": ks}
	if name != "" {
		s["name"] = name
	}
	b.signers = append(b.signers, s)
	return b
}

// WithFileSigner adds a raw key/certificate file signer. An empty keyPass
// leaves the key unprotected.
func (b *ProfileBuilder) WithFileSigner(name, keyPath, certPath, keyPass string) *ProfileBuilder {
	s := map[string]any{
		"key":  keyPath,
		"cert": certPath,
	}
	if name != "" {
		s["name"] = name
	}
	if keyPass != "" {
		s["keyPass"] = keyPass
	}
	b.signers = append(b.signers, s)
	return b
}

// Write serializes the profile into the builder's temp directory and
// returns the path.
func (b *ProfileBuilder) Write() string {
	b.t.Helper()

	if len(b.signing) > 0 {
		b.doc["signing"] = b.signing
	}
	b.doc["signers"] = b.signers

	data, err := yaml.Marshal(b.doc)
	if err != nil {
		b.t.Fatalf("Failed to marshal profile: %v", err)
	}

	path := filepath.Join(b.tempDir, "signing.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		b.t.Fatalf("Failed to write profile: %v", err)
	}
	return path
}

// WriteProfile writes a raw YAML profile string to a temp file and returns
// the path. Useful for tests whose point is the exact document shape.
func WriteProfile(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "signing.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write profile: %v", err)
	}
	return path
}
