// Package apk is the boundary to the APK signing engine. It defines the
// request and result shapes the commands assemble and a driver style slot
// the actual engine registers into at link time; this module ships no
// engine of its own.
package apk

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"sync"

	"github.com/sigforge/apksigner/pkg/lineage"
)

// ErrNoEngine is returned by Default when no engine has been registered.
var ErrNoEngine = errors.New("no APK engine linked into this binary")

// ErrMinSDKUndetermined is returned by engines that cannot read a minimum
// platform version out of the APK and were not given one.
var ErrMinSDKUndetermined = errors.New(
	"failed to determine the APK's minimum supported platform version; use --min-sdk-version to specify it")

// SignerConfig is one resolved signing credential, ready for the engine.
type SignerConfig struct {
	// Name is the signer's display name, used for the v1 signature
	// basename.
	Name string
	// Key is an *rsa.PrivateKey, *ecdsa.PrivateKey, or dsa key.
	Key crypto.PrivateKey
	// Certificates is the chain, leaf first.
	Certificates []*x509.Certificate
}

// SignRequest carries everything the engine needs to sign one APK.
type SignRequest struct {
	Input  string
	Output string

	// Signers are applied in order; the first signer is the primary one.
	Signers []SignerConfig

	V1, V2, V3 bool

	DebuggablePermitted bool

	// MinSDK bounds the platforms to sign for. MinSDKSet distinguishes an
	// explicit zero from "derive it from the APK".
	MinSDK    int
	MinSDKSet bool
	MaxSDK    int

	// Lineage, when non-nil, is the rotation history the v3 signature
	// should carry.
	Lineage *lineage.Lineage
}

// SignResult reports a completed signing run.
type SignResult struct {
	Warnings []string
}

// VerifyRequest names the APK to verify and the platform range to check.
type VerifyRequest struct {
	Path      string
	MinSDK    int
	MinSDKSet bool
	MaxSDK    int
}

// VerifyResult is the engine's verdict on one APK.
type VerifyResult struct {
	Verified bool

	// V1, V2, V3 report which schemes verified.
	V1, V2, V3 bool

	// SignerCerts are the leaf certificates of the verified signers.
	SignerCerts []*x509.Certificate

	Warnings []string
	Errors   []string
}

// Engine signs and verifies APKs. Implementations register themselves with
// Register from an init function or early in main.
type Engine interface {
	Sign(ctx context.Context, req SignRequest) (*SignResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

var (
	engineMu sync.RWMutex
	engine   Engine
)

// Register installs e as the process engine. A later Register replaces an
// earlier one.
func Register(e Engine) {
	if e == nil {
		panic("apk: Register engine is nil")
	}
	engineMu.Lock()
	defer engineMu.Unlock()
	engine = e
}

// Default returns the registered engine, or ErrNoEngine.
func Default() (Engine, error) {
	engineMu.RLock()
	defer engineMu.RUnlock()
	if engine == nil {
		return nil, ErrNoEngine
	}
	return engine, nil
}
