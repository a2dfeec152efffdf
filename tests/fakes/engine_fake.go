package fakes

import (
	"context"
	"os"

	"github.com/sigforge/apksigner/pkg/apk"
)

// FakeEngine is an in-memory stand-in for the APK signing engine behind
// pkg/apk. Commands under test receive it through config.Config.Engine.
type FakeEngine struct {
	// SignFunc overrides the default sign behavior when set.
	SignFunc func(ctx context.Context, req apk.SignRequest) (*apk.SignResult, error)
	// VerifyFunc overrides the default verify behavior when set.
	VerifyFunc func(ctx context.Context, req apk.VerifyRequest) (*apk.VerifyResult, error)

	// SignRequests records every sign request in order.
	SignRequests []apk.SignRequest
	// VerifyRequests records every verify request in order.
	VerifyRequests []apk.VerifyRequest

	// SignWarnings populate the result of the default sign behavior.
	SignWarnings []string
	// VerifyResult is returned by the default verify behavior. Nil means
	// a verified result with no signers.
	VerifyResult *apk.VerifyResult
}

// Sign implements apk.Engine. The default behavior writes an empty output
// file, like a real engine producing the signed APK.
func (f *FakeEngine) Sign(ctx context.Context, req apk.SignRequest) (*apk.SignResult, error) {
	f.SignRequests = append(f.SignRequests, req)
	if f.SignFunc != nil {
		return f.SignFunc(ctx, req)
	}
	if err := os.WriteFile(req.Output, []byte("signed"), 0o644); err != nil {
		return nil, err
	}
	return &apk.SignResult{Warnings: f.SignWarnings}, nil
}

// Verify implements apk.Engine.
func (f *FakeEngine) Verify(ctx context.Context, req apk.VerifyRequest) (*apk.VerifyResult, error) {
	f.VerifyRequests = append(f.VerifyRequests, req)
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, req)
	}
	if f.VerifyResult != nil {
		return f.VerifyResult, nil
	}
	return &apk.VerifyResult{Verified: true}, nil
}
