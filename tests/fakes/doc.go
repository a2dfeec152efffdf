// Package fakes provides test doubles for apksigner's external client
// interfaces.
//
// This package contains fake implementations of the AWS Secrets Manager
// client, the keystore provider interfaces, and the APK signing engine
// that allow unit testing without real service dependencies. Fakes are
// manually implemented (not generated) to provide precise control over
// test behavior.
//
// Usage:
//
//	fake := &fakes.FakeSecretsManagerClient{
//	    Secrets: map[string]string{"release/store-pass": "hunter2"},
//	}
//	retr := password.NewRetriever(password.WithSecretsClient(fake))
//	// Test retrieval methods...
package fakes
