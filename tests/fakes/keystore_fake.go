package fakes

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/sigforge/apksigner/pkg/keystore"
)

// FakeStoreEntry is one entry in a FakeStore.
type FakeStoreEntry struct {
	// Key is the private key returned on successful unlock.
	Key crypto.PrivateKey
	// Password protects the entry. Nil accepts any password.
	Password []byte
	// Chain is the entry's certificate chain.
	Chain []*x509.Certificate
	// CertOnly marks the entry as a trusted certificate rather than a key.
	CertOnly bool
}

// FakeStore is a scripted key store for exercising credential loading
// without a real container format.
type FakeStore struct {
	// StorePassword is required by Load. Nil accepts any password.
	StorePassword []byte
	// Entries maps aliases to entries.
	Entries map[string]*FakeStoreEntry
	// AliasOrder fixes the order Aliases returns. Missing aliases are
	// appended in map order.
	AliasOrder []string
	// LoadErr, when set, fails every Load with this error.
	LoadErr error
	// KeyErr, when set, fails every Key call with this error. It is
	// returned as-is, so tests can model failures that are not password
	// rejections.
	KeyErr error

	// LoadAttempts records the password of every Load call.
	LoadAttempts [][]byte
	// KeyAttempts records the password of every Key call.
	KeyAttempts [][]byte

	loaded bool
}

// Load implements keystore.Store.
func (s *FakeStore) Load(data, password []byte) error {
	s.LoadAttempts = append(s.LoadAttempts, append([]byte(nil), password...))
	if s.LoadErr != nil {
		return s.LoadErr
	}
	if s.StorePassword != nil && !bytes.Equal(password, s.StorePassword) {
		return fmt.Errorf("%w: integrity check failed", keystore.ErrWrongPassword)
	}
	s.loaded = true
	return nil
}

// Aliases implements keystore.Store.
func (s *FakeStore) Aliases() []string {
	if !s.loaded {
		return nil
	}
	seen := make(map[string]bool, len(s.AliasOrder))
	out := make([]string, 0, len(s.Entries))
	for _, alias := range s.AliasOrder {
		if _, ok := s.Entries[alias]; ok {
			out = append(out, alias)
			seen[alias] = true
		}
	}
	for alias := range s.Entries {
		if !seen[alias] {
			out = append(out, alias)
		}
	}
	return out
}

// IsKeyEntry implements keystore.Store.
func (s *FakeStore) IsKeyEntry(alias string) bool {
	if !s.loaded {
		return false
	}
	entry, ok := s.Entries[alias]
	return ok && !entry.CertOnly
}

// Key implements keystore.Store.
func (s *FakeStore) Key(alias string, password []byte) (crypto.PrivateKey, error) {
	s.KeyAttempts = append(s.KeyAttempts, append([]byte(nil), password...))
	if s.KeyErr != nil {
		return nil, s.KeyErr
	}
	entry, ok := s.Entries[alias]
	if !ok || entry.CertOnly {
		return nil, fmt.Errorf("no key entry %q", alias)
	}
	if entry.Password != nil && !bytes.Equal(password, entry.Password) {
		return nil, fmt.Errorf("%w: cannot recover key", keystore.ErrWrongPassword)
	}
	return entry.Key, nil
}

// CertificateChain implements keystore.Store.
func (s *FakeStore) CertificateChain(alias string) ([]*x509.Certificate, error) {
	entry, ok := s.Entries[alias]
	if !ok {
		return nil, fmt.Errorf("no entry %q", alias)
	}
	return entry.Chain, nil
}

// FakeStoreProvider serves a single prepared FakeStore.
type FakeStoreProvider struct {
	// ProviderName is returned by Name. Defaults to "fake".
	ProviderName string
	// StoreTypes lists the claimed types. Defaults to ["fake"].
	StoreTypes []string
	// Store is handed out by Open.
	Store *FakeStore
	// OpenErr, when set, fails Open.
	OpenErr error
}

// Name implements keystore.Provider.
func (p *FakeStoreProvider) Name() string {
	if p.ProviderName == "" {
		return "fake"
	}
	return p.ProviderName
}

// Types implements keystore.Provider.
func (p *FakeStoreProvider) Types() []string {
	if len(p.StoreTypes) == 0 {
		return []string{"fake"}
	}
	return p.StoreTypes
}

// Open implements keystore.Provider.
func (p *FakeStoreProvider) Open(storeType string) (keystore.Store, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	return p.Store, nil
}
