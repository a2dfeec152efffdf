// Package keystore defines the interfaces and registry for key store
// providers in apksigner.
//
// A key store is a password-protected container holding private keys and
// their certificate chains, addressed by alias. This package abstracts the
// container format (PKCS #12, JKS, hardware-backed stores, ...) behind a
// common API so credential loading works the same way regardless of where
// the signing material lives.
//
// # Provider Architecture
//
// A Provider knows how to open stores of one or more named types. Providers
// sit in an ordered registry; opening a store type without naming a provider
// walks the registry in registration order and the first provider claiming
// the type wins. Because the walk is ordered, registration position is part
// of a provider's contract and RegisterAt exists for callers that need to
// front-load one.
//
// Factories cover providers that cannot be constructed up front because
// they need a caller-supplied argument, typically a configuration file for
// a PKCS #11 wrapper. A factory is registered under a name and builds a
// fresh Provider from the argument when asked.
//
// # Implementing a Provider
//
//  1. Implement Store for the container format.
//  2. Implement Provider returning that store from Open.
//  3. Register the provider, or a Factory when construction needs input.
//
// # Error Handling
//
// Implementations must report password rejections by wrapping
// ErrWrongPassword so that errors.Is(err, ErrWrongPassword) holds; callers
// use that signal to decide between retrying with another candidate and
// giving up. Registry lookups that miss return UnknownProviderError or
// UnknownTypeError.
//
// # Concurrency
//
// The registry is safe for concurrent use. Store implementations are not
// required to be: a Store is loaded and queried by one goroutine.
package keystore

import (
	"crypto"
	"crypto/x509"
	"errors"
	"strings"
	"sync"
)

// ErrWrongPassword reports that a store or one of its entries rejected the
// supplied password. Implementations wrap their native integrity or
// decryption failures with this sentinel.
var ErrWrongPassword = errors.New("keystore: wrong password")

// Store is a key store container of a single format.
//
// A zero store is empty; Load fills it from serialized bytes. All other
// methods operate on the loaded content.
type Store interface {
	// Load parses data using password for integrity checking and
	// store-level decryption. A password rejection wraps ErrWrongPassword.
	Load(data, password []byte) error

	// Aliases returns the entry names in the store, in store order.
	Aliases() []string

	// IsKeyEntry reports whether alias names a private key entry rather
	// than a trusted certificate or an absent alias.
	IsKeyEntry(alias string) bool

	// Key recovers the private key stored under alias. Formats with
	// per-entry encryption use password to decrypt the entry; formats with
	// store-level encryption only may ignore it. A password rejection
	// wraps ErrWrongPassword.
	Key(alias string, password []byte) (crypto.PrivateKey, error)

	// CertificateChain returns the certificate chain for alias, leaf
	// first. An empty chain and a nil error means the alias exists but
	// carries no certificates.
	CertificateChain(alias string) ([]*x509.Certificate, error)
}

// Provider constructs stores for the formats it supports.
type Provider interface {
	// Name returns the provider's stable identifier, used in error
	// messages and for provider-pinned lookups.
	Name() string

	// Types returns the store type names this provider can open.
	Types() []string

	// Open returns a fresh, unloaded Store for storeType. Open fails with
	// UnknownTypeError when the provider does not support the type.
	Open(storeType string) (Store, error)
}

// Factory builds a Provider from a caller-supplied argument. What the
// argument means is up to the factory; a PKCS #11 factory would treat it as
// the path of the native module configuration.
type Factory func(arg string) (Provider, error)

// UnknownProviderError indicates a lookup for a provider or factory name
// that nothing registered under.
type UnknownProviderError struct {
	// Name is the provider or factory name that missed.
	Name string
}

// Error implements the error interface.
func (e UnknownProviderError) Error() string {
	return "keystore: no provider registered as " + e.Name
}

// UnknownTypeError indicates that a store type is not supported, either by
// any registered provider or by the specific provider that was asked.
type UnknownTypeError struct {
	// Type is the requested store type.
	Type string

	// Provider is the provider that was asked, or empty when the whole
	// registry was searched.
	Provider string
}

// Error implements the error interface.
func (e UnknownTypeError) Error() string {
	if e.Provider == "" {
		return "keystore: no provider supports store type " + e.Type
	}
	return "keystore: provider " + e.Provider + " does not support store type " + e.Type
}

// Registry holds providers in registration order plus named factories.
// The zero value is ready to use.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	factories map[string]Factory
}

// Register appends p to the provider order.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// RegisterAt inserts p at pos in the provider order, shifting later
// providers down. Positions past the end append.
func (r *Registry) RegisterAt(pos int, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos >= len(r.providers) {
		r.providers = append(r.providers, p)
		return
	}
	r.providers = append(r.providers, nil)
	copy(r.providers[pos+1:], r.providers[pos:])
	r.providers[pos] = p
}

// RegisterFactory registers f under name, replacing any previous factory
// of that name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[name] = f
}

// Provider returns the registered provider called name.
func (r *Registry) Provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, UnknownProviderError{Name: name}
}

// Open returns an unloaded store of storeType. With an empty providerName
// the providers are tried in registration order and the first one claiming
// the type wins; otherwise only the named provider is consulted. Type
// names compare case-insensitively.
func (r *Registry) Open(storeType, providerName string) (Store, error) {
	if providerName != "" {
		p, err := r.Provider(providerName)
		if err != nil {
			return nil, err
		}
		if !claimsType(p, storeType) {
			return nil, UnknownTypeError{Type: storeType, Provider: p.Name()}
		}
		return p.Open(storeType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if claimsType(p, storeType) {
			return p.Open(storeType)
		}
	}
	return nil, UnknownTypeError{Type: storeType}
}

// Build constructs a provider through the named factory without adding it
// to the provider order. Callers that want the provider installed pass the
// result to Register or RegisterAt.
func (r *Registry) Build(factoryName, arg string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[factoryName]
	r.mu.RUnlock()
	if !ok {
		return nil, UnknownProviderError{Name: factoryName}
	}
	return f(arg)
}

// OpenVia builds a provider through the named factory and opens storeType
// with it. The built provider is not added to the registry; it serves the
// one store.
func (r *Registry) OpenVia(factoryName, arg, storeType string) (Store, error) {
	p, err := r.Build(factoryName, arg)
	if err != nil {
		return nil, err
	}
	if !claimsType(p, storeType) {
		return nil, UnknownTypeError{Type: storeType, Provider: p.Name()}
	}
	return p.Open(storeType)
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

func claimsType(p Provider, storeType string) bool {
	for _, t := range p.Types() {
		if strings.EqualFold(t, storeType) {
			return true
		}
	}
	return false
}
