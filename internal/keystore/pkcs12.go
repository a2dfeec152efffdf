// Package keystore implements the built-in key store providers behind
// pkg/keystore: PKCS #12 and JKS.
package keystore

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"

	pubks "github.com/sigforge/apksigner/pkg/keystore"
)

// pkcs12Alias is the alias assigned to the single key entry of a PKCS #12
// store. keytool displays unnamed PKCS #12 entries the same way.
const pkcs12Alias = "1"

// PKCS12Provider opens PKCS #12 (PFX) stores.
type PKCS12Provider struct{}

// Name implements pkg/keystore.Provider.
func (PKCS12Provider) Name() string { return "pkcs12" }

// Types implements pkg/keystore.Provider.
func (PKCS12Provider) Types() []string { return []string{"pkcs12", "pfx"} }

// Open implements pkg/keystore.Provider.
func (p PKCS12Provider) Open(storeType string) (pubks.Store, error) {
	return &pkcs12Store{}, nil
}

// pkcs12Store adapts go-pkcs12 to the Store interface. The format has a
// single store-level password and, as parsed here, a single key entry with
// its chain.
type pkcs12Store struct {
	loaded bool
	key    crypto.PrivateKey
	chain  []*x509.Certificate
}

func (s *pkcs12Store) Load(data, password []byte) error {
	s.loaded = false
	s.key = nil
	s.chain = nil

	key, leaf, caCerts, err := pkcs12.DecodeChain(data, string(password))
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return fmt.Errorf("%w: %v", pubks.ErrWrongPassword, err)
		}
		return fmt.Errorf("pkcs12: %w", err)
	}

	s.loaded = true
	s.key = key
	if leaf != nil {
		s.chain = append([]*x509.Certificate{leaf}, caCerts...)
	}
	return nil
}

func (s *pkcs12Store) Aliases() []string {
	if !s.loaded || s.key == nil {
		return nil
	}
	return []string{pkcs12Alias}
}

func (s *pkcs12Store) IsKeyEntry(alias string) bool {
	return s.loaded && s.key != nil && alias == pkcs12Alias
}

// Key returns the store's single private key. PKCS #12 entries are sealed
// by the store password that already opened the container, so the entry
// password is ignored.
func (s *pkcs12Store) Key(alias string, password []byte) (crypto.PrivateKey, error) {
	if !s.IsKeyEntry(alias) {
		return nil, fmt.Errorf("pkcs12: no key entry %q", alias)
	}
	return s.key, nil
}

func (s *pkcs12Store) CertificateChain(alias string) ([]*x509.Certificate, error) {
	if !s.IsKeyEntry(alias) {
		return nil, fmt.Errorf("pkcs12: no key entry %q", alias)
	}
	return s.chain, nil
}
