package keystore

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"strings"

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"

	"github.com/sigforge/apksigner/internal/pkcs8"
	pubks "github.com/sigforge/apksigner/pkg/keystore"
)

// JKSProvider opens Java KeyStore files.
type JKSProvider struct{}

// Name implements pkg/keystore.Provider.
func (JKSProvider) Name() string { return "jks" }

// Types implements pkg/keystore.Provider.
func (JKSProvider) Types() []string { return []string{"jks"} }

// Open implements pkg/keystore.Provider.
func (p JKSProvider) Open(storeType string) (pubks.Store, error) {
	return &jksStore{}, nil
}

// jksStore adapts keystore-go to the Store interface. JKS protects the
// store with an integrity digest and each key entry with its own
// encryption, so both Load and Key can see password rejections.
type jksStore struct {
	loaded bool
	ks     jks.KeyStore
}

func (s *jksStore) Load(data, password []byte) error {
	s.loaded = false
	s.ks = jks.New()
	if err := s.ks.Load(bytes.NewReader(data), password); err != nil {
		return classifyJKS(err)
	}
	s.loaded = true
	return nil
}

func (s *jksStore) Aliases() []string {
	if !s.loaded {
		return nil
	}
	return s.ks.Aliases()
}

func (s *jksStore) IsKeyEntry(alias string) bool {
	return s.loaded && s.ks.IsPrivateKeyEntry(alias)
}

// Key decrypts the entry under alias and decodes its PKCS #8 blob, trying
// RSA, EC, and DSA in that order.
func (s *jksStore) Key(alias string, password []byte) (crypto.PrivateKey, error) {
	if !s.loaded {
		return nil, fmt.Errorf("jks: store not loaded")
	}
	entry, err := s.ks.GetPrivateKeyEntry(alias, password)
	if err != nil {
		return nil, classifyJKS(err)
	}
	key, err := pkcs8.Decode(entry.PrivateKey)
	if err != nil {
		return nil, err
	}
	return key, nil
}

func (s *jksStore) CertificateChain(alias string) ([]*x509.Certificate, error) {
	if !s.loaded {
		return nil, fmt.Errorf("jks: store not loaded")
	}
	if s.ks.IsTrustedCertificateEntry(alias) {
		entry, err := s.ks.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, fmt.Errorf("jks: %w", err)
		}
		cert, err := x509.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			return nil, fmt.Errorf("jks: parsing trusted certificate %q: %w", alias, err)
		}
		return []*x509.Certificate{cert}, nil
	}

	raw, err := s.ks.GetPrivateKeyEntryCertificateChain(alias)
	if err != nil {
		return nil, fmt.Errorf("jks: %w", err)
	}
	chain := make([]*x509.Certificate, 0, len(raw))
	for i, c := range raw {
		cert, err := x509.ParseCertificate(c.Content)
		if err != nil {
			return nil, fmt.Errorf("jks: parsing certificate %d of %q: %w", i, alias, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// classifyJKS maps keystore-go failures onto the provider contract. The
// library reports password rejections only through its digest mismatch
// message, for the store digest and the per-entry checksum alike.
func classifyJKS(err error) error {
	if strings.Contains(err.Error(), "invalid digest") {
		return fmt.Errorf("%w: %v", pubks.ErrWrongPassword, err)
	}
	return fmt.Errorf("jks: %w", err)
}
