package testutil

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	jks "github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/crypto/pbkdf2"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
	rsaKeyErr  error
)

// RSAKey returns a process-wide 2048-bit RSA key.
//
// Generation is expensive, so the key is created once and shared. Tests
// must treat it as read-only. Use NewECKey when a test needs several
// distinct keys.
func RSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaKeyOnce.Do(func() {
		rsaKey, rsaKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if rsaKeyErr != nil {
		t.Fatalf("Failed to generate RSA key: %v", rsaKeyErr)
	}
	return rsaKey
}

// NewECKey returns a fresh P-256 key. Generation is cheap enough to call
// per test, and per signer within a test.
func NewECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate EC key: %v", err)
	}
	return key
}

// SelfSignedCert issues a self-signed certificate for key with the given
// common name. The certificate is valid for ten years so lineage fixtures
// never age out mid-test.
func SelfSignedCert(t *testing.T, key crypto.Signer, commonName string) *x509.Certificate {
	t.Helper()

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to pick a serial number: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("Failed to create certificate for %q: %v", commonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to reparse certificate for %q: %v", commonName, err)
	}
	return cert
}

// PKCS8DER returns the PKCS #8 encoding of key.
func PKCS8DER(t *testing.T, key crypto.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}
	return der
}

// PKCS12Store serializes a single-entry PKCS #12 store protected by
// password.
func PKCS12Store(t *testing.T, key crypto.Signer, cert *x509.Certificate, password string) []byte {
	t.Helper()
	data, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS #12 store: %v", err)
	}
	return data
}

// CertPEM returns the PEM encoding of cert.
func CertPEM(t *testing.T, cert *x509.Certificate) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

type encAlgorithmIdentifier struct {
	OID    asn1.ObjectIdentifier
	Params asn1.RawValue
}

type encEnvelope struct {
	Algo encAlgorithmIdentifier
	Data []byte
}

type encPBES2Params struct {
	KDF    encAlgorithmIdentifier
	Scheme encAlgorithmIdentifier
}

type encPBKDF2Params struct {
	Salt       []byte
	Iterations int
	PRF        encAlgorithmIdentifier
}

// EncryptedPKCS8 wraps plainDER in a PBES2 EncryptedPrivateKeyInfo
// envelope (PBKDF2/HMAC-SHA256, AES-256-CBC) protected by password.
func EncryptedPKCS8(t *testing.T, plainDER []byte, password string) []byte {
	t.Helper()

	salt := make([]byte, 8)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("Failed to draw salt: %v", err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("Failed to draw IV: %v", err)
	}

	const iterations = 2048
	key := pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("Failed to build cipher: %v", err)
	}
	pad := block.BlockSize() - len(plainDER)%block.BlockSize()
	padded := make([]byte, len(plainDER)+pad)
	copy(padded, plainDER)
	for i := len(plainDER); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	kdfDER, err := asn1.Marshal(encPBKDF2Params{
		Salt:       salt,
		Iterations: iterations,
		PRF: encAlgorithmIdentifier{
			OID:    asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9},
			Params: asn1.NullRawValue,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal KDF parameters: %v", err)
	}
	ivDER, err := asn1.Marshal(iv)
	if err != nil {
		t.Fatalf("Failed to marshal IV: %v", err)
	}
	pbes2DER, err := asn1.Marshal(encPBES2Params{
		KDF: encAlgorithmIdentifier{
			OID:    asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12},
			Params: asn1.RawValue{FullBytes: kdfDER},
		},
		Scheme: encAlgorithmIdentifier{
			OID:    asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42},
			Params: asn1.RawValue{FullBytes: ivDER},
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal PBES2 parameters: %v", err)
	}
	der, err := asn1.Marshal(encEnvelope{
		Algo: encAlgorithmIdentifier{
			OID:    asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13},
			Params: asn1.RawValue{FullBytes: pbes2DER},
		},
		Data: ciphertext,
	})
	if err != nil {
		t.Fatalf("Failed to marshal encrypted envelope: %v", err)
	}
	return der
}

// JKSEntry describes one private key entry for JKSStore.
type JKSEntry struct {
	Alias string
	Key   crypto.Signer
	Chain []*x509.Certificate
}

// JKSStore serializes a JKS store holding the given key entries. All
// entries share entryPassword; the store digest uses storePassword.
func JKSStore(t *testing.T, storePassword, entryPassword []byte, entries ...JKSEntry) []byte {
	t.Helper()

	ks := jks.New()
	for _, e := range entries {
		chain := make([]jks.Certificate, len(e.Chain))
		for i, cert := range e.Chain {
			chain[i] = jks.Certificate{Type: "X509", Content: cert.Raw}
		}
		entry := jks.PrivateKeyEntry{
			CreationTime:     time.Now(),
			PrivateKey:       PKCS8DER(t, e.Key),
			CertificateChain: chain,
		}
		if err := ks.SetPrivateKeyEntry(e.Alias, entry, entryPassword); err != nil {
			t.Fatalf("Failed to add JKS entry %q: %v", e.Alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, storePassword); err != nil {
		t.Fatalf("Failed to serialize JKS store: %v", err)
	}
	return buf.Bytes()
}
