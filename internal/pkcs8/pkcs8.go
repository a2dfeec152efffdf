// Package pkcs8 decodes PKCS #8 private keys and decrypts their
// password-protected EncryptedPrivateKeyInfo envelopes.
//
// Plain keys are decoded by trying RSA, then EC, then DSA, in that fixed
// order; the first algorithm that accepts the encoding wins. Encrypted
// envelopes support PBES2 (PBKDF2 with SHA-1/224/256/384/512 PRFs, AES-CBC
// or three-key triple DES) and the legacy PKCS #12 SHA-1/triple-DES PBE that
// older Java tooling emits.
package pkcs8

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
)

var oidDSA = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}

type privateKeyInfo struct {
	Version    int
	Algo       pkix.AlgorithmIdentifier
	PrivateKey []byte
}

type dsaParams struct {
	P, Q, G *big.Int
}

// Decode parses der as a PKCS #8 private key, attempting RSA, EC, and DSA
// decoding in that order. When none of the three accepts the encoding the
// error is UnsupportedKeyAlgorithmError.
func Decode(der []byte) (crypto.PrivateKey, error) {
	if key, err := DecodeRSA(der); err == nil {
		return key, nil
	}
	if key, err := DecodeEC(der); err == nil {
		return key, nil
	}
	if key, err := DecodeDSA(der); err == nil {
		return key, nil
	}
	return nil, apkerrors.UnsupportedKeyAlgorithmError{}
}

// DecodeRSA parses der as an RSA private key in PKCS #8 form, falling back
// to the bare PKCS #1 encoding. Any other key type is rejected.
func DecodeRSA(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(der)
		if pkcs1Err != nil {
			return nil, err
		}
		return pkcs1Key, nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("pkcs8: not an RSA private key (%T)", key)
	}
	return rsaKey, nil
}

// DecodeEC parses der as an EC private key in PKCS #8 form, falling back to
// the bare SEC 1 encoding. Any other key type is rejected.
func DecodeEC(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		ecKey, ecErr := x509.ParseECPrivateKey(der)
		if ecErr != nil {
			return nil, err
		}
		return ecKey, nil
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("pkcs8: not an EC private key (%T)", key)
	}
	return ecKey, nil
}

// DecodeDSA parses der as a DSA private key in PKCS #8 form. The standard
// library has no DSA support in crypto/x509, and crypto/dsa is frozen, but
// DSA signing keys still appear in older release keystores, so the envelope
// is unpacked here: domain parameters ride in the AlgorithmIdentifier and
// the key itself is a bare INTEGER.
func DecodeDSA(der []byte) (*dsa.PrivateKey, error) {
	var info privateKeyInfo
	rest, err := asn1.Unmarshal(der, &info)
	if err != nil {
		return nil, fmt.Errorf("pkcs8: malformed structure: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("pkcs8: trailing data after key")
	}
	if !info.Algo.Algorithm.Equal(oidDSA) {
		return nil, fmt.Errorf("pkcs8: not a DSA private key (OID %v)", info.Algo.Algorithm)
	}

	var params dsaParams
	if _, err := asn1.Unmarshal(info.Algo.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed DSA parameters: %w", err)
	}
	var x *big.Int
	if _, err := asn1.Unmarshal(info.PrivateKey, &x); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed DSA private value: %w", err)
	}

	key := &dsa.PrivateKey{
		PublicKey: dsa.PublicKey{
			Parameters: dsa.Parameters{P: params.P, Q: params.Q, G: params.G},
		},
		X: x,
	}
	// The public value is not part of the encoding; recompute it.
	key.Y = new(big.Int).Exp(params.G, x, params.P)
	return key, nil
}
