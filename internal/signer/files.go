package signer

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/internal/password"
	"github.com/sigforge/apksigner/internal/pkcs8"
)

const pemCertificateType = "CERTIFICATE"

func loadFromFiles(ctx context.Context, d *Descriptor, retr *password.Retriever) (crypto.PrivateKey, []*x509.Certificate, error) {
	if d.CertFile == "" {
		return nil, nil, apkerrors.Configf("Certificate file (--cert) must be specified")
	}

	blob, err := os.ReadFile(d.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading private key file: %w", err)
	}

	// The blob is either an encrypted PKCS #8 envelope or a plain PKCS #8
	// key. A configured key password forces the encrypted reading.
	keyDER := blob
	encrypted, perr := pkcs8.ParseEncrypted(blob)
	switch {
	case perr == nil:
		keyDER, err = decryptKeyBlob(ctx, d, retr, encrypted)
		if err != nil {
			return nil, nil, err
		}
	case d.KeyPasswordSpec != "":
		return nil, nil, apkerrors.KeyParseError{
			Path:   d.KeyFile,
			Reason: "Failed to parse encrypted private key blob",
			Err:    perr,
		}
	}

	key, err := pkcs8.Decode(keyDER)
	if err != nil {
		return nil, nil, apkerrors.KeyParseError{
			Path:   d.KeyFile,
			Reason: "Failed to load PKCS #8 encoded private key from",
			Err:    err,
		}
	}

	chain, err := readCertificates(d.CertFile)
	if err != nil {
		return nil, nil, err
	}
	return key, chain, nil
}

// decryptKeyBlob resolves key passwords and tries each against the
// envelope. Wrong-password decryption failures are absorbed until the
// candidates run out; scheme and structure failures abort immediately.
func decryptKeyBlob(ctx context.Context, d *Descriptor, retr *password.Retriever, encrypted *pkcs8.EncryptedKey) ([]byte, error) {
	spec := d.KeyPasswordSpec
	if spec == "" {
		spec = "stdin"
	}
	candidates, err := retr.Resolve(ctx, spec, "Private key password for "+d.Name)
	if err != nil {
		return nil, err
	}

	var last error
	for _, cand := range candidates {
		der, derr := encrypted.Decrypt(cand.Bytes())
		if derr == nil {
			return der, nil
		}
		if !errors.Is(derr, pkcs8.ErrDecryption) {
			return nil, derr
		}
		last = derr
	}
	return nil, apkerrors.PasswordExhaustedError{Source: "passwords", Err: last}
}

// readCertificates loads the signer's chain, leaf first, from PEM
// CERTIFICATE blocks or from a raw DER certificate sequence.
func readCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate file: %w", err)
	}

	var certs []*x509.Certificate
	sawPEM := false
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		sawPEM = true
		if block.Type != pemCertificateType {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate from %s: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if !sawPEM {
		certs, err = x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("parsing certificates from %s: %w", path, err)
		}
	}
	if len(certs) == 0 {
		return nil, apkerrors.NoCertificatesError{Source: path}
	}
	return certs, nil
}
