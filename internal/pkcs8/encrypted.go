package pkcs8

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"
	"unicode/utf16"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryption reports that an encrypted key envelope could not be opened
// with the supplied password. CBC padding gives no way to distinguish a
// wrong password from corrupt ciphertext, so both surface here.
var ErrDecryption = errors.New("pkcs8: decryption failed (incorrect password?)")

var (
	oidPBES2                       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2                      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidHMACWithSHA1                = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACWithSHA224              = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 8}
	oidHMACWithSHA256              = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	oidHMACWithSHA384              = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 10}
	oidHMACWithSHA512              = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}
	oidAES128CBC                   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC                   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC                   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
	oidDESEDE3CBC                  = asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 7}
	oidPBEWithSHA1And3KeyTripleDES = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}
)

type encryptedPrivateKeyInfo struct {
	Algo pkix.AlgorithmIdentifier
	Data []byte
}

type pbes2Params struct {
	KDF    pkix.AlgorithmIdentifier
	Scheme pkix.AlgorithmIdentifier
}

type pbkdf2Params struct {
	Salt       []byte
	Iterations int
	KeyLength  int                      `asn1:"optional"`
	PRF        pkix.AlgorithmIdentifier `asn1:"optional"`
}

type pbeParams struct {
	Salt       []byte
	Iterations int
}

// EncryptedKey is a parsed EncryptedPrivateKeyInfo envelope awaiting a
// password.
type EncryptedKey struct {
	algo pkix.AlgorithmIdentifier
	data []byte
}

// ParseEncrypted parses der as an EncryptedPrivateKeyInfo envelope. The
// check is purely structural; an error means the blob is not an encrypted
// key at all, which callers use to tell encrypted key files from plain
// ones. Whether the encryption algorithm is supported is only decided by
// Decrypt.
func ParseEncrypted(der []byte) (*EncryptedKey, error) {
	var info encryptedPrivateKeyInfo
	rest, err := asn1.Unmarshal(der, &info)
	if err != nil {
		return nil, fmt.Errorf("pkcs8: not an encrypted key envelope: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("pkcs8: trailing data after encrypted key envelope")
	}
	if len(info.Data) == 0 {
		return nil, fmt.Errorf("pkcs8: encrypted key envelope holds no data")
	}
	return &EncryptedKey{algo: info.Algo, data: info.Data}, nil
}

// Decrypt opens the envelope with password and returns the plain PKCS #8
// encoding. A wrong password reports ErrDecryption.
func (k *EncryptedKey) Decrypt(password []byte) ([]byte, error) {
	switch {
	case k.algo.Algorithm.Equal(oidPBES2):
		return k.decryptPBES2(password)
	case k.algo.Algorithm.Equal(oidPBEWithSHA1And3KeyTripleDES):
		return k.decryptLegacyTripleDES(password)
	}
	return nil, fmt.Errorf("pkcs8: unsupported encryption algorithm %v", k.algo.Algorithm)
}

func (k *EncryptedKey) decryptPBES2(password []byte) ([]byte, error) {
	var params pbes2Params
	if _, err := asn1.Unmarshal(k.algo.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed PBES2 parameters: %w", err)
	}
	if !params.KDF.Algorithm.Equal(oidPBKDF2) {
		return nil, fmt.Errorf("pkcs8: unsupported key derivation %v", params.KDF.Algorithm)
	}
	var kdf pbkdf2Params
	if _, err := asn1.Unmarshal(params.KDF.Parameters.FullBytes, &kdf); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed PBKDF2 parameters: %w", err)
	}
	prf, err := prfForOID(kdf.PRF)
	if err != nil {
		return nil, err
	}

	var (
		keySize  int
		newBlock func([]byte) (cipher.Block, error)
	)
	switch {
	case params.Scheme.Algorithm.Equal(oidAES128CBC):
		keySize, newBlock = 16, aes.NewCipher
	case params.Scheme.Algorithm.Equal(oidAES192CBC):
		keySize, newBlock = 24, aes.NewCipher
	case params.Scheme.Algorithm.Equal(oidAES256CBC):
		keySize, newBlock = 32, aes.NewCipher
	case params.Scheme.Algorithm.Equal(oidDESEDE3CBC):
		keySize, newBlock = 24, des.NewTripleDESCipher
	default:
		return nil, fmt.Errorf("pkcs8: unsupported encryption scheme %v", params.Scheme.Algorithm)
	}

	var iv []byte
	if _, err := asn1.Unmarshal(params.Scheme.Parameters.FullBytes, &iv); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed cipher IV: %w", err)
	}

	key := pbkdf2.Key(password, kdf.Salt, kdf.Iterations, keySize, prf)
	block, err := newBlock(key)
	if err != nil {
		return nil, fmt.Errorf("pkcs8: building cipher: %w", err)
	}
	return cbcOpen(block, iv, k.data)
}

// decryptLegacyTripleDES handles pbeWithSHA1And3-KeyTripleDES-CBC, the
// PKCS #12 PBE that pre-PBES2 Java tooling wraps exported keys in. Key and
// IV come from the PKCS #12 KDF over the BMPString form of the password.
func (k *EncryptedKey) decryptLegacyTripleDES(password []byte) ([]byte, error) {
	var params pbeParams
	if _, err := asn1.Unmarshal(k.algo.Parameters.FullBytes, &params); err != nil {
		return nil, fmt.Errorf("pkcs8: malformed PBE parameters: %w", err)
	}
	bmp := bmpString(password)
	key := pkcs12KDF(bmp, params.Salt, params.Iterations, 1, 24)
	iv := pkcs12KDF(bmp, params.Salt, params.Iterations, 2, des.BlockSize)
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, fmt.Errorf("pkcs8: building cipher: %w", err)
	}
	return cbcOpen(block, iv, k.data)
}

// cbcOpen decrypts ciphertext, strips PKCS #7 padding, and sanity-checks
// that the result is a single well-formed ASN.1 SEQUENCE. Both the padding
// and the structure check land on ErrDecryption: with a wrong password the
// plaintext is noise and the two failures are indistinguishable.
func cbcOpen(block cipher.Block, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("pkcs8: cipher IV has %d bytes, want %d", len(iv), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("pkcs8: ciphertext is not a whole number of blocks")
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > block.BlockSize() || pad > len(plain) {
		return nil, ErrDecryption
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, ErrDecryption
		}
	}
	plain = plain[:len(plain)-pad]

	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(plain, &raw)
	if err != nil || len(rest) > 0 || raw.Class != asn1.ClassUniversal || raw.Tag != asn1.TagSequence {
		return nil, ErrDecryption
	}
	return plain, nil
}

func prfForOID(algo pkix.AlgorithmIdentifier) (func() hash.Hash, error) {
	// Absent PRF means the PBKDF2 default of HMAC-SHA1.
	if algo.Algorithm == nil {
		return sha1.New, nil
	}
	switch {
	case algo.Algorithm.Equal(oidHMACWithSHA1):
		return sha1.New, nil
	case algo.Algorithm.Equal(oidHMACWithSHA224):
		return sha256.New224, nil
	case algo.Algorithm.Equal(oidHMACWithSHA256):
		return sha256.New, nil
	case algo.Algorithm.Equal(oidHMACWithSHA384):
		return sha512.New384, nil
	case algo.Algorithm.Equal(oidHMACWithSHA512):
		return sha512.New, nil
	}
	return nil, fmt.Errorf("pkcs8: unsupported PBKDF2 PRF %v", algo.Algorithm)
}

// bmpString encodes a password the way PKCS #12 wants it: UTF-16 big endian
// with a two-byte zero terminator. The empty password encodes to no bytes
// at all, matching what Java tooling derives from an empty char array.
func bmpString(password []byte) []byte {
	if len(password) == 0 {
		return nil
	}
	units := utf16.Encode([]rune(string(password)))
	out := make([]byte, 0, len(units)*2+2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return append(out, 0, 0)
}

// pkcs12KDF derives size bytes of key material per RFC 7292 appendix B.2
// with SHA-1. The id byte selects the purpose: 1 for encryption keys, 2
// for IVs.
func pkcs12KDF(bmpPassword, salt []byte, iterations, id, size int) []byte {
	const u = sha1.Size
	const v = 64

	if iterations < 1 {
		iterations = 1
	}
	d := bytes.Repeat([]byte{byte(id)}, v)
	i := append(repeatToMultiple(salt, v), repeatToMultiple(bmpPassword, v)...)

	var out []byte
	for len(out) < size {
		digest := sha1.Sum(append(append([]byte{}, d...), i...))
		a := digest[:]
		for n := 1; n < iterations; n++ {
			next := sha1.Sum(a)
			a = next[:]
		}
		out = append(out, a...)

		b := make([]byte, v)
		for j := range b {
			b[j] = a[j%u]
		}
		for j := 0; j < len(i); j += v {
			carry := 1
			for n := v - 1; n >= 0; n-- {
				sum := int(i[j+n]) + int(b[n]) + carry
				i[j+n] = byte(sum)
				carry = sum >> 8
			}
		}
	}
	return out[:size]
}

func repeatToMultiple(b []byte, v int) []byte {
	if len(b) == 0 {
		return nil
	}
	n := (len(b) + v - 1) / v * v
	out := make([]byte, n)
	for i := range out {
		out[i] = b[i%len(b)]
	}
	return out
}
