package lineage

import (
	"bytes"
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
)

// Lineage files use a fixed little-endian layout:
//
//	magic   [8]byte "apksglin"
//	version uint32
//	minSDK  uint32
//	count   uint32
//	count × node:
//	    certLen  uint32
//	    cert     certLen bytes of DER
//	    alg      uint32
//	    proofLen uint32
//	    proof    proofLen bytes
//	    caps     uint32
//
// The first node carries no proof. Every later node's proof is a signature
// by the previous node's key over the node's algorithm id and certificate.
// Capability masks stay outside the signed material.

// Version is the current lineage file format version.
const Version = 1

const maxBlobLen = 1 << 20

var magic = [8]byte{'a', 'p', 'k', 's', 'g', 'l', 'i', 'n'}

// SignatureAlgorithm identifies how a rotation proof was produced.
type SignatureAlgorithm uint32

const (
	// SigNone marks the lineage root, which carries no proof.
	SigNone SignatureAlgorithm = iota
	// SigRSAPKCS1SHA256 is RSASSA-PKCS1-v1_5 over SHA-256.
	SigRSAPKCS1SHA256
	// SigECDSASHA256 is ECDSA over SHA-256 with an ASN.1 signature.
	SigECDSASHA256
	// SigDSASHA256 is DSA over SHA-256 with an ASN.1 signature.
	SigDSASHA256
)

// String returns the JCA-style algorithm name.
func (a SignatureAlgorithm) String() string {
	switch a {
	case SigNone:
		return "none"
	case SigRSAPKCS1SHA256:
		return "SHA256withRSA"
	case SigECDSASHA256:
		return "SHA256withECDSA"
	case SigDSASHA256:
		return "SHA256withDSA"
	}
	return fmt.Sprintf("unknown(%d)", uint32(a))
}

// InvalidLineageError reports a lineage file that failed structural or
// cryptographic validation.
type InvalidLineageError struct {
	Reason string
}

func (e InvalidLineageError) Error() string {
	return "invalid lineage: " + e.Reason
}

// proofMessage is the signed material for a node: the algorithm id, then
// the certificate DER.
func proofMessage(alg SignatureAlgorithm, certDER []byte) []byte {
	msg := make([]byte, 4+len(certDER))
	binary.LittleEndian.PutUint32(msg, uint32(alg))
	copy(msg[4:], certDER)
	return msg
}

func algorithmFor(pub crypto.PublicKey) (SignatureAlgorithm, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		return SigRSAPKCS1SHA256, nil
	case *ecdsa.PublicKey:
		return SigECDSASHA256, nil
	case *dsa.PublicKey:
		return SigDSASHA256, nil
	}
	return SigNone, apkerrors.UnsupportedKeyAlgorithmError{Algorithm: fmt.Sprintf("%T", pub)}
}

func signProof(key crypto.Signer, alg SignatureAlgorithm, certDER []byte) ([]byte, error) {
	digest := sha256.Sum256(proofMessage(alg, certDER))
	return key.Sign(rand.Reader, digest[:], crypto.SHA256)
}

func verifyProof(parent *x509.Certificate, alg SignatureAlgorithm, certDER, proof []byte) error {
	digest := sha256.Sum256(proofMessage(alg, certDER))
	switch alg {
	case SigRSAPKCS1SHA256:
		pub, ok := parent.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s proof does not match %T parent key", alg, parent.PublicKey)
		}
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], proof); err != nil {
			return fmt.Errorf("%s verification failed", alg)
		}
		return nil
	case SigECDSASHA256:
		pub, ok := parent.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s proof does not match %T parent key", alg, parent.PublicKey)
		}
		if !ecdsa.VerifyASN1(pub, digest[:], proof) {
			return fmt.Errorf("%s verification failed", alg)
		}
		return nil
	case SigDSASHA256:
		pub, ok := parent.PublicKey.(*dsa.PublicKey)
		if !ok {
			return fmt.Errorf("%s proof does not match %T parent key", alg, parent.PublicKey)
		}
		var sig dsaSignature
		if _, err := asn1.Unmarshal(proof, &sig); err != nil {
			return fmt.Errorf("parsing %s proof: %w", alg, err)
		}
		if !dsa.Verify(pub, truncateDigest(digest[:], pub.Q), sig.R, sig.S) {
			return fmt.Errorf("%s verification failed", alg)
		}
		return nil
	}
	return fmt.Errorf("unsupported proof algorithm %d", uint32(alg))
}

// WriteTo serializes the lineage. It implements io.WriterTo.
func (l *Lineage) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if _, err := cw.Write(magic[:]); err != nil {
		return cw.n, err
	}
	if err := writeUint32s(cw, Version, uint32(l.minSDK), uint32(len(l.nodes))); err != nil {
		return cw.n, err
	}
	for _, n := range l.nodes {
		if err := writeBlob(cw, n.cert.Raw); err != nil {
			return cw.n, err
		}
		if err := writeUint32s(cw, uint32(n.alg)); err != nil {
			return cw.n, err
		}
		if err := writeBlob(cw, n.proof); err != nil {
			return cw.n, err
		}
		if err := writeUint32s(cw, n.caps.Bits()); err != nil {
			return cw.n, err
		}
	}
	return cw.n, nil
}

// ReadFrom parses and validates a serialized lineage: magic, version, and
// every rotation proof. A corrupt or forged chain never leaves this
// boundary.
func ReadFrom(r io.Reader) (*Lineage, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, InvalidLineageError{Reason: "truncated header"}
	}
	if hdr != magic {
		return nil, InvalidLineageError{Reason: "not a lineage file"}
	}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, InvalidLineageError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	minSDK, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, InvalidLineageError{Reason: "no signers"}
	}

	l := &Lineage{minSDK: int(minSDK)}
	for i := uint32(0); i < count; i++ {
		certDER, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return nil, InvalidLineageError{Reason: fmt.Sprintf("node %d: bad certificate: %v", i, err)}
		}
		alg, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		proof, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		capsBits, err := readUint32(r)
		if err != nil {
			return nil, err
		}

		node := lineageNode{
			cert:  cert,
			alg:   SignatureAlgorithm(alg),
			proof: proof,
			caps:  CapabilitiesFromBits(capsBits),
		}
		if i == 0 {
			if node.alg != SigNone || len(node.proof) != 0 {
				return nil, InvalidLineageError{Reason: "root node carries a proof"}
			}
		} else {
			parent := l.nodes[i-1].cert
			if err := verifyProof(parent, node.alg, certDER, node.proof); err != nil {
				return nil, InvalidLineageError{Reason: fmt.Sprintf("rotation proof %d: %v", i, err)}
			}
		}
		l.nodes = append(l.nodes, node)
	}
	return l, nil
}

// ReadFile loads and validates the lineage at path.
func ReadFile(path string) (*Lineage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading lineage file: %w", err)
	}
	defer f.Close()
	l, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// WriteFile serializes the lineage to path.
func (l *Lineage) WriteFile(path string) error {
	var buf bytes.Buffer
	if _, err := l.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing lineage file: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func writeUint32s(w io.Writer, vals ...uint32) error {
	var buf [4]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint32(buf[:], v)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeBlob(w io.Writer, b []byte) error {
	if err := writeUint32s(w, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, InvalidLineageError{Reason: "truncated"}
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readBlob(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxBlobLen {
		return nil, InvalidLineageError{Reason: fmt.Sprintf("blob length %d exceeds limit", n)}
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, InvalidLineageError{Reason: "truncated"}
	}
	return b, nil
}
