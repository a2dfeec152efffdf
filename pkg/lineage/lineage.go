package lineage

import (
	"bytes"
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
)

// SignerIdentity binds a signing key to the certificate distributed for it.
type SignerIdentity struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
}

// NewSignerIdentity adapts key into a SignerIdentity. RSA and EC private
// keys are crypto.Signer already; DSA keys are wrapped so the rest of the
// package treats all three uniformly.
func NewSignerIdentity(key crypto.PrivateKey, cert *x509.Certificate) (SignerIdentity, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return SignerIdentity{Key: k, Certificate: cert}, nil
	case *ecdsa.PrivateKey:
		return SignerIdentity{Key: k, Certificate: cert}, nil
	case *dsa.PrivateKey:
		return SignerIdentity{Key: &dsaSigner{key: k}, Certificate: cert}, nil
	}
	return SignerIdentity{}, apkerrors.UnsupportedKeyAlgorithmError{Algorithm: fmt.Sprintf("%T", key)}
}

// dsaSigner adapts crypto/dsa to crypto.Signer. The digest is truncated to
// the subgroup size before signing, which dsa.Sign leaves to its caller.
type dsaSigner struct {
	key *dsa.PrivateKey
}

type dsaSignature struct {
	R, S *big.Int
}

func (s *dsaSigner) Public() crypto.PublicKey {
	return &s.key.PublicKey
}

func (s *dsaSigner) Sign(rand io.Reader, digest []byte, _ crypto.SignerOpts) ([]byte, error) {
	r, v, err := dsa.Sign(rand, s.key, truncateDigest(digest, s.key.Q))
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(dsaSignature{R: r, S: v})
}

func truncateDigest(digest []byte, q *big.Int) []byte {
	n := (q.BitLen() + 7) / 8
	if len(digest) > n {
		return digest[:n]
	}
	return digest
}

// LineageMismatchError reports a rotation whose old signer is not the
// lineage's most recent signer.
type LineageMismatchError struct {
	// Terminal is the certificate currently ending the lineage.
	Terminal *x509.Certificate
}

func (e LineageMismatchError) Error() string {
	return "old signer does not match the most recent lineage signer"
}

// SignerNotInLineageError reports a certificate that no lineage node
// carries.
type SignerNotInLineageError struct {
	Certificate *x509.Certificate
}

func (e SignerNotInLineageError) Error() string {
	return fmt.Sprintf("signer with certificate digest %x is not in the lineage",
		sha256.Sum256(e.Certificate.Raw))
}

// Lineage is an ordered chain of signing certificates, oldest first. Nodes
// after the first carry a rotation proof signed by the previous node's key.
// Capability grants sit outside the proofs so they can change without the
// old keys present.
type Lineage struct {
	minSDK int
	nodes  []lineageNode
}

type lineageNode struct {
	cert  *x509.Certificate
	alg   SignatureAlgorithm
	proof []byte
	caps  Capabilities
}

// Rotate moves the signing identity from oldSigner to newSigner.
//
// Without an existing lineage it builds a fresh two-node chain gated at
// minSDK. With one, oldCaps is first applied to the current terminal
// signer, then the new signer is appended; the append requires oldSigner's
// certificate to equal the terminal certificate. An existing lineage keeps
// its stored gate and minSDK is ignored.
//
// A signer holds exactly the flags its builder set; a nil builder grants a
// fresh node nothing and leaves existing grants untouched. The input
// lineage is not modified.
func Rotate(existing *Lineage, oldSigner, newSigner SignerIdentity, oldCaps, newCaps *CapabilitiesBuilder, minSDK int) (*Lineage, error) {
	if err := checkIdentity(oldSigner, "old signer"); err != nil {
		return nil, err
	}
	if err := checkIdentity(newSigner, "new signer"); err != nil {
		return nil, err
	}

	alg, err := algorithmFor(oldSigner.Key.Public())
	if err != nil {
		return nil, err
	}
	proof, err := signProof(oldSigner.Key, alg, newSigner.Certificate.Raw)
	if err != nil {
		return nil, fmt.Errorf("signing rotation proof: %w", err)
	}
	appended := lineageNode{
		cert:  newSigner.Certificate,
		alg:   alg,
		proof: proof,
		caps:  newCaps.Build(),
	}

	if existing == nil {
		return &Lineage{
			minSDK: minSDK,
			nodes: []lineageNode{
				{cert: oldSigner.Certificate, caps: oldCaps.Build()},
				appended,
			},
		}, nil
	}

	if len(existing.nodes) == 0 {
		return nil, InvalidLineageError{Reason: "no signers"}
	}
	terminal := existing.nodes[len(existing.nodes)-1]
	if !bytes.Equal(terminal.cert.Raw, oldSigner.Certificate.Raw) {
		return nil, LineageMismatchError{Terminal: terminal.cert}
	}

	out := &Lineage{
		minSDK: existing.minSDK,
		nodes:  append([]lineageNode(nil), existing.nodes...),
	}
	last := len(out.nodes) - 1
	out.nodes[last].caps = oldCaps.Apply(out.nodes[last].caps)
	out.nodes = append(out.nodes, appended)
	return out, nil
}

func checkIdentity(id SignerIdentity, role string) error {
	if id.Key == nil || id.Certificate == nil {
		return apkerrors.Configf("%s needs both a private key and a certificate", role)
	}
	return nil
}

// UpdateCapabilities adjusts the grants of the node carrying cert. Only
// flags touched in caps change. The return reports whether the stored
// grants actually differ afterward; callers skip persistence when they do
// not.
func (l *Lineage) UpdateCapabilities(cert *x509.Certificate, caps *CapabilitiesBuilder) (bool, error) {
	idx := l.indexOf(cert)
	if idx < 0 {
		return false, SignerNotInLineageError{Certificate: cert}
	}
	before := l.nodes[idx].caps
	after := caps.Apply(before)
	l.nodes[idx].caps = after
	return after != before, nil
}

// Capabilities returns the grants of the node carrying cert.
func (l *Lineage) Capabilities(cert *x509.Certificate) (Capabilities, error) {
	idx := l.indexOf(cert)
	if idx < 0 {
		return Capabilities{}, SignerNotInLineageError{Certificate: cert}
	}
	return l.nodes[idx].caps, nil
}

// Signers returns the certificates oldest first.
func (l *Lineage) Signers() []*x509.Certificate {
	out := make([]*x509.Certificate, len(l.nodes))
	for i, n := range l.nodes {
		out[i] = n.cert
	}
	return out
}

// Terminal returns the most recent certificate, or nil for an empty chain.
func (l *Lineage) Terminal() *x509.Certificate {
	if len(l.nodes) == 0 {
		return nil
	}
	return l.nodes[len(l.nodes)-1].cert
}

// Len returns the number of signers in the chain.
func (l *Lineage) Len() int {
	return len(l.nodes)
}

// MinSDK returns the platform level below which the lineage is ignored.
func (l *Lineage) MinSDK() int {
	return l.minSDK
}

func (l *Lineage) indexOf(cert *x509.Certificate) int {
	for i, n := range l.nodes {
		if bytes.Equal(n.cert.Raw, cert.Raw) {
			return i
		}
	}
	return -1
}
