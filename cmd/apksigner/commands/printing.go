package commands

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
	"strconv"

	"github.com/sigforge/apksigner/pkg/lineage"
)

// printCertificate writes the identity block for one signer certificate:
// subject DN and certificate digests, plus key facts and public key digests
// in verbose mode. The public key digests cover the SubjectPublicKeyInfo
// encoding, which is what installers compare.
func printCertificate(w io.Writer, cert *x509.Certificate, name string, verbose bool) {
	fmt.Fprintf(w, "%s certificate DN: %s\n", name, cert.Subject)
	fmt.Fprintf(w, "%s certificate SHA-256 digest: %x\n", name, sha256.Sum256(cert.Raw))
	fmt.Fprintf(w, "%s certificate SHA-1 digest: %x\n", name, sha1.Sum(cert.Raw))
	fmt.Fprintf(w, "%s certificate MD5 digest: %x\n", name, md5.Sum(cert.Raw))
	if !verbose {
		return
	}
	fmt.Fprintf(w, "%s key algorithm: %s\n", name, publicKeyAlgorithm(cert.PublicKey))
	fmt.Fprintf(w, "%s key size (bits): %s\n", name, publicKeySize(cert.PublicKey))
	spki := cert.RawSubjectPublicKeyInfo
	fmt.Fprintf(w, "%s public key SHA-256 digest: %x\n", name, sha256.Sum256(spki))
	fmt.Fprintf(w, "%s public key SHA-1 digest: %x\n", name, sha1.Sum(spki))
	fmt.Fprintf(w, "%s public key MD5 digest: %x\n", name, md5.Sum(spki))
}

func publicKeyAlgorithm(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "EC"
	case *dsa.PublicKey:
		return "DSA"
	}
	return fmt.Sprintf("%T", pub)
}

// publicKeySize reports the key's strength parameter: modulus bits for RSA,
// subgroup order bits for EC, prime bits for DSA.
func publicKeySize(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return strconv.Itoa(k.N.BitLen())
	case *ecdsa.PublicKey:
		return strconv.Itoa(k.Curve.Params().N.BitLen())
	case *dsa.PublicKey:
		if k.P != nil {
			return strconv.Itoa(k.P.BitLen())
		}
	}
	return "n/a"
}

// printCapabilities writes the capability flags for one lineage signer. The
// labels are padded so the values line up.
func printCapabilities(w io.Writer, caps lineage.Capabilities) {
	fmt.Fprintf(w, "Has installed data capability: %t\n", caps.InstalledData())
	fmt.Fprintf(w, "Has shared UID capability    : %t\n", caps.SharedUID())
	fmt.Fprintf(w, "Has permission capability    : %t\n", caps.Permission())
	fmt.Fprintf(w, "Has rollback capability      : %t\n", caps.Rollback())
	fmt.Fprintf(w, "Has auth capability          : %t\n", caps.Auth())
}
