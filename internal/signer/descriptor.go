// Package signer loads signing credentials: a private key and its
// certificate chain, from a key store or from raw key and certificate
// files, with passwords resolved through the password package.
package signer

import (
	"path/filepath"
	"strings"
)

// DefaultStoreType is assumed when a descriptor does not name one.
const DefaultStoreType = "pkcs12"

// Descriptor collects everything the command line or a profile says about
// one signer. Exactly one of KeystorePath and KeyFile must be set.
type Descriptor struct {
	// Name is the positional identity used in error messages, e.g.
	// "signer #1".
	Name string

	// KeystorePath locates the key store. The special value "NONE" names
	// a store with no file body, the convention for hardware-backed
	// stores.
	KeystorePath string
	// StoreType selects the store format, DefaultStoreType when empty.
	StoreType string
	// ProviderName pins store opening to one registered provider.
	ProviderName string
	// FactoryName builds the provider through a registered factory
	// instead, with FactoryArg as its argument.
	FactoryName string
	FactoryArg  string
	// Alias names the store entry. Left empty, the single key entry of
	// the store is adopted and recorded here by Load.
	Alias string
	// StorePasswordSpec resolves the store password, "stdin" when empty.
	StorePasswordSpec string

	// KeyFile and CertFile locate a raw PKCS #8 key and its certificate
	// chain for the file-backed path.
	KeyFile  string
	CertFile string

	// KeyPasswordSpec resolves the key password. For store-backed signers
	// an empty spec means "reuse the store passwords, then prompt"; for
	// an encrypted key file it means "prompt".
	KeyPasswordSpec string

	// V1Basename overrides the signer's display name.
	V1Basename string
}

// DisplayName returns the name identifying this signer in signed output:
// the explicit override, the store alias, or the key file's base name up
// to its first dot.
func (d *Descriptor) DisplayName() string {
	switch {
	case d.V1Basename != "":
		return d.V1Basename
	case d.Alias != "":
		return d.Alias
	case d.KeyFile != "":
		base := filepath.Base(d.KeyFile)
		if i := strings.IndexByte(base, '.'); i >= 0 {
			return base[:i]
		}
		return base
	}
	return d.Name
}
