package signer

import (
	"context"
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/internal/password"
	"github.com/sigforge/apksigner/pkg/keystore"
)

// StoreNone is the keystore path meaning "no file body". Hardware-backed
// providers built through a factory use it.
const StoreNone = "NONE"

// Load resolves d into its private key and certificate chain. Passwords are
// drawn through retr, stores are opened through reg. The alias adopted for
// an alias-less store descriptor is written back to d so later output can
// name the entry. The caller owns retr and closes it once the credentials
// are no longer needed.
func Load(ctx context.Context, d *Descriptor, retr *password.Retriever, reg *keystore.Registry) (crypto.PrivateKey, []*x509.Certificate, error) {
	switch {
	case d.KeystorePath != "" && d.KeyFile != "":
		return nil, nil, apkerrors.Configf("--ks and --key may not be specified at the same time")
	case d.KeystorePath == "" && d.KeyFile == "":
		return nil, nil, apkerrors.Configf("KeyStore (--ks) or private key file (--key) must be specified")
	case d.KeystorePath != "":
		return loadFromStore(ctx, d, retr, reg)
	}
	return loadFromFiles(ctx, d, retr)
}

func loadFromStore(ctx context.Context, d *Descriptor, retr *password.Retriever, reg *keystore.Registry) (crypto.PrivateKey, []*x509.Certificate, error) {
	store, err := openStore(d, reg)
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	if d.KeystorePath != StoreNone {
		data, err = os.ReadFile(d.KeystorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading keystore: %w", err)
		}
	}

	spec := d.StorePasswordSpec
	if spec == "" {
		spec = "stdin"
	}
	storePasswords, err := retr.Resolve(ctx, spec, "Keystore password for "+d.Name)
	if err != nil {
		return nil, nil, err
	}
	if err := loadStoreData(store, data, storePasswords); err != nil {
		return nil, nil, err
	}

	alias, err := resolveAlias(store, d)
	if err != nil {
		return nil, nil, err
	}
	d.Alias = alias

	key, err := unlockKey(ctx, d, store, alias, storePasswords, retr)
	if err != nil {
		return nil, nil, err
	}
	if err := checkKeyType(key); err != nil {
		return nil, nil, err
	}

	chain, err := store.CertificateChain(alias)
	if err != nil {
		return nil, nil, err
	}
	if len(chain) == 0 {
		return nil, nil, apkerrors.NoCertificatesError{
			Source: fmt.Sprintf("%s entry %q", d.KeystorePath, alias),
		}
	}
	return key, chain, nil
}

// openStore resolves the store implementation: a factory builds a fresh
// provider, a pinned provider must claim the type, and otherwise the first
// registered provider claiming the type wins.
func openStore(d *Descriptor, reg *keystore.Registry) (keystore.Store, error) {
	storeType := d.StoreType
	if storeType == "" {
		storeType = DefaultStoreType
	}

	if d.FactoryName != "" {
		store, err := reg.OpenVia(d.FactoryName, d.FactoryArg, storeType)
		if err != nil {
			return nil, apkerrors.ProviderError{Provider: d.FactoryName, Op: "open " + storeType + " store", Err: err}
		}
		return store, nil
	}

	store, err := reg.Open(storeType, d.ProviderName)
	if err != nil {
		if d.ProviderName != "" {
			return nil, apkerrors.ProviderError{Provider: d.ProviderName, Op: "open " + storeType + " store", Err: err}
		}
		return nil, err
	}
	return store, nil
}

// loadStoreData tries every store password candidate in order. Exhaustion
// surfaces the last concrete failure so a wrong password stays
// distinguishable from a corrupt store.
func loadStoreData(store keystore.Store, data []byte, candidates []*password.Candidate) error {
	var last error
	for _, cand := range candidates {
		err := store.Load(data, cand.Bytes())
		if err == nil {
			return nil
		}
		last = err
	}
	return apkerrors.PasswordExhaustedError{Source: "keystore passwords", Err: last}
}

// resolveAlias picks the store entry to use. An explicit alias must be a
// key entry; without one the store must hold exactly one key entry.
func resolveAlias(store keystore.Store, d *Descriptor) (string, error) {
	if d.Alias != "" {
		if !store.IsKeyEntry(d.Alias) {
			return "", apkerrors.AliasNotFoundError{Store: d.KeystorePath, Alias: d.Alias}
		}
		return d.Alias, nil
	}

	var keyAliases []string
	for _, alias := range store.Aliases() {
		if store.IsKeyEntry(alias) {
			keyAliases = append(keyAliases, alias)
		}
	}
	switch len(keyAliases) {
	case 0:
		return "", apkerrors.AliasNotFoundError{Store: d.KeystorePath}
	case 1:
		return keyAliases[0], nil
	}
	return "", apkerrors.AmbiguousAliasError{Store: d.KeystorePath}
}

// unlockKey recovers the private key behind alias. An explicit key password
// spec is authoritative. Without one the store passwords are assumed to
// unlock the key too; if they all fail with the wrong-password class, one
// interactive prompt is offered before giving up.
func unlockKey(ctx context.Context, d *Descriptor, store keystore.Store, alias string, storePasswords []*password.Candidate, retr *password.Retriever) (crypto.PrivateKey, error) {
	if d.KeyPasswordSpec != "" {
		candidates, err := retr.Resolve(ctx, d.KeyPasswordSpec, fmt.Sprintf("Key %q password for %s", alias, d.Name))
		if err != nil {
			return nil, err
		}
		key, err := tryKeyPasswords(store, alias, candidates)
		if err != nil {
			return nil, wrapUnlockFailure(err, d, alias)
		}
		return key, nil
	}

	key, err := tryKeyPasswords(store, alias, storePasswords)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keystore.ErrWrongPassword) {
		return nil, err
	}

	candidates, rerr := retr.Resolve(ctx, "stdin", "Password for key with alias '"+alias+"'")
	if rerr != nil {
		return nil, rerr
	}
	key, err = tryKeyPasswords(store, alias, candidates)
	if err != nil {
		return nil, wrapUnlockFailure(err, d, alias)
	}
	return key, nil
}

// tryKeyPasswords walks the candidate list. Wrong-password failures are
// absorbed until the list runs out; anything else aborts immediately
// because retrying cannot help.
func tryKeyPasswords(store keystore.Store, alias string, candidates []*password.Candidate) (crypto.PrivateKey, error) {
	var last error
	for _, cand := range candidates {
		key, err := store.Key(alias, cand.Bytes())
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, keystore.ErrWrongPassword) {
			return nil, err
		}
		last = err
	}
	return nil, apkerrors.PasswordExhaustedError{Source: "key passwords", Err: last}
}

// wrapUnlockFailure turns candidate exhaustion into the final diagnostic.
// Failures that aborted the attempt loop pass through untouched.
func wrapUnlockFailure(err error, d *Descriptor, alias string) error {
	var exhausted apkerrors.PasswordExhaustedError
	if errors.As(err, &exhausted) {
		return apkerrors.Configf("Failed to obtain key with alias %q from %s. Wrong password?", alias, d.KeystorePath)
	}
	return err
}

func checkKeyType(key crypto.PrivateKey) error {
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, *dsa.PrivateKey:
		return nil
	}
	return apkerrors.UnsupportedKeyAlgorithmError{Algorithm: fmt.Sprintf("%T", key)}
}
