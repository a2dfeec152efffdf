package keystore

import (
	"crypto"
	"errors"
	"testing"
)

// StoreFixture is a serialized store plus the facts a contract run needs
// to verify it.
type StoreFixture struct {
	// Data is the serialized store.
	Data []byte

	// StorePassword opens the store.
	StorePassword []byte

	// KeyPassword recovers the key entries. Formats with store-level
	// encryption only may leave it nil.
	KeyPassword []byte

	// KeyAliases are the private key entries expected in the store.
	KeyAliases []string
}

// StoreContract defines a standard test suite that all store
// implementations must pass.
type StoreContract struct {
	// NewStore returns a fresh, unloaded store under test.
	NewStore func(t *testing.T) Store

	// Fixture builds a serialized store for the format under test.
	Fixture func(t *testing.T) StoreFixture

	// SkipEntryPassword skips the wrong-entry-password test for formats
	// whose entries are not individually encrypted.
	SkipEntryPassword bool
}

// RunStoreContract runs the standard store contract test suite.
func RunStoreContract(t *testing.T, contract StoreContract) {
	t.Run("Contract", func(t *testing.T) {
		t.Run("LoadAndEnumerate", func(t *testing.T) {
			testStoreLoadAndEnumerate(t, contract)
		})
		t.Run("WrongStorePassword", func(t *testing.T) {
			testStoreWrongPassword(t, contract)
		})
		t.Run("RecoverKeys", func(t *testing.T) {
			testStoreRecoverKeys(t, contract)
		})
		if !contract.SkipEntryPassword {
			t.Run("WrongEntryPassword", func(t *testing.T) {
				testStoreWrongEntryPassword(t, contract)
			})
		}
		t.Run("UnknownAlias", func(t *testing.T) {
			testStoreUnknownAlias(t, contract)
		})
	})
}

func loadFixture(t *testing.T, contract StoreContract) (Store, StoreFixture) {
	t.Helper()
	fixture := contract.Fixture(t)
	store := contract.NewStore(t)
	if err := store.Load(fixture.Data, fixture.StorePassword); err != nil {
		t.Fatalf("Store.Load() failed with the correct password: %v", err)
	}
	return store, fixture
}

func testStoreLoadAndEnumerate(t *testing.T, contract StoreContract) {
	store, fixture := loadFixture(t, contract)

	aliases := store.Aliases()
	for _, want := range fixture.KeyAliases {
		found := false
		for _, got := range aliases {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Store.Aliases() = %v, missing expected alias %q", aliases, want)
		}
		if !store.IsKeyEntry(want) {
			t.Errorf("Store.IsKeyEntry(%q) = false for a key entry", want)
		}
	}
}

func testStoreWrongPassword(t *testing.T, contract StoreContract) {
	fixture := contract.Fixture(t)
	store := contract.NewStore(t)

	err := store.Load(fixture.Data, []byte("definitely-not-the-password"))
	if err == nil {
		t.Fatal("Store.Load() accepted a wrong password")
	}
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Store.Load() wrong-password error does not wrap ErrWrongPassword: %v", err)
	}
}

func testStoreRecoverKeys(t *testing.T, contract StoreContract) {
	store, fixture := loadFixture(t, contract)

	for _, alias := range fixture.KeyAliases {
		key, err := store.Key(alias, fixture.KeyPassword)
		if err != nil {
			t.Fatalf("Store.Key(%q) failed with the correct password: %v", alias, err)
		}
		if key == nil {
			t.Fatalf("Store.Key(%q) returned a nil key", alias)
		}

		chain, err := store.CertificateChain(alias)
		if err != nil {
			t.Fatalf("Store.CertificateChain(%q) failed: %v", alias, err)
		}
		if len(chain) == 0 {
			t.Fatalf("Store.CertificateChain(%q) returned an empty chain", alias)
		}

		signer, ok := key.(crypto.Signer)
		if !ok {
			t.Fatalf("Store.Key(%q) returned a %T, which is not a crypto.Signer", alias, key)
		}
		leafKey, ok := chain[0].PublicKey.(interface{ Equal(crypto.PublicKey) bool })
		if !ok {
			t.Fatalf("leaf certificate for %q has uncomparable public key %T", alias, chain[0].PublicKey)
		}
		if !leafKey.Equal(signer.Public()) {
			t.Errorf("private key for %q does not match its leaf certificate", alias)
		}
	}
}

func testStoreWrongEntryPassword(t *testing.T, contract StoreContract) {
	store, fixture := loadFixture(t, contract)

	for _, alias := range fixture.KeyAliases {
		_, err := store.Key(alias, []byte("definitely-not-the-password"))
		if err == nil {
			t.Fatalf("Store.Key(%q) accepted a wrong entry password", alias)
		}
		if !errors.Is(err, ErrWrongPassword) {
			t.Errorf("Store.Key(%q) wrong-password error does not wrap ErrWrongPassword: %v", alias, err)
		}
	}
}

func testStoreUnknownAlias(t *testing.T, contract StoreContract) {
	store, _ := loadFixture(t, contract)

	if store.IsKeyEntry("no-such-alias") {
		t.Error("Store.IsKeyEntry() = true for an absent alias")
	}
	if _, err := store.Key("no-such-alias", nil); err == nil {
		t.Error("Store.Key() succeeded for an absent alias")
	}
}
