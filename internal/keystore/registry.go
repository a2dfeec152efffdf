package keystore

import (
	pubks "github.com/sigforge/apksigner/pkg/keystore"
)

// DefaultRegistry returns a registry with the built-in providers. PKCS #12
// registers first because it is the default store type; JKS follows for
// stores that predate the switch. Both are also reachable as factories so
// provider-pinned configurations keep working.
func DefaultRegistry() *pubks.Registry {
	reg := &pubks.Registry{}
	reg.Register(PKCS12Provider{})
	reg.Register(JKSProvider{})
	reg.RegisterFactory("pkcs12", func(arg string) (pubks.Provider, error) {
		return PKCS12Provider{}, nil
	})
	reg.RegisterFactory("jks", func(arg string) (pubks.Provider, error) {
		return JKSProvider{}, nil
	})
	return reg
}
