package commands

import (
	"context"
	"crypto"
	"crypto/x509"

	"github.com/sigforge/apksigner/internal/cmdline"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/internal/password"
	"github.com/sigforge/apksigner/internal/signer"
	"github.com/sigforge/apksigner/pkg/keystore"
	"github.com/sigforge/apksigner/pkg/lineage"
)

// signerParams accumulates one signer option group. sign builds groups
// implicitly and closes them with --next-signer; rotate and lineage open a
// group explicitly with --old-signer, --new-signer, or --signer.
type signerParams struct {
	keystorePath  string
	alias         string
	storePassSpec string
	keyPassSpec   string
	passEncoding  string
	v1Basename    string
	storeType     string
	providerName  string
	factoryName   string
	factoryArg    string
	keyFile       string
	certFile      string
	caps          *lineage.CapabilitiesBuilder
}

// signerOptionSet says which extras a command accepts inside a signer group.
type signerOptionSet struct {
	v1Name bool // --v1-signer-name (sign)
	caps   bool // --set-* capability grants (rotate, lineage)
}

func (s *signerParams) empty() bool {
	return *s == signerParams{}
}

// parse consumes signer options until it hits one it does not recognize,
// which it pushes back for the caller. It reports whether anything was
// consumed so callers can reject empty groups.
func (s *signerParams) parse(p *cmdline.Parser, opts signerOptionSet) (bool, error) {
	consumed := false
	for {
		name, ok := p.NextOption()
		if !ok {
			return consumed, nil
		}
		var err error
		switch name {
		case "ks":
			s.keystorePath, err = p.RequiredValue("KeyStore file")
		case "ks-key-alias":
			s.alias, err = p.RequiredValue("KeyStore key alias")
		case "ks-pass":
			s.storePassSpec, err = p.RequiredValue("KeyStore password")
		case "key-pass":
			s.keyPassSpec, err = p.RequiredValue("Key password")
		case "pass-encoding":
			s.passEncoding, err = p.RequiredValue("Password character encoding")
		case "ks-type":
			s.storeType, err = p.RequiredValue("KeyStore type")
		case "ks-provider-name":
			s.providerName, err = p.RequiredValue("KeyStore provider name")
		case "ks-provider-factory":
			s.factoryName, err = p.RequiredValue("KeyStore provider factory")
		case "ks-provider-arg":
			s.factoryArg, err = p.RequiredValue("KeyStore provider factory argument")
		case "key":
			s.keyFile, err = p.RequiredValue("Private key file")
		case "cert":
			s.certFile, err = p.RequiredValue("Certificate file")
		case "v1-signer-name":
			if !opts.v1Name {
				p.PutBack()
				return consumed, nil
			}
			s.v1Basename, err = p.RequiredValue("JAR signature file basename")
		case "set-installed-data", "set-shared-uid", "set-permission", "set-rollback", "set-auth":
			if !opts.caps {
				p.PutBack()
				return consumed, nil
			}
			err = s.parseCapability(p, name)
		default:
			p.PutBack()
			return consumed, nil
		}
		if err != nil {
			return consumed, err
		}
		consumed = true
	}
}

func (s *signerParams) parseCapability(p *cmdline.Parser, name string) error {
	enabled, err := p.OptionalBool(true)
	if err != nil {
		return err
	}
	if s.caps == nil {
		s.caps = lineage.NewCapabilitiesBuilder()
	}
	switch name {
	case "set-installed-data":
		s.caps.SetInstalledData(enabled)
	case "set-shared-uid":
		s.caps.SetSharedUID(enabled)
	case "set-permission":
		s.caps.SetPermission(enabled)
	case "set-rollback":
		s.caps.SetRollback(enabled)
	case "set-auth":
		s.caps.SetAuth(enabled)
	}
	return nil
}

// descriptor converts the group into a loader descriptor under the given
// positional name.
func (s *signerParams) descriptor(name string) *signer.Descriptor {
	return &signer.Descriptor{
		Name:              name,
		KeystorePath:      s.keystorePath,
		StoreType:         s.storeType,
		ProviderName:      s.providerName,
		FactoryName:       s.factoryName,
		FactoryArg:        s.factoryArg,
		Alias:             s.alias,
		StorePasswordSpec: s.storePassSpec,
		KeyFile:           s.keyFile,
		CertFile:          s.certFile,
		KeyPasswordSpec:   s.keyPassSpec,
		V1Basename:        s.v1Basename,
	}
}

// parseSignerGroup runs the signer sub-parser for an explicitly opened
// group, where consuming nothing is an error.
func parseSignerGroup(p *cmdline.Parser) (*signerParams, error) {
	s := &signerParams{}
	consumed, err := s.parse(p, signerOptionSet{caps: true})
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, apkerrors.Configf("Signer specified without arguments")
	}
	return s, nil
}

// providerInstall is one --provider-factory/--provider-arg/--provider-pos
// group. Installing builds the provider through its registered factory and
// places it in the lookup order before any credentials load.
type providerInstall struct {
	factoryName string
	arg         string
	pos         int
	posSet      bool
}

func (s *providerInstall) empty() bool {
	return *s == providerInstall{}
}

func (s *providerInstall) install(reg *keystore.Registry) error {
	if s.factoryName == "" {
		return apkerrors.Configf("Provider factory (--provider-factory) must be specified")
	}
	p, err := reg.Build(s.factoryName, s.arg)
	if err != nil {
		return apkerrors.ProviderError{Provider: s.factoryName, Op: "install", Err: err}
	}
	if s.posSet {
		reg.RegisterAt(s.pos, p)
	} else {
		reg.Register(p)
	}
	return nil
}

func installProviders(reg *keystore.Registry, installs []*providerInstall) error {
	for _, spec := range installs {
		if err := spec.install(reg); err != nil {
			return err
		}
	}
	return nil
}

// loadCredentials resolves one descriptor into its key and chain. The
// retriever lives exactly as long as the load so password buffers are wiped
// as soon as the credentials are out.
func loadCredentials(ctx context.Context, cfg *config.Config, d *signer.Descriptor, passEncoding string, reg *keystore.Registry) (crypto.PrivateKey, []*x509.Certificate, error) {
	opts := make([]password.Option, 0, 2)
	if passEncoding != "" {
		opts = append(opts, password.WithExtraEncoding(passEncoding))
	}
	if cfg.NonInteractive {
		opts = append(opts, password.WithNonInteractive())
	}
	retr := password.NewRetriever(opts...)
	defer retr.Close()

	if d.KeystorePath != "" {
		cfg.Logger.Debug("loading %s from keystore %s", d.Name, d.KeystorePath)
	} else if d.KeyFile != "" {
		cfg.Logger.Debug("loading %s from key file %s", d.Name, d.KeyFile)
	}
	return signer.Load(ctx, d, retr, reg)
}

// loadIdentity loads a rotation participant and binds its key to the leaf
// certificate.
func loadIdentity(ctx context.Context, cfg *config.Config, s *signerParams, name string, reg *keystore.Registry) (lineage.SignerIdentity, error) {
	key, chain, err := loadCredentials(ctx, cfg, s.descriptor(name), s.passEncoding, reg)
	if err != nil {
		return lineage.SignerIdentity{}, apkerrors.Configf("Failed to load signer %q: %v", name, err)
	}
	return lineage.NewSignerIdentity(key, chain[0])
}
