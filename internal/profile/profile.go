// Package profile loads YAML signing profiles: a declarative signer list
// plus scheme and lineage settings for non-interactive runs.
package profile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/internal/signer"
)

//go:embed schema.json
var profileSchema string

// Profile is a validated signing profile document.
type Profile struct {
	Version int      `yaml:"version"`
	Signing Signing  `yaml:"signing"`
	Lineage string   `yaml:"lineage"`
	Signers []Signer `yaml:"signers"`
}

// Signing carries the scheme toggles and platform bounds. Absent toggles
// mean enabled; zero bounds mean unset.
type Signing struct {
	V1     *bool `yaml:"v1"`
	V2     *bool `yaml:"v2"`
	V3     *bool `yaml:"v3"`
	MinSdk int   `yaml:"minSdk"`
	MaxSdk int   `yaml:"maxSdk"`
}

// V1Enabled reports whether v1 signing is on. Unset means on.
func (s Signing) V1Enabled() bool { return s.V1 == nil || *s.V1 }

// V2Enabled reports whether v2 signing is on. Unset means on.
func (s Signing) V2Enabled() bool { return s.V2 == nil || *s.V2 }

// V3Enabled reports whether v3 signing is on. Unset means on.
func (s Signing) V3Enabled() bool { return s.V3 == nil || *s.V3 }

// Signer is one signer entry. The schema guarantees exactly one of Keystore
// and Key+Cert is set.
type Signer struct {
	Name         string    `yaml:"name"`
	Keystore     *Keystore `yaml:"keystore"`
	Key          string    `yaml:"key"`
	Cert         string    `yaml:"cert"`
	KeyPass      string    `yaml:"keyPass"`
	PassEncoding string    `yaml:"passEncoding"`
}

// PasswordEncoding returns the extra password encoding configured for this
// signer, or empty for none.
func (s Signer) PasswordEncoding() string {
	if s.Keystore != nil {
		return s.Keystore.PassEncoding
	}
	return s.PassEncoding
}

// Keystore describes a store-backed signer.
type Keystore struct {
	Path         string `yaml:"path"`
	Alias        string `yaml:"alias"`
	Type         string `yaml:"type"`
	Provider     string `yaml:"provider"`
	Factory      string `yaml:"factory"`
	FactoryArg   string `yaml:"factoryArg"`
	StorePass    string `yaml:"storePass"`
	KeyPass      string `yaml:"keyPass"`
	PassEncoding string `yaml:"passEncoding"`
}

// Load reads, validates, and decodes the profile at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func parse(data []byte) (*Profile, error) {
	// Validate the raw document before the typed decode so unknown keys
	// and shape errors are reported against what the user wrote.
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apkerrors.Configf("failed to parse profile: %v", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile for validation: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(profileSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, apkerrors.Configf("schema validation failed:\n  - %s",
			strings.Join(messages, "\n  - "))
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, apkerrors.Configf("failed to parse profile: %v", err)
	}
	if err := checkSpecs(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// checkSpecs rejects interactive password sources. A profile describes an
// unattended run; there is no terminal to prompt.
func checkSpecs(p *Profile) error {
	for i, s := range p.Signers {
		specs := []string{s.KeyPass}
		if s.Keystore != nil {
			specs = append(specs, s.Keystore.StorePass, s.Keystore.KeyPass)
		}
		for _, spec := range specs {
			if spec == "stdin" {
				return apkerrors.Configf(
					"signer #%d: stdin password sources are not allowed in a profile", i+1)
			}
		}
	}
	return nil
}

// Descriptors converts the signer entries into loader descriptors, in
// profile order.
func (p *Profile) Descriptors() []signer.Descriptor {
	out := make([]signer.Descriptor, len(p.Signers))
	for i, s := range p.Signers {
		d := signer.Descriptor{
			Name:       fmt.Sprintf("signer #%d", i+1),
			V1Basename: s.Name,
		}
		if s.Keystore != nil {
			d.KeystorePath = s.Keystore.Path
			d.StoreType = s.Keystore.Type
			d.ProviderName = s.Keystore.Provider
			d.FactoryName = s.Keystore.Factory
			d.FactoryArg = s.Keystore.FactoryArg
			d.Alias = s.Keystore.Alias
			d.StorePasswordSpec = s.Keystore.StorePass
			d.KeyPasswordSpec = s.Keystore.KeyPass
		} else {
			d.KeyFile = s.Key
			d.CertFile = s.Cert
			d.KeyPasswordSpec = s.KeyPass
		}
		out[i] = d
	}
	return out
}
