package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sigforge/apksigner/internal/cmdline"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
	internalks "github.com/sigforge/apksigner/internal/keystore"
	"github.com/sigforge/apksigner/internal/profile"
	"github.com/sigforge/apksigner/internal/signer"
	"github.com/sigforge/apksigner/pkg/apk"
	"github.com/sigforge/apksigner/pkg/lineage"
)

// NewSignCommand creates the sign command
func NewSignCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [options] apk",
		Short: "Sign an APK",
		Long: `Sign an APK with one or more signers.

Signer options form ordered groups; --next-signer closes the current group
and opens the next. Each signer names either a keystore (--ks) or a raw
key and certificate pair (--key, --cert). Passwords resolve through spec
strings such as pass:, env:, file:, keyring:, and aws-sm:; the default is
a prompt on standard input. Without --out the APK is signed in place.
--profile loads the signer list and signing options from a YAML document
instead of per-signer options.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, cfg, args)
		},
	}
	return cmd
}

// signJob pairs a loadable descriptor with the password encoding that
// applies to it.
type signJob struct {
	desc     *signer.Descriptor
	encoding string
}

func runSign(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	var (
		outPath     string
		inPath      string
		minSDK      int
		minSDKSet   bool
		maxSDK      int
		maxSDKSet   bool
		v1Opt       *bool
		v2Opt       *bool
		v3Opt       *bool
		debuggable  = true
		verbose     bool
		lin         *lineage.Lineage
		profilePath string
		signers     []*signerParams
		current     = &signerParams{}
		providers   []*providerInstall
		curProvider = &providerInstall{}
		lastOption  string
	)

	p := cmdline.New(args)
	for {
		name, ok := p.NextOption()
		if !ok {
			break
		}
		lastOption = p.OptionOriginalForm()
		var err error
		switch name {
		case "help", "h":
			return cmd.Help()
		case "out":
			outPath, err = p.RequiredValue("Output file name")
		case "in":
			inPath, err = p.RequiredValue("Input file name")
		case "min-sdk-version":
			minSDK, err = p.RequiredIntValue("Minimum API Level")
			minSDKSet = true
		case "max-sdk-version":
			maxSDK, err = p.RequiredIntValue("Maximum API Level")
			maxSDKSet = true
		case "v1-signing-enabled":
			v1Opt, err = optionalBoolPtr(p)
		case "v2-signing-enabled":
			v2Opt, err = optionalBoolPtr(p)
		case "v3-signing-enabled":
			v3Opt, err = optionalBoolPtr(p)
		case "debuggable-apk-permitted":
			debuggable, err = p.OptionalBool(true)
		case "lineage":
			var path string
			path, err = p.RequiredValue("Lineage file")
			if err == nil {
				lin, err = lineage.ReadFile(path)
			}
		case "profile":
			profilePath, err = p.RequiredValue("Signing profile")
		case "v", "verbose":
			verbose, err = p.OptionalBool(true)
		case "next-signer":
			if current.empty() {
				err = apkerrors.Configf("Signer specified without arguments")
				break
			}
			signers = append(signers, current)
			current = &signerParams{}
		case "next-provider":
			if !curProvider.empty() {
				providers = append(providers, curProvider)
				curProvider = &providerInstall{}
			}
		case "provider-factory":
			curProvider.factoryName, err = p.RequiredValue("Provider factory name")
		case "provider-arg":
			curProvider.arg, err = p.RequiredValue("Provider factory argument")
		case "provider-pos":
			curProvider.pos, err = p.RequiredIntValue("Provider position")
			curProvider.posSet = true
		default:
			p.PutBack()
			var consumed bool
			consumed, err = current.parse(p, signerOptionSet{v1Name: true})
			if err == nil && !consumed {
				err = apkerrors.Configf("Unsupported option: %s. See --help for supported options.", p.OptionOriginalForm())
			}
		}
		if err != nil {
			return err
		}
	}
	if !current.empty() {
		signers = append(signers, current)
	}
	if !curProvider.empty() {
		providers = append(providers, curProvider)
	}

	if verbose {
		cfg.Logger.SetDebug(true)
	}

	v1, v2, v3 := true, true, true

	var prof *profile.Profile
	if profilePath != "" {
		if len(signers) > 0 {
			return apkerrors.Configf("--profile and per-signer options may not be combined")
		}
		var err error
		prof, err = profile.Load(profilePath)
		if err != nil {
			return err
		}
		v1, v2, v3 = prof.Signing.V1Enabled(), prof.Signing.V2Enabled(), prof.Signing.V3Enabled()
		if !minSDKSet && prof.Signing.MinSdk > 0 {
			minSDK, minSDKSet = prof.Signing.MinSdk, true
		}
		if !maxSDKSet && prof.Signing.MaxSdk > 0 {
			maxSDK, maxSDKSet = prof.Signing.MaxSdk, true
		}
		if lin == nil && prof.Lineage != "" {
			lin, err = lineage.ReadFile(prof.Lineage)
			if err != nil {
				return err
			}
		}
	}
	// Explicit scheme toggles win over the profile's.
	if v1Opt != nil {
		v1 = *v1Opt
	}
	if v2Opt != nil {
		v2 = *v2Opt
	}
	if v3Opt != nil {
		v3 = *v3Opt
	}

	var jobs []signJob
	if prof != nil {
		descs := prof.Descriptors()
		for i := range descs {
			jobs = append(jobs, signJob{desc: &descs[i], encoding: prof.Signers[i].PasswordEncoding()})
		}
	} else {
		for i, sp := range signers {
			jobs = append(jobs, signJob{desc: sp.descriptor(fmt.Sprintf("signer #%d", i+1)), encoding: sp.passEncoding})
		}
	}
	if len(jobs) == 0 {
		return apkerrors.Configf("At least one signer must be specified")
	}

	params := p.Remaining()
	if inPath != "" {
		if len(params) > 0 {
			return apkerrors.Configf("Unexpected parameter(s) after %s: %s", lastOption, params[0])
		}
	} else {
		if len(params) < 1 {
			return apkerrors.Configf("Missing input APK")
		}
		if len(params) > 1 {
			return apkerrors.Configf("Unexpected parameter(s) after input APK (%s)", params[1])
		}
		inPath = params[0]
	}
	if minSDKSet && maxSDKSet && minSDK > maxSDK {
		return apkerrors.Configf("Min API Level (%d) > max API Level (%d)", minSDK, maxSDK)
	}

	reg := internalks.DefaultRegistry()
	if err := installProviders(reg, providers); err != nil {
		return err
	}

	ctx := cmd.Context()
	configs := make([]apk.SignerConfig, 0, len(jobs))
	for _, job := range jobs {
		key, chain, err := loadCredentials(ctx, cfg, job.desc, job.encoding, reg)
		if err != nil {
			return apkerrors.SignerError{Name: job.desc.Name, Err: err}
		}
		configs = append(configs, apk.SignerConfig{
			Name:         job.desc.DisplayName(),
			Key:          key,
			Certificates: chain,
		})
	}

	eng, err := cfg.ResolveEngine()
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = inPath
	}
	dest := outPath
	if samePath(inPath, outPath) {
		// Sign through a sibling temp file and move it over the input so a
		// failed run never clobbers the original APK.
		tmp, err := os.CreateTemp(filepath.Dir(inPath), "apksigner-*.apk")
		if err != nil {
			return fmt.Errorf("creating temporary output: %w", err)
		}
		dest = tmp.Name()
		tmp.Close()
		defer os.Remove(dest)
	}

	cfg.Logger.Debug("signing %s to %s with %d signer(s)", inPath, outPath, len(configs))
	res, err := eng.Sign(ctx, apk.SignRequest{
		Input:               inPath,
		Output:              dest,
		Signers:             configs,
		V1:                  v1,
		V2:                  v2,
		V3:                  v3,
		DebuggablePermitted: debuggable,
		MinSDK:              minSDK,
		MinSDKSet:           minSDKSet,
		MaxSDK:              maxSDK,
		Lineage:             lin,
	})
	if err != nil {
		return err
	}
	if dest != outPath {
		if err := os.Rename(dest, outPath); err != nil {
			return fmt.Errorf("moving signed APK into place: %w", err)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: "+warning)
	}
	if verbose {
		fmt.Fprintln(cmd.OutOrStdout(), "Signed")
	}
	return nil
}

func optionalBoolPtr(p *cmdline.Parser) (*bool, error) {
	v, err := p.OptionalBool(true)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// samePath reports whether two paths name the same file once absolutized.
// Symlink aliases are not chased; in-place signing only needs to catch a
// plain --out equal to the input.
func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return aa == bb
}
