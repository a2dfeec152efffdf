package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigforge/apksigner/internal/cmdline"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
	internalks "github.com/sigforge/apksigner/internal/keystore"
	"github.com/sigforge/apksigner/pkg/lineage"
)

// NewRotateCommand creates the rotate command
func NewRotateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate [options]",
		Short: "Rotate the signing key recorded in a lineage",
		Long: `Extend a signing certificate lineage with a new signer, or start a
fresh lineage from an old and a new signer.

--old-signer and --new-signer each open a signer option group. Without
--in a new two-signer lineage is created; with --in the old signer must
hold the lineage's current terminal certificate and the new signer is
appended after it. Capability grants for either signer are set inside its
group with the --set-* options.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotate(cmd, cfg, args)
		},
	}
	return cmd
}

func runRotate(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	var (
		outPath     string
		inPath      string
		minSDK      int
		verbose     bool
		oldParams   *signerParams
		newParams   *signerParams
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
		case "old-signer":
			oldParams, err = parseSignerGroup(p)
		case "new-signer":
			newParams, err = parseSignerGroup(p)
		case "min-sdk-version":
			minSDK, err = p.RequiredIntValue("Minimum API Level")
		case "v", "verbose":
			verbose, err = p.OptionalBool(true)
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
			err = apkerrors.Configf("Unsupported option: %s. See --help for supported options.", p.OptionOriginalForm())
		}
		if err != nil {
			return err
		}
	}
	if !curProvider.empty() {
		providers = append(providers, curProvider)
	}

	if oldParams == nil {
		return apkerrors.Configf("Signer parameters for old signer not present")
	}
	if newParams == nil {
		return apkerrors.Configf("Signer parameters for new signer not present")
	}
	if outPath == "" {
		return apkerrors.Configf("Output lineage file parameter not present")
	}
	if params := p.Remaining(); len(params) > 0 {
		return apkerrors.Configf("Unexpected parameter(s) after %s: %s", lastOption, params[0])
	}
	if verbose {
		cfg.Logger.SetDebug(true)
	}

	var existing *lineage.Lineage
	if inPath != "" {
		var err error
		existing, err = lineage.ReadFile(inPath)
		if err != nil {
			return err
		}
	}

	reg := internalks.DefaultRegistry()
	if err := installProviders(reg, providers); err != nil {
		return err
	}

	ctx := cmd.Context()
	oldIdentity, err := loadIdentity(ctx, cfg, oldParams, "old signer", reg)
	if err != nil {
		return err
	}
	newIdentity, err := loadIdentity(ctx, cfg, newParams, "new signer", reg)
	if err != nil {
		return err
	}

	rotated, err := lineage.Rotate(existing, oldIdentity, newIdentity, oldParams.caps, newParams.caps, minSDK)
	if err != nil {
		return err
	}
	if err := rotated.WriteFile(outPath); err != nil {
		return err
	}
	if verbose {
		fmt.Fprintln(cmd.OutOrStdout(), "Rotation entry generated.")
	}
	return nil
}
