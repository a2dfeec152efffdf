package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigforge/apksigner/internal/cmdline"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
	internalks "github.com/sigforge/apksigner/internal/keystore"
	"github.com/sigforge/apksigner/pkg/lineage"
)

// NewLineageCommand creates the lineage command
func NewLineageCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage [options]",
		Short: "Inspect or update a signing certificate lineage",
		Long: `Inspect a signing certificate lineage file and update the capability
grants of its signers.

Each --signer option opens a signer option group whose credential proves
possession of a key in the lineage; the group's --set-* options adjust
that signer's grants. The file is rewritten to --out only when a grant
actually changed. --print-certs lists every signer in the lineage with
its capabilities.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, cfg, args)
		},
	}
	return cmd
}

func runLineage(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	var (
		lin        *lineage.Lineage
		outPath    string
		verbose    bool
		printCerts bool
		groups     []*signerParams
	)
	p := cmdline.New(args)
	for {
		name, ok := p.NextOption()
		if !ok {
			break
		}
		var err error
		switch name {
		case "help", "h":
			return cmd.Help()
		case "in":
			var path string
			path, err = p.RequiredValue("Input file name")
			if err == nil {
				lin, err = lineage.ReadFile(path)
			}
		case "out":
			outPath, err = p.RequiredValue("Output file name")
		case "signer":
			var group *signerParams
			group, err = parseSignerGroup(p)
			if err == nil {
				groups = append(groups, group)
			}
		case "print-certs":
			printCerts, err = p.OptionalBool(true)
		case "v", "verbose":
			verbose, err = p.OptionalBool(true)
		default:
			err = apkerrors.Configf("Unsupported option: %s. See --help for supported options.", p.OptionOriginalForm())
		}
		if err != nil {
			return err
		}
	}
	if lin == nil {
		return apkerrors.Configf("Input lineage file parameter not present")
	}
	if verbose {
		cfg.Logger.SetDebug(true)
	}

	out := cmd.OutOrStdout()
	reg := internalks.DefaultRegistry()
	ctx := cmd.Context()
	updated := false
	for i, group := range groups {
		name := fmt.Sprintf("signer #%d", i+1)
		identity, err := loadIdentity(ctx, cfg, group, name, reg)
		if err != nil {
			return err
		}
		changed, err := lin.UpdateCapabilities(identity.Certificate, group.caps)
		if err != nil {
			var notFound lineage.SignerNotInLineageError
			if errors.As(err, &notFound) {
				return apkerrors.Configf("The signer %s was not found in the specified lineage.", name)
			}
			return err
		}
		if changed {
			updated = true
			if verbose {
				fmt.Fprintf(out, "Updated signer capabilities for %s.\n", name)
			}
		} else if verbose {
			fmt.Fprintf(out, "The provided signer capabilities for %s are unchanged.\n", name)
		}
	}

	if printCerts {
		for i, cert := range lin.Signers() {
			caps, err := lin.Capabilities(cert)
			if err != nil {
				return err
			}
			printCertificate(out, cert, fmt.Sprintf("Signer #%d in lineage", i+1), verbose)
			printCapabilities(out, caps)
		}
	}

	if updated {
		if outPath == "" {
			return apkerrors.Configf("The lineage was modified but an output file for the lineage was not specified")
		}
		if err := lin.WriteFile(outPath); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(out, "Updated lineage saved to %s.\n", outPath)
		}
	}
	return nil
}
