// Package commands wires the apksigner command tree. Every sub-command
// disables cobra's flag parsing and scans its own argument vector with
// internal/cmdline, because signer and provider options are positional
// groups that plain flag sets cannot express.
package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sigforge/apksigner/internal/config"
	"github.com/sigforge/apksigner/internal/logging"
)

// reportedError is a failure whose diagnostic the command already wrote to
// its error stream, like a verification verdict. main exits non-zero
// without printing it again.
type reportedError struct {
	msg string
}

func (e reportedError) Error() string { return e.msg }

// Reported reports whether the command already wrote err's diagnostic.
func Reported(err error) bool {
	var re reportedError
	return errors.As(err, &re)
}

// NewRootCommand builds the apksigner command tree. cfg is shared with
// every sub-command; tests pre-populate it with a captured logger or a
// fake engine before executing.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apksigner",
		Short: "Sign APKs and manage signing certificate lineages",
		Long: `apksigner signs APKs, verifies APK signatures, and maintains the
signing certificate lineage used to rotate APK signing keys.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.Logger == nil {
				cfg.Logger = logging.New(false, false)
			}
		},
	}

	rootCmd.AddCommand(
		NewSignCommand(cfg),
		NewVerifyCommand(cfg),
		NewRotateCommand(cfg),
		NewLineageCommand(cfg),
	)

	return rootCmd
}
