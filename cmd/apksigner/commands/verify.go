package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigforge/apksigner/internal/cmdline"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
	"github.com/sigforge/apksigner/pkg/apk"
)

// The verdict already went to the error stream by the time these are
// returned, so both carry the reported marker.
var (
	errNotVerified      = reportedError{msg: "APK verification failed"}
	errWarningsAsErrors = reportedError{msg: "verification warnings were treated as errors"}
)

// NewVerifyCommand creates the verify command
func NewVerifyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [options] apk",
		Short: "Check whether an APK's signatures verify",
		Long: `Check whether the APK's signatures are expected to verify on all
platforms in the supported range.

By default a verifying APK produces no output and exit code 0. Verbose
mode prints the verdict, the schemes that verified, and the signer count;
--print-certs adds each signer's certificate. --Werr turns warnings into
a failing exit code.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, cfg, args)
		},
	}
	return cmd
}

func runVerify(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	var (
		inPath     string
		minSDK     int
		minSDKSet  bool
		maxSDK     int
		maxSDKSet  bool
		printCerts bool
		verbose    bool
		warnErr    bool
		lastOption string
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
		case "in":
			inPath, err = p.RequiredValue("Input APK file")
		case "min-sdk-version":
			minSDK, err = p.RequiredIntValue("Minimum API Level")
			minSDKSet = true
		case "max-sdk-version":
			maxSDK, err = p.RequiredIntValue("Maximum API Level")
			maxSDKSet = true
		case "print-certs":
			printCerts, err = p.OptionalBool(true)
		case "v", "verbose":
			verbose, err = p.OptionalBool(true)
		case "Werr":
			warnErr, err = p.OptionalBool(true)
		default:
			err = apkerrors.Configf("Unsupported option: %s. See --help for supported options.", p.OptionOriginalForm())
		}
		if err != nil {
			return err
		}
	}
	params := p.Remaining()
	if inPath != "" {
		if len(params) > 0 {
			return apkerrors.Configf("Unexpected parameter(s) after %s: %s", lastOption, params[0])
		}
	} else {
		if len(params) < 1 {
			return apkerrors.Configf("Missing APK")
		}
		if len(params) > 1 {
			return apkerrors.Configf("Unexpected parameter(s) after APK (%s)", params[1])
		}
		inPath = params[0]
	}
	if minSDKSet && maxSDKSet && minSDK > maxSDK {
		return apkerrors.Configf("Min API Level (%d) > max API Level (%d)", minSDK, maxSDK)
	}
	if verbose {
		cfg.Logger.SetDebug(true)
	}

	eng, err := cfg.ResolveEngine()
	if err != nil {
		return err
	}
	res, err := eng.Verify(cmd.Context(), apk.VerifyRequest{
		Path:      inPath,
		MinSDK:    minSDK,
		MinSDKSet: minSDKSet,
		MaxSDK:    maxSDK,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	if res.Verified {
		if verbose {
			fmt.Fprintln(out, "Verifies")
			fmt.Fprintf(out, "Verified using v1 scheme (JAR signing): %t\n", res.V1)
			fmt.Fprintf(out, "Verified using v2 scheme (APK Signature Scheme v2): %t\n", res.V2)
			fmt.Fprintf(out, "Verified using v3 scheme (APK Signature Scheme v3): %t\n", res.V3)
			fmt.Fprintf(out, "Number of signers: %d\n", len(res.SignerCerts))
		}
		if printCerts {
			for i, cert := range res.SignerCerts {
				printCertificate(out, cert, fmt.Sprintf("Signer #%d", i+1), verbose)
			}
		}
	} else {
		fmt.Fprintln(errOut, "DOES NOT VERIFY")
	}

	for _, msg := range res.Errors {
		fmt.Fprintln(errOut, "ERROR: "+msg)
	}
	warnOut := out
	if warnErr {
		warnOut = errOut
	}
	for _, msg := range res.Warnings {
		fmt.Fprintln(warnOut, "WARNING: "+msg)
	}

	if !res.Verified {
		return errNotVerified
	}
	if warnErr && len(res.Warnings) > 0 {
		return errWarningsAsErrors
	}
	return nil
}
