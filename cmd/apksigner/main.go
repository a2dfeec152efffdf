package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/sigforge/apksigner/cmd/apksigner/commands"
	"github.com/sigforge/apksigner/internal/config"
	apkerrors "github.com/sigforge/apksigner/internal/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	code := 0
	if err := run(); err != nil {
		if !commands.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		code = 1
		var signerErr apkerrors.SignerError
		if errors.As(err, &signerErr) {
			// Signer credentials that fail to load during sign get
			// their own exit code so build scripts can tell a bad
			// keystore apart from a bad invocation.
			code = 2
		}
	}
	// Password buffers are destroyed where they were issued; this wipes
	// anything a failure path left behind. os.Exit skips defers, so purge
	// runs inline.
	memguard.Purge()
	os.Exit(code)
}

func run() error {
	cfg := &config.Config{}

	rootCmd := commands.NewRootCommand(cfg)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	return rootCmd.Execute()
}
