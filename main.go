// Package main is the entry point for the Claude session orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/damien-schneider/claude-code-desktop-sub001/cmd"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
