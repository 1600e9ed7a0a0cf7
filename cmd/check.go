package cmd

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the Claude CLI can be found",
	Long: `Locate the Claude CLI the same way the server does and print the result
as JSON. Exits non-zero when the CLI is not available.

Examples:
  claude-desktop check
  CLAUDE_CLI_PATH=/opt/claude/bin/claude claude-desktop check`,
	PreRun: quietLogs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := newOrchestrator()
		defer o.Shutdown(context.Background())

		a := o.CheckAvailability(cmd.Context())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(a); err != nil {
			return err
		}
		if !a.Available {
			return errors.New("claude CLI is not available")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
