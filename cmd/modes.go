package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var modesCmd = &cobra.Command{
	Use:    "modes",
	Short:  "List the permission modes a session can start with",
	PreRun: quietLogs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := newOrchestrator()
		defer o.Shutdown(context.Background())

		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string][]string{
			"modes": o.PermissionModes(),
		})
	},
}

func init() {
	rootCmd.AddCommand(modesCmd)
}
