package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
)

var (
	queryProject string
	queryMode    string
	queryModel   string
	queryTurns   int
	queryTimeout time.Duration
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <prompt>",
	Short: "Run a single prompt through the Claude CLI and print the answer",
	Long: `Run one non-interactive prompt in a project directory and print the final
result. The session is not registered with any running server.

Examples:
  claude-desktop query "summarize the README"
  claude-desktop query --project ~/src/app --permission-mode plan "what would you change?"
  claude-desktop query --json "hello" | jq .costUsd`,
	Args:   cobra.MinimumNArgs(1),
	PreRun: quietLogs,
	RunE: func(cmd *cobra.Command, args []string) error {
		project := queryProject
		if project == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			project = wd
		}
		project, err := filepath.Abs(project)
		if err != nil {
			return fmt.Errorf("resolve project path: %w", err)
		}

		o := newOrchestrator()
		defer o.Shutdown(context.Background())

		res, err := o.QueryOnce(cmd.Context(), project, strings.Join(args, " "), claude.QueryOptions{
			PermissionMode: queryMode,
			Model:          queryModel,
			MaxTurns:       queryTurns,
			Timeout:        queryTimeout,
		})
		if err != nil {
			return err
		}

		if queryJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
		}
		if res.IsError {
			return errors.New("claude reported an error")
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryProject, "project", "p", "", "project directory (default: current directory)")
	queryCmd.Flags().StringVar(&queryMode, "permission-mode", "", "permission mode: default, acceptEdits, plan, bypassPermissions")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "model override")
	queryCmd.Flags().IntVar(&queryTurns, "max-turns", 0, "limit the number of agentic turns")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 5*time.Minute, "give up after this long")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(queryCmd)
}
