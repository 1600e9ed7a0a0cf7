// Package cmd holds the command line entry points.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/config"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
	"github.com/damien-schneider/claude-code-desktop-sub001/server"
)

var (
	version  = "dev"
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "claude-desktop",
	Short: "Supervises Claude CLI sessions for the desktop app",
	Long: `Runs the local session orchestrator: it launches and resumes Claude CLI
sessions, streams their output to the desktop UI and stops them on request.

Run without a subcommand to start the server.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: $CCD_CONFIG, then built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level: trace, debug, info, warn, error (overrides config)")
}

func initConfig() {
	if err := config.Init(cfgFile); err != nil {
		cobra.CheckErr(err)
	}
	cfg := config.Get()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.Setup(cfg.IsDevelopment(), cfg.LogLevel)
}

// quietLogs routes logs to stderr for commands whose stdout is the result
func quietLogs(cmd *cobra.Command, _ []string) {
	log.SetOutput(cmd.ErrOrStderr())
}

// newOrchestrator builds a standalone orchestrator from the loaded config,
// without run history or tracing.
func newOrchestrator() *claude.Orchestrator {
	return claude.New(server.FromAppConfig(config.Get()).ToOrchestratorOptions())
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
