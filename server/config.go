package server

import (
	"time"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/reducer"
	"github.com/damien-schneider/claude-code-desktop-sub001/config"
	"github.com/damien-schneider/claude-code-desktop-sub001/db"
	"github.com/damien-schneider/claude-code-desktop-sub001/tracing"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	DatabasePath string
	DBLogQueries bool

	// CLI supervision
	CLIName          string
	CLIPath          string
	Transport        string
	ClaudeHome       string
	TranscriptLayout string
	StopGracePeriod  time.Duration
	AvailabilityTTL  time.Duration
	LookupTimeout    time.Duration
	WatchInstallDirs bool

	ChunkDebounce time.Duration

	Tracing config.TracingConfig
}

// FromAppConfig converts the loaded application config
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		Port:             c.Port,
		Host:             c.Host,
		Env:              c.Env,
		DatabasePath:     c.DatabasePath,
		DBLogQueries:     c.LogLevel == "trace",
		CLIName:          c.CLI.Name,
		CLIPath:          c.CLI.Path,
		Transport:        c.CLI.Transport,
		ClaudeHome:       c.CLI.ClaudeHome,
		TranscriptLayout: c.CLI.TranscriptLayout,
		StopGracePeriod:  c.CLI.StopGracePeriod,
		AvailabilityTTL:  c.CLI.AvailabilityTTL,
		LookupTimeout:    c.CLI.LookupTimeout,
		WatchInstallDirs: c.CLI.WatchInstallDirs,
		ChunkDebounce:    c.Reducer.ChunkDebounce,
		Tracing:          c.Tracing,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// ToDBConfig converts server config to database config
func (c *Config) ToDBConfig() db.Config {
	return db.Config{
		Path:       c.DatabasePath,
		LogQueries: c.DBLogQueries,
	}
}

// ToOrchestratorOptions converts server config to orchestrator options.
// The recorder and tracer are filled in by the server.
func (c *Config) ToOrchestratorOptions() claude.Options {
	return claude.Options{
		CLIName:         c.CLIName,
		CLIPath:         c.CLIPath,
		Transport:       c.Transport,
		ClaudeHome:      c.ClaudeHome,
		Transcripts:     claude.TranscriptLayout(c.TranscriptLayout, c.ClaudeHome),
		StopGracePeriod: c.StopGracePeriod,
		AvailabilityTTL: c.AvailabilityTTL,
		LookupTimeout:   c.LookupTimeout,
	}
}

// ToTracingConfig converts server config to tracing config
func (c *Config) ToTracingConfig() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.Enabled = c.Tracing.Enabled
	if c.Tracing.Exporter != "" {
		cfg.Exporter = c.Tracing.Exporter
	}
	if c.Tracing.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = c.Tracing.OTLPEndpoint
	}
	if c.Tracing.SampleRate > 0 {
		cfg.SampleRate = c.Tracing.SampleRate
	}
	if c.Tracing.ServiceName != "" {
		cfg.ServiceName = c.Tracing.ServiceName
	}
	return cfg
}

// ToReducerOptions converts server config to reducer options
func (c *Config) ToReducerOptions() reducer.Options {
	return reducer.Options{ChunkDebounce: c.ChunkDebounce}
}
