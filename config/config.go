package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Env  string `mapstructure:"env"` // "development" or "production"

	LogLevel string `mapstructure:"log_level"`

	// Data directory
	DataDir string `mapstructure:"data_dir"`

	// Run history database; defaults to a file under DataDir
	DatabasePath string `mapstructure:"database_path"`

	CLI     CLIConfig     `mapstructure:"cli"`
	Reducer ReducerConfig `mapstructure:"reducer"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// CLIConfig controls how the Claude CLI is found and supervised.
type CLIConfig struct {
	Name             string        `mapstructure:"name"`
	Path             string        `mapstructure:"path"`
	Transport        string        `mapstructure:"transport"` // "sdk" or "raw"
	ClaudeHome       string        `mapstructure:"claude_home"`
	TranscriptLayout string        `mapstructure:"transcript_layout"` // "claude" or "project"
	StopGracePeriod  time.Duration `mapstructure:"stop_grace_period"`
	AvailabilityTTL  time.Duration `mapstructure:"availability_ttl"`
	LookupTimeout    time.Duration `mapstructure:"lookup_timeout"`
	WatchInstallDirs bool          `mapstructure:"watch_install_dirs"`
}

// ReducerConfig tunes the client stream reducer.
type ReducerConfig struct {
	ChunkDebounce time.Duration `mapstructure:"chunk_debounce"`
}

// TracingConfig mirrors tracing.Config so this package stays dependency free.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	ServiceName  string  `mapstructure:"service_name"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.Mutex
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"port":                   "PORT",
	"host":                   "HOST",
	"env":                    "ENV",
	"log_level":              "LOG_LEVEL",
	"data_dir":               "CCD_DATA_DIR",
	"database_path":          "CCD_DATABASE_PATH",
	"cli.name":               "CLAUDE_CLI_NAME",
	"cli.path":               "CLAUDE_CLI_PATH",
	"cli.transport":          "CLAUDE_TRANSPORT",
	"cli.claude_home":        "CLAUDE_CONFIG_DIR",
	"cli.transcript_layout":  "CCD_TRANSCRIPT_LAYOUT",
	"cli.stop_grace_period":  "CCD_STOP_GRACE_PERIOD",
	"cli.availability_ttl":   "CCD_AVAILABILITY_TTL",
	"cli.watch_install_dirs": "CCD_WATCH_INSTALL_DIRS",
	"reducer.chunk_debounce": "CCD_CHUNK_DEBOUNCE",
	"tracing.enabled":        "CCD_TRACING",
	"tracing.exporter":       "CCD_TRACING_EXPORTER",
	"tracing.otlp_endpoint":  "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Get returns the global configuration (singleton).
// Without a prior Init call it is built from defaults and the environment.
func Get() *Config {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if cfg != nil {
			return
		}
		loaded, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v, using defaults\n", err)
			loaded = defaults()
		}
		cfg = loaded
	})
	return cfg
}

// Init loads configuration from path (optional) and installs it as the singleton.
// It must run before the first Get call to take effect.
func Init(path string) error {
	loaded, err := Load(path)
	if err != nil {
		return err
	}
	mu.Lock()
	cfg = loaded
	mu.Unlock()
	once.Do(func() {})
	return nil
}

// Load reads configuration from defaults, an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path == "" {
		path = os.Getenv("CCD_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.fillDerived()
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 12346)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("database_path", "")

	v.SetDefault("cli.name", "claude")
	v.SetDefault("cli.path", "")
	v.SetDefault("cli.transport", "sdk")
	v.SetDefault("cli.claude_home", "")
	v.SetDefault("cli.transcript_layout", "claude")
	v.SetDefault("cli.stop_grace_period", 5*time.Second)
	v.SetDefault("cli.availability_ttl", 30*time.Second)
	v.SetDefault("cli.lookup_timeout", 10*time.Second)
	v.SetDefault("cli.watch_install_dirs", true)

	v.SetDefault("reducer.chunk_debounce", 30*time.Millisecond)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "claude-session-orchestrator")
}

func defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	c.fillDerived()
	return &c
}

func (c *Config) fillDerived() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "app", "claude-desktop", "runs.sqlite")
	}
	if c.CLI.ClaudeHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.CLI.ClaudeHome = filepath.Join(home, ".claude")
		}
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Addr returns the host:port the HTTP server listens on
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
