// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
// CRC: crc-Config.md
// Spec: deployment.md
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Config holds all configuration settings for the action queue client and dev server.
type Config struct {
	Queue       QueueConfig       `toml:"queue"`
	Transport   TransportConfig   `toml:"transport"`
	Schema      SchemaConfig      `toml:"schema"`
	Experiments ExperimentsConfig `toml:"experiments"`
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`

	logger *zap.SugaredLogger
}

// QueueConfig holds batching thresholds.
// Each priority has an action timeout (quiet time since the last action at the
// batch priority) and a batch timeout (time since the batch priority was raised).
type QueueConfig struct {
	TickInterval     Duration `toml:"tick_interval"`
	ThresholdActions int      `toml:"threshold_actions"`
	SpinType         string   `toml:"spin_type"`

	NoneActionTimeout   Duration `toml:"none_action_timeout"`
	NoneBatchTimeout    Duration `toml:"none_batch_timeout"`
	LowActionTimeout    Duration `toml:"low_action_timeout"`
	LowBatchTimeout     Duration `toml:"low_batch_timeout"`
	NormalActionTimeout Duration `toml:"normal_action_timeout"`
	NormalBatchTimeout  Duration `toml:"normal_batch_timeout"`
	HighActionTimeout   Duration `toml:"high_action_timeout"`
	HighBatchTimeout    Duration `toml:"high_batch_timeout"`

	FastUpdateInterval Duration `toml:"fast_update_interval"`
	FastUpdateWindow   Duration `toml:"fast_update_window"` // halved when no watch type is set
}

// TransportConfig holds settings for sending batches to the game server.
type TransportConfig struct {
	Kind    string   `toml:"kind"` // "http", "websocket"
	URL     string   `toml:"url"`
	Gzip    bool     `toml:"gzip"`
	Timeout Duration `toml:"timeout"`
}

// SchemaConfig holds action schema registry settings.
type SchemaConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// ExperimentsConfig lists experiments that mark action types as read-only.
type ExperimentsConfig struct {
	ReadOnly []ReadOnlyExperiment `toml:"read_only"`
}

// ReadOnlyExperiment marks ActionTypes as read-only while Enabled.
type ReadOnlyExperiment struct {
	Name        string   `toml:"name"`
	Enabled     bool     `toml:"enabled"`
	ActionTypes []string `toml:"action_types"`
}

// ServerConfig holds dev action server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	SessionTimeout Duration `toml:"session_timeout"`
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Format    string `toml:"format"`    // "console", "json"
	Verbosity int    `toml:"verbosity"` // 0=errors, 1=connections, 2=batches, 3=actions, 4=values
}

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] == 'v' && strings.Trim(arg[1:], "v") == "" {
			for range arg[1:] {
				result = append(result, "-v")
			}
			continue
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			TickInterval:        Duration(100 * time.Millisecond),
			ThresholdActions:    1000,
			SpinType:            "spin",
			NoneActionTimeout:   Duration(60 * time.Second),
			NoneBatchTimeout:    Duration(60 * time.Second),
			LowActionTimeout:    Duration(20 * time.Second),
			LowBatchTimeout:     Duration(60 * time.Second),
			NormalActionTimeout: Duration(5 * time.Second),
			NormalBatchTimeout:  Duration(20 * time.Second),
			HighActionTimeout:   Duration(1 * time.Second),
			HighBatchTimeout:    Duration(5 * time.Second),
			FastUpdateInterval:  Duration(2 * time.Second),
			FastUpdateWindow:    Duration(30 * time.Second),
		},
		Transport: TransportConfig{
			Kind:    "http",
			URL:     "http://127.0.0.1:8686/actions",
			Gzip:    true,
			Timeout: Duration(10 * time.Second),
		},
		Schema: SchemaConfig{
			Path: "config/schema.yaml",
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8686,
			SessionTimeout: Duration(time.Hour),
			MaxBodyBytes:   4 << 20,
		},
		Logging: LoggingConfig{
			Format:    "console",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
// Returns the config and the remaining positional arguments.
func Load(name string, args []string) (*Config, []string, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "config/actionq.toml", "TOML config file")

	// Transport flags
	transportKind := fs.String("transport", "", "Transport: http, websocket")
	url := fs.String("url", "", "Game server action endpoint")
	noGzip := fs.Bool("no-gzip", false, "Send uncompressed batches")

	// Schema flags
	schemaPath := fs.String("schema", "", "Action schema YAML file")
	watchSchema := fs.Bool("watch-schema", false, "Reload the schema file when it changes")

	// Server flags
	host := fs.String("host", "", "Dev server listen address")
	port := fs.Int("port", 0, "Dev server listen port")

	// Queue flags
	tick := fs.Duration("tick", 0, "Host tick interval")

	// Logging flags
	logFormat := fs.String("log-format", "", "Log format: console, json")
	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := cfg.loadTOML(*configPath); err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config %s: %w", *configPath, err)
	}

	cfg.applyEnv()

	if *transportKind != "" {
		cfg.Transport.Kind = *transportKind
	}
	if *url != "" {
		cfg.Transport.URL = *url
	}
	if *noGzip {
		cfg.Transport.Gzip = false
	}
	if *schemaPath != "" {
		cfg.Schema.Path = *schemaPath
	}
	if *watchSchema {
		cfg.Schema.Watch = true
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *tick != 0 {
		cfg.Queue.TickInterval = Duration(*tick)
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	return cfg, fs.Args(), nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("ACTIONQ_TRANSPORT"); v != "" {
		c.Transport.Kind = v
	}
	if v := os.Getenv("ACTIONQ_URL"); v != "" {
		c.Transport.URL = v
	}
	if v := os.Getenv("ACTIONQ_GZIP"); v != "" {
		c.Transport.Gzip = v == "true" || v == "1"
	}
	if v := os.Getenv("ACTIONQ_SCHEMA"); v != "" {
		c.Schema.Path = v
	}
	if v := os.Getenv("ACTIONQ_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ACTIONQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ACTIONQ_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.TickInterval = Duration(d)
		}
	}
	if v := os.Getenv("ACTIONQ_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ACTIONQ_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}
