// ABOUTME: Configuration loading and parsing for coven-threads
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-threads/internal/store"
)

// Environment variables consulted by the loader
const (
	EnvConfigPath = "THREADS_CONFIG"
	EnvWorkingDir = "THREADS_WORKING_DIR"
)

// Defaults applied to unset fields
const (
	DefaultShutdownTimeout = 5 * time.Second
	DefaultIdempotencyTTL  = 5 * time.Minute
	DefaultIdempotencyMax  = 10000
	DefaultMetricsPath     = "/metrics"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	minJWTSecretLength     = 32
	defaultConfigDirName   = "coven"
	defaultConfigFileName  = "threads.yaml"
)

// reservedPaths are served by the server itself and cannot host metrics.
var reservedPaths = []string{"/health", "/health/ready", "/threads"}

// ErrNoConfig is returned by DefaultPath when no candidate file exists
var ErrNoConfig = errors.New("no configuration file found")

// Config represents the complete coven-threads configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Storage     StorageConfig     `yaml:"storage" toml:"storage"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"` // optional gRPC health endpoint

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// StorageConfig selects where and how thread records are persisted
type StorageConfig struct {
	WorkingDir string `yaml:"working_dir" toml:"working_dir"`
	Driver     string `yaml:"driver" toml:"driver"` // file, sqlite, bolt, pebble, memory
}

// AuthConfig holds authentication configuration.
// Authentication is disabled when both fields are empty.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
}

// Enabled reports whether any credential is configured
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.APIKey != ""
}

// RateLimitConfig holds per-client request limits. RPS of zero disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

// IdempotencyConfig controls the Idempotency-Key replay window.
// An explicit ttl of "0s" disables Idempotency-Key handling.
type IdempotencyConfig struct {
	TTL        time.Duration `yaml:"-" toml:"-"`
	TTLRaw     string        `yaml:"ttl" toml:"ttl"`
	MaxEntries int           `yaml:"max_entries" toml:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, and
// THREADS_WORKING_DIR overrides storage.working_dir.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if dir := os.Getenv(EnvWorkingDir); dir != "" {
		cfg.Storage.WorkingDir = dir
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultPath returns the first configuration file found, in priority order:
// $THREADS_CONFIG, $XDG_CONFIG_HOME/coven/threads.yaml, ~/.config/coven/threads.yaml.
// THREADS_CONFIG is returned even when the file does not exist so Load can report it.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	for _, p := range candidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoConfig
}

// WritePath returns where a new configuration file should be written
func WritePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if paths := candidatePaths(); len(paths) > 0 {
		return paths[0]
	}
	return defaultConfigFileName
}

func candidatePaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, defaultConfigDirName, defaultConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", defaultConfigDirName, defaultConfigFileName))
	}
	return paths
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = store.DriverFile
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = max(1, int(c.RateLimit.RPS))
	}
	if c.Idempotency.TTL == 0 && c.Idempotency.TTLRaw == "" {
		c.Idempotency.TTL = DefaultIdempotencyTTL
	}
	if c.Idempotency.MaxEntries == 0 {
		c.Idempotency.MaxEntries = DefaultIdempotencyMax
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Storage.WorkingDir == "" {
		return fmt.Errorf("storage.working_dir is required (or set %s)", EnvWorkingDir)
	}
	if !slices.Contains(store.Drivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver %q is not one of %s", c.Storage.Driver, strings.Join(store.Drivers, ", "))
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLength)
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if c.Idempotency.TTL < 0 || c.Idempotency.MaxEntries < 0 {
		return fmt.Errorf("idempotency values must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
		if slices.Contains(reservedPaths, c.Metrics.Path) || strings.HasPrefix(c.Metrics.Path, "/threads/") {
			return fmt.Errorf("metrics.path %q collides with a built-in route", c.Metrics.Path)
		}
		if strings.ContainsAny(c.Metrics.Path, "{} \t") {
			return fmt.Errorf("metrics.path %q must be a literal path", c.Metrics.Path)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Idempotency.TTLRaw != "" {
		cfg.Idempotency.TTL, err = time.ParseDuration(cfg.Idempotency.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency ttl %q: %w", cfg.Idempotency.TTLRaw, err)
		}
	}

	return nil
}

// Starter returns the configuration file written by `threadd init`
func Starter(workingDir string) string {
	return fmt.Sprintf(`# coven-threads configuration

server:
  http_addr: "127.0.0.1:8080"
  # grpc_addr: "127.0.0.1:50051"   # optional gRPC health endpoint
  shutdown_timeout: "5s"

storage:
  working_dir: %q
  driver: "file"   # file, sqlite, bolt, pebble, memory

auth:
  jwt_secret: "${THREADS_JWT_SECRET}"
  api_key: "${THREADS_API_KEY}"

rate_limit:
  rps: 0
  burst: 0

idempotency:
  ttl: "5m"
  max_entries: 10000

logging:
  level: "info"    # debug, info, warn, error
  format: "text"   # text, json

metrics:
  enabled: true
  path: "/metrics"
`, workingDir)
}
