// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"
  shutdown_timeout: "10s"

storage:
  working_dir: "/tmp/threads"
  driver: "sqlite"

auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  api_key: "secret-key"

rate_limit:
  rps: 5
  burst: 10

idempotency:
  ttl: "2m"
  max_entries: 50

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr != "0.0.0.0:50051" {
		t.Errorf("Server.GRPCAddr = %q, want %q", cfg.Server.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 10*time.Second)
	}
	if cfg.Storage.WorkingDir != "/tmp/threads" {
		t.Errorf("Storage.WorkingDir = %q, want %q", cfg.Storage.WorkingDir, "/tmp/threads")
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, "sqlite")
	}
	if !cfg.Auth.Enabled() {
		t.Error("Auth.Enabled() = false, want true")
	}
	if cfg.RateLimit.RPS != 5 || cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v, want rps 5 burst 10", cfg.RateLimit)
	}
	if cfg.Idempotency.TTL != 2*time.Minute {
		t.Errorf("Idempotency.TTL = %v, want %v", cfg.Idempotency.TTL, 2*time.Minute)
	}
	if cfg.Idempotency.MaxEntries != 50 {
		t.Errorf("Idempotency.MaxEntries = %d, want 50", cfg.Idempotency.MaxEntries)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "threads.toml", `
[server]
http_addr = "127.0.0.1:9000"
shutdown_timeout = "3s"

[storage]
working_dir = "/srv/threads"
driver = "bolt"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9000")
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Driver != "bolt" {
		t.Errorf("Storage.Driver = %q, want bolt", cfg.Storage.Driver)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: ":8080"
storage:
  working_dir: "/tmp/threads"
rate_limit:
  rps: 2.5
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("Driver = %q, want file", cfg.Storage.Driver)
	}
	if cfg.RateLimit.Burst != 2 {
		t.Errorf("Burst = %d, want 2", cfg.RateLimit.Burst)
	}
	if cfg.Idempotency.TTL != DefaultIdempotencyTTL {
		t.Errorf("Idempotency.TTL = %v, want %v", cfg.Idempotency.TTL, DefaultIdempotencyTTL)
	}
	if cfg.Idempotency.MaxEntries != DefaultIdempotencyMax {
		t.Errorf("Idempotency.MaxEntries = %d, want %d", cfg.Idempotency.MaxEntries, DefaultIdempotencyMax)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Auth.Enabled() {
		t.Error("Auth.Enabled() = true with no credentials")
	}
}

func TestLoad_ZeroIdempotencyTTLDisables(t *testing.T) {
	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: ":8080"
storage:
  working_dir: "/tmp/threads"
idempotency:
  ttl: "0s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Idempotency.TTL != 0 {
		t.Errorf("Idempotency.TTL = %v, want 0", cfg.Idempotency.TTL)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_THREADS_SECRET", "abcdefghijklmnopqrstuvwxyz0123456789")
	t.Setenv("TEST_THREADS_ADDR", "localhost:7070")

	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: "${TEST_THREADS_ADDR}"
storage:
  working_dir: "/tmp/threads"
auth:
  jwt_secret: "${TEST_THREADS_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:7070" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "localhost:7070")
	}
	if cfg.Auth.JWTSecret != "abcdefghijklmnopqrstuvwxyz0123456789" {
		t.Errorf("Auth.JWTSecret = %q, want expanded value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_WorkingDirOverride(t *testing.T) {
	t.Setenv(EnvWorkingDir, "/override/dir")

	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: ":8080"
storage:
  working_dir: "/from/file"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.WorkingDir != "/override/dir" {
		t.Errorf("Storage.WorkingDir = %q, want /override/dir", cfg.Storage.WorkingDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/threads.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "threads.yaml", "server:\n  http_addr: [unterminated\n")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "threads.yaml", `
server:
  http_addr: ":8080"
  shutdown_timeout: "soon"
storage:
  working_dir: "/tmp/threads"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "shutdown_timeout") {
		t.Errorf("error %q should mention shutdown_timeout", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Server:  ServerConfig{HTTPAddr: ":8080"},
			Storage: StorageConfig{WorkingDir: "/tmp/threads"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"missing working dir", func(c *Config) { c.Storage.WorkingDir = "" }, "storage.working_dir"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, "rate_limit"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"metrics on health", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "/health"
		}, "collides"},
		{"metrics on readiness", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "/health/ready"
		}, "collides"},
		{"metrics on threads", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "/threads"
		}, "collides"},
		{"metrics under threads", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "/threads/metrics"
		}, "collides"},
		{"metrics wildcard", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "/{name}"
		}, "literal path"},
		{"reserved path ignored when metrics disabled", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.Path = "/health"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "one")

	tests := []struct {
		input string
		want  string
	}{
		{"${TEST_VAR_ONE}", "one"},
		{"prefix-${TEST_VAR_ONE}-suffix", "prefix-one-suffix"},
		{"${TEST_VAR_UNSET_XYZ}", ""},
		{"no vars here", "no vars here"},
		{"$TEST_VAR_ONE", "$TEST_VAR_ONE"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/explicit/threads.yaml")
		got, err := DefaultPath()
		if err != nil {
			t.Fatalf("DefaultPath() error = %v", err)
		}
		if got != "/explicit/threads.yaml" {
			t.Errorf("DefaultPath() = %q, want /explicit/threads.yaml", got)
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		xdg := t.TempDir()
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", xdg)
		t.Setenv("HOME", t.TempDir())

		want := filepath.Join(xdg, "coven", "threads.yaml")
		if err := os.MkdirAll(filepath.Dir(want), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(want, []byte(""), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := DefaultPath()
		if err != nil {
			t.Fatalf("DefaultPath() error = %v", err)
		}
		if got != want {
			t.Errorf("DefaultPath() = %q, want %q", got, want)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("HOME", t.TempDir())

		_, err := DefaultPath()
		if !errors.Is(err, ErrNoConfig) {
			t.Errorf("DefaultPath() error = %v, want ErrNoConfig", err)
		}
	})
}

func TestStarter_Loads(t *testing.T) {
	t.Setenv("THREADS_JWT_SECRET", "")
	t.Setenv("THREADS_API_KEY", "")

	configPath := writeConfig(t, "threads.yaml", Starter("/tmp/threads-data"))

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load(Starter()) error = %v", err)
	}
	if cfg.Storage.WorkingDir != "/tmp/threads-data" {
		t.Errorf("Storage.WorkingDir = %q, want /tmp/threads-data", cfg.Storage.WorkingDir)
	}
}
