// Package config handles configuration loading for coven-threads.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Files ending in .toml are parsed as TOML; everything else is YAML.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from THREADS_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/threads.yaml
//  3. ~/.config/coven/threads.yaml
//
// THREADS_WORKING_DIR, when set, overrides storage.working_dir.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${THREADS_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"   # required
//	  grpc_addr: "127.0.0.1:50051"  # optional gRPC health endpoint
//	  shutdown_timeout: "5s"
//
//	storage:
//	  working_dir: "/var/lib/coven-threads"  # required
//	  driver: "file"                         # file, sqlite, bolt, pebble, memory
//
//	auth:
//	  jwt_secret: "${THREADS_JWT_SECRET}"    # at least 32 bytes when set
//	  api_key: "${THREADS_API_KEY}"
//
//	rate_limit:
//	  rps: 5
//	  burst: 10
//
//	idempotency:
//	  ttl: "5m"
//	  max_entries: 10000
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Usage
//
//	path, err := config.DefaultPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load(path)
package config
