// ABOUTME: Entry point for the coven-threads server
// ABOUTME: Serves the thread API and provides init, token and health subcommands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-threads/internal/auth"
	"github.com/2389/coven-threads/internal/client"
	"github.com/2389/coven-threads/internal/config"
	"github.com/2389/coven-threads/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _   _                        _     _
 | |_| |__  _ __ ___  __ _  __| | __| |
 | __| '_ \| '__/ _ \/ _' |/ _' |/ _' |
 | |_| | | | | |  __/ (_| | (_| | (_| |
  \__|_| |_|_|  \___|\__,_|\__,_|\__,_|
`

// defaultTokenTTL is how long tokens minted by `threadd token` stay valid.
const defaultTokenTTL = 30 * 24 * time.Hour

func usage() {
	fmt.Println("Usage: threadd <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the thread server")
	fmt.Println("  init                         Write a starter config file")
	fmt.Println("  token --subject NAME [--ttl] Mint a JWT for API access")
	fmt.Println("  health                       Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves and loads the configuration file.
func loadConfig() (*config.Config, string, error) {
	configPath, err := config.DefaultPath()
	if errors.Is(err, config.ErrNoConfig) {
		return nil, "", fmt.Errorf("%w (run `threadd init` or set %s)", err, config.EnvConfigPath)
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s ", cfg.Server.GRPCAddr)
		gray.Println("(health)")
	}
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s ", cfg.Storage.WorkingDir)
	cyan.Printf("[%s]\n", cfg.Storage.Driver)
	if !cfg.Auth.Enabled() {
		yellow.Print("    ! ")
		fmt.Println("Auth:      disabled")
	}
	fmt.Println()

	logger.Info("starting coven-threads",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"driver", cfg.Storage.Driver,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runInit writes a starter configuration file.
func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	outputFile := prompt(reader, "Config file path", config.WritePath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	workingDir := prompt(reader, "Working directory for thread records", defaultWorkingDir())

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(config.Starter(workingDir)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Config written to %s\n", outputFile)
	green.Printf("  ✓ Working directory: %s\n", workingDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  threadd serve")
	return nil
}

// defaultWorkingDir returns XDG_DATA_HOME/coven/threads or ~/.local/share/coven/threads.
func defaultWorkingDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven", "threads")
}

// runToken mints a JWT signed with the configured secret.
// Supports both "--subject value" and "--subject=value" formats.
func runToken(args []string) error {
	var subject string
	ttl := defaultTokenTTL

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return fmt.Errorf("--subject requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
			i++
		case strings.HasPrefix(arg, "--ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("--subject flag is required")
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret not configured in %s", configPath)
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if err := client.New(cfg.Server.HTTPAddr).Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
