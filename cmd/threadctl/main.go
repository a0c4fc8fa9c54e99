// ABOUTME: Command-line client for a coven-threads server
// ABOUTME: Lists, shows, creates, renames, appends to, deletes and exports threads

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/2389/coven-threads/internal/client"
)

// Environment variables consulted for connection defaults
const (
	envServer = "THREADS_URL"
	envToken  = "THREADS_TOKEN"
	envAPIKey = "THREADS_API_KEY"
)

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: threadctl [flags] <command> [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  list                          List threads, most recent first")
	fmt.Fprintln(out, "  show <id>                     Print a thread and its messages")
	fmt.Fprintln(out, "  create [title] [message]      Start a new thread")
	fmt.Fprintln(out, "  rename <id> <title>           Change a thread's title")
	fmt.Fprintln(out, "  append <id> <role> <content>  Add a message to a thread")
	fmt.Fprintln(out, "  delete <id>                   Remove a thread")
	fmt.Fprintln(out, "  export <id> [markdown|html]   Write a thread as a document")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
}

// getToken returns the token from THREADS_TOKEN or ~/.config/coven/threads-token.
func getToken() string {
	if token := os.Getenv(envToken); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "coven", "threads-token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// errUsage signals that usage was printed and the command line was wrong.
var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("threadctl", flag.ContinueOnError)
	fs.SetOutput(out)
	server := fs.String("server", envOr(envServer, "http://localhost:8080"), "Thread server URL")
	token := fs.String("token", getToken(), "Bearer token (default from "+envToken+")")
	apiKey := fs.String("api-key", os.Getenv(envAPIKey), "API key (default from "+envAPIKey+")")
	fs.Usage = func() {
		usage(out)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	var opts []client.Option
	if *token != "" {
		opts = append(opts, client.WithToken(*token))
	}
	if *apiKey != "" {
		opts = append(opts, client.WithAPIKey(*apiKey))
	}
	c := client.New(*server, opts...)
	p := newPrinter(out)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list", "ls":
		return runList(ctx, c, p)
	case "show", "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: threadctl show <id>")
		}
		return runShow(ctx, c, p, rest[0])
	case "create", "new":
		if len(rest) > 2 {
			return fmt.Errorf("usage: threadctl create [title] [message]")
		}
		var title, message string
		if len(rest) > 0 {
			title = rest[0]
		}
		if len(rest) > 1 {
			message = rest[1]
		}
		return runCreate(ctx, c, p, title, message)
	case "rename":
		if len(rest) != 2 {
			return fmt.Errorf("usage: threadctl rename <id> <title>")
		}
		return runRename(ctx, c, p, rest[0], rest[1])
	case "append":
		if len(rest) < 3 {
			return fmt.Errorf("usage: threadctl append <id> <role> <content>")
		}
		return runAppend(ctx, c, p, rest[0], rest[1], strings.Join(rest[2:], " "))
	case "delete", "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: threadctl delete <id>")
		}
		return runDelete(ctx, c, p, rest[0])
	case "export":
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("usage: threadctl export <id> [markdown|html]")
		}
		format := "markdown"
		if len(rest) == 2 {
			format = rest[1]
		}
		return runExport(ctx, c, out, rest[0], format)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runList(ctx context.Context, c *client.Client, p *printer) error {
	summaries, err := c.List(ctx)
	if err != nil {
		return err
	}
	p.summaries(summaries)
	return nil
}

func runShow(ctx context.Context, c *client.Client, p *printer, id string) error {
	thread, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	p.thread(thread)
	return nil
}

func runCreate(ctx context.Context, c *client.Client, p *printer, title, message string) error {
	thread, err := c.Create(ctx, title, message, client.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return err
	}
	p.success("Created thread %s", thread.ID)
	p.thread(thread)
	return nil
}

func runRename(ctx context.Context, c *client.Client, p *printer, id, title string) error {
	thread, err := c.UpdateTitle(ctx, id, title)
	if err != nil {
		return err
	}
	p.success("Renamed %s to %q", thread.ID, thread.Title)
	return nil
}

func runAppend(ctx context.Context, c *client.Client, p *printer, id, role, content string) error {
	thread, err := c.AppendMessage(ctx, id, role, content, client.WithIdempotencyKey(uuid.NewString()))
	if err != nil {
		return err
	}
	p.success("Appended message %d to %s", len(thread.Messages), thread.ID)
	return nil
}

func runDelete(ctx context.Context, c *client.Client, p *printer, id string) error {
	if err := c.Delete(ctx, id); err != nil {
		return err
	}
	p.success("Deleted thread %s", id)
	return nil
}

func runExport(ctx context.Context, c *client.Client, out io.Writer, id, format string) error {
	doc, err := c.Export(ctx, id, format)
	if err != nil {
		return err
	}
	_, err = out.Write(doc)
	return err
}
