// ABOUTME: Backend interface for keyed thread documents and the driver factory
// ABOUTME: Shared errors and identifier validation for every backend

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// ErrNotFound is returned when no record exists for a key
var ErrNotFound = errors.New("not found")

// ErrInvalidID is returned when writing under a key that is not a valid record identifier
var ErrInvalidID = errors.New("invalid record id")

// ErrUnknownDriver is returned by Open for an unsupported driver name
var ErrUnknownDriver = errors.New("unknown storage driver")

// Backend stores one opaque document per identifier.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the document stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put replaces the document stored under id.
	Put(ctx context.Context, id string, data []byte) error

	// Delete removes the document. Returns false if nothing was stored.
	Delete(ctx context.Context, id string) (bool, error)

	// IDs enumerates every stored identifier in no particular order.
	IDs(ctx context.Context) ([]string, error)

	// Ping checks that the backend can serve requests.
	Ping(ctx context.Context) error

	Close() error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// Drivers lists the supported driver names.
var Drivers = []string{DriverFile, DriverSQLite, DriverBolt, DriverPebble, DriverMemory}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id may be used as a record key.
// Valid ids cannot name a path outside the storage namespace.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Open creates the backend named by driver rooted at workingDir.
// An empty driver selects the file backend.
func Open(driver, workingDir string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "driver", driver)

	switch driver {
	case "", DriverFile:
		return NewFileBackend(workingDir, logger)
	case DriverSQLite:
		return NewSQLiteBackend(workingDir, logger)
	case DriverBolt:
		return NewBoltBackend(workingDir, logger)
	case DriverPebble:
		return NewPebbleBackend(workingDir, logger)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
