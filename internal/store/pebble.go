// ABOUTME: Pebble backend keeping records under "thread:<id>" keys in <working_dir>/threads.pebble
// ABOUTME: Writes are synced; enumeration scans the key prefix

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

const (
	pebbleDir    = "threads.pebble"
	pebblePrefix = "thread:"
)

// PebbleBackend implements Backend using a Pebble LSM store
type PebbleBackend struct {
	db     *pebble.DB
	logger *slog.Logger

	// serializes the existence check and delete in Delete
	deleteMu sync.Mutex
}

// NewPebbleBackend opens <workingDir>/threads.pebble, creating it if needed.
func NewPebbleBackend(workingDir string, logger *slog.Logger) (*PebbleBackend, error) {
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}
	if workingDir == "" {
		return nil, errors.New("working directory is required")
	}

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	path := filepath.Join(workingDir, pebbleDir)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	logger.Info("pebble store initialized", "path", path)
	return &PebbleBackend{db: db, logger: logger}, nil
}

func pebbleKey(id string) []byte {
	return []byte(pebblePrefix + id)
}

func (b *PebbleBackend) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	v, closer, err := b.db.Get(pebbleKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *PebbleBackend) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	if err := b.db.Set(pebbleKey(id), data, pebble.Sync); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (b *PebbleBackend) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidID(id) {
		return false, nil
	}

	b.deleteMu.Lock()
	defer b.deleteMu.Unlock()

	key := pebbleKey(id)
	_, closer, err := b.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading record: %w", err)
	}
	closer.Close()

	if err := b.db.Delete(key, pebble.Sync); err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	return true, nil
}

func (b *PebbleBackend) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(pebblePrefix)
	it, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("opening iterator: %w", err)
	}
	defer it.Close()

	ids := []string{}
	for ok := it.First(); ok; ok = it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k, prefix) {
			continue
		}
		ids = append(ids, string(k[len(prefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return ids, nil
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (b *PebbleBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, closer, err := b.db.Get([]byte(pebblePrefix))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return closer.Close()
}

func (b *PebbleBackend) Close() error {
	return b.db.Close()
}
