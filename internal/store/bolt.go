// ABOUTME: bbolt backend keeping records in bucket "threads" of <working_dir>/threads.bolt
// ABOUTME: Each operation runs in its own read or update transaction

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltFile   = "threads.bolt"
	boltBucket = "threads"
)

// BoltBackend implements Backend using an embedded bbolt database
type BoltBackend struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltBackend opens <workingDir>/threads.bolt and ensures the threads bucket exists.
func NewBoltBackend(workingDir string, logger *slog.Logger) (*BoltBackend, error) {
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}
	if workingDir == "" {
		return nil, errors.New("working directory is required")
	}

	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	path := filepath.Join(workingDir, boltFile)
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	logger.Info("bolt store initialized", "path", path)
	return &BoltBackend{db: db, logger: logger}, nil
}

func bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(boltBucket))
	if b == nil {
		return nil, fmt.Errorf("bucket %s not found", boltBucket)
	}
	return b, nil
}

func (b *BoltBackend) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx)
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// bolt values are only valid for the life of the transaction
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BoltBackend) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

func (b *BoltBackend) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidID(id) {
		return false, nil
	}

	var existed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx)
		if err != nil {
			return err
		}
		key := []byte(id)
		if bkt.Get(key) == nil {
			return nil
		}
		existed = true
		return bkt.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("deleting record: %w", err)
	}
	return existed, nil
}

func (b *BoltBackend) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt, err := bucket(tx)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return ids, nil
}

func (b *BoltBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bolt.Tx) error {
		_, err := bucket(tx)
		return err
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
