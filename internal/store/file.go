// ABOUTME: File backend storing each record as <working_dir>/threads/<id>.json
// ABOUTME: Writes go through a temp file and rename so readers never see partial documents

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileNamespace = "threads"
	fileExt       = ".json"
)

// FileBackend implements Backend with one file per record
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates a file backend rooted at workingDir.
// The threads namespace directory is created if needed.
func NewFileBackend(workingDir string, logger *slog.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = slog.Default().With("component", "store")
	}
	if workingDir == "" {
		return nil, errors.New("working directory is required")
	}

	dir := filepath.Join(workingDir, fileNamespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating thread directory: %w", err)
	}

	logger.Info("file store initialized", "path", dir)
	return &FileBackend{dir: dir, logger: logger}, nil
}

// Dir returns the namespace directory holding the record files.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+fileExt)
}

func (b *FileBackend) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(b.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return data, nil
}

func (b *FileBackend) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(id)); err != nil {
		cleanup()
		return fmt.Errorf("replacing record: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ValidID(id) {
		return false, nil
	}

	err := os.Remove(b.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing record: %w", err)
	}
	return true, nil
}

// IDs lists the stems of *.json files. Temp files and foreign names are ignored.
func (b *FileBackend) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading thread directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if !ValidID(id) {
			b.logger.Debug("ignoring foreign file in thread directory", "name", name)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *FileBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("checking thread directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("thread path %s is not a directory", b.dir)
	}
	return nil
}

// Close is a no-op; the file backend holds no open handles.
func (b *FileBackend) Close() error {
	return nil
}
