// ABOUTME: Error values returned by the thread store
// ABOUTME: Corrupt records stay distinguishable while reading as not found

package threads

import (
	"errors"
	"fmt"

	"github.com/2389/coven-threads/internal/store"
)

// ErrNotFound is returned when no record exists for a thread ID.
// It is the same value as store.ErrNotFound so backend misses pass through unchanged.
var ErrNotFound = store.ErrNotFound

// CorruptRecordError reports a record that exists but cannot be decoded into a valid Thread.
type CorruptRecordError struct {
	ID  string
	Err error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt thread record %s: %v", e.ID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// Is reports corrupt records as not found, which is what callers of Get observe.
func (e *CorruptRecordError) Is(target error) bool {
	return target == ErrNotFound
}

// IsCorrupt reports whether err was caused by an undecodable record.
func IsCorrupt(err error) bool {
	var ce *CorruptRecordError
	return errors.As(err, &ce)
}
