// Package store provides keyed document storage for thread records.
//
// # Architecture
//
// Every backend implements the Backend interface, which stores one opaque
// byte document per identifier. The threads package owns the document format;
// backends never inspect the bytes they hold.
//
//   - FileBackend: one JSON file per record under <working_dir>/threads
//   - SQLiteBackend: table thread_records in <working_dir>/threads.db
//   - BoltBackend: bucket "threads" in <working_dir>/threads.bolt
//   - PebbleBackend: keys "thread:<id>" in <working_dir>/threads.pebble
//   - MemoryBackend: process-local map, used by tests and the memory driver
//
// Open selects a backend by driver name:
//
//	backend, err := store.Open("sqlite", "/var/lib/coven-threads", logger)
//
// # Identifiers
//
// Record ids must match [A-Za-z0-9_-]{1,128}. Reads of an invalid id return
// ErrNotFound and writes return ErrInvalidID, so no id can address anything
// outside the backend's namespace.
//
// # Error Handling
//
//   - ErrNotFound: no record stored under the id
//   - ErrInvalidID: write attempted under a malformed id
//   - ErrUnknownDriver: Open was given an unsupported driver name
//
// All methods accept context.Context. Embedded engines do not support
// cancellation mid-call, so the context is checked before work starts.
package store
