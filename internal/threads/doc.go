// Package threads implements the conversation-thread store.
//
// # Overview
//
// A Thread is a titled, append-only log of role-tagged messages. Each thread is
// persisted as one self-contained record in a store.Backend, addressed by its
// generated identifier. Store exposes create, get, title update, message append,
// delete, and a summary listing sorted by most recent activity.
//
// # Records
//
// Records are indented JSON documents holding exactly the Thread fields:
//
//	{
//	  "id": "0d6c8a0e-3c4f-4c1e-9b8e-2f1d0f7c9a11",
//	  "title": "New Conversation",
//	  "created_at": "2026-01-02T03:04:05.000006Z",
//	  "updated_at": "2026-01-02T03:04:05.000006Z",
//	  "messages": [
//	    {"role": "user", "content": "hello", "timestamp": "2026-01-02T03:04:05.000006Z"}
//	  ]
//	}
//
// # Errors
//
//   - ErrNotFound: no record exists for the identifier
//   - *CorruptRecordError: a record exists but does not decode into a valid
//     Thread. It matches ErrNotFound under errors.Is so callers see plain
//     "not found"; errors.As recovers the cause.
//
// Any other error is a storage fault from the backend.
//
// # Concurrency
//
// Read-modify-write operations on one identifier are serialized by a
// per-identifier lock owned by the Store. Operations on different identifiers
// run in parallel.
package threads
