// Package dedupe tracks idempotency keys so a client retrying a POST cannot
// create the same thread or append the same message twice within a
// configurable window.
package dedupe
