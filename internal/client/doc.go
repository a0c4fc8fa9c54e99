// Package client is a Go client for the coven-threads HTTP API.
//
// # Usage
//
//	c := client.New("http://localhost:8080", client.WithToken(token))
//	t, err := c.Create(ctx, "Release planning", "what ships this week?")
//	t, err = c.AppendMessage(ctx, t.ID, "assistant", "the exporter",
//	    client.WithIdempotencyKey(uuid.NewString()))
//
// # Errors
//
// Non-2xx responses come back as *APIError carrying the status code and the
// server's error message. A 404 also matches ErrNotFound via errors.Is.
//
// The threadctl command is built on this package.
package client
