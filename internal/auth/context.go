// ABOUTME: Authenticated caller identity carried through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Authentication methods recorded on an Identity
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
)

// Identity describes who made a request and how they proved it.
type Identity struct {
	Subject string // sub claim for JWT callers, "api-key" for key holders
	Method  string // MethodJWT or MethodAPIKey
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with id attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok {
		return nil
	}
	return id
}
