// ABOUTME: HTTP middleware accepting a bearer JWT or a static API key
// ABOUTME: Adds the caller's Identity to the request context

package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// APIKeyHeader carries the static API key
const APIKeyHeader = "X-API-Key"

const apiKeySubject = "api-key"

// Authenticator checks request credentials. Either mechanism may be left unset;
// with neither configured every request is allowed through anonymously.
type Authenticator struct {
	verifier TokenVerifier
	apiKey   string
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. verifier may be nil and apiKey empty.
func NewAuthenticator(verifier TokenVerifier, apiKey string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		apiKey:   apiKey,
		logger:   logger.With("component", "auth"),
	}
}

// Enabled reports whether any credential check is configured
func (a *Authenticator) Enabled() bool {
	return a.verifier != nil || a.apiKey != ""
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticate resolves the caller of r. The error message is empty on success.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, string) {
	if !a.Enabled() {
		return nil, ""
	}

	if key := r.Header.Get(APIKeyHeader); key != "" {
		if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
			return &Identity{Subject: apiKeySubject, Method: MethodAPIKey}, ""
		}
		return nil, "invalid api key"
	}

	if a.verifier == nil {
		return nil, "missing api key"
	}

	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return nil, errMsg
	}

	subject, err := a.verifier.Verify(token)
	if err != nil {
		a.logger.Debug("rejected bearer token", "error", err)
		return nil, "invalid token"
	}
	return &Identity{Subject: subject, Method: MethodJWT}, ""
}

// Middleware rejects unauthenticated requests with 401 and a JSON error body.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		id, errMsg := a.Authenticate(r)
		if errMsg != "" {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"` + errMsg + `"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
