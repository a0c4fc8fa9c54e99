// ABOUTME: HTTP middleware enforcing the Idempotency-Key header on mutating requests
// ABOUTME: Replays inside the TTL are refused with 409; failed requests release their key

package dedupe

import (
	"log/slog"
	"net/http"
)

// HeaderKey is the request header carrying the client's idempotency key
const HeaderKey = "Idempotency-Key"

// maxKeyLength bounds the header value accepted as a key
const maxKeyLength = 255

// KeyScope derives the portion of the cache key identifying the caller and target.
// The default scopes keys by method and path.
type KeyScope func(r *http.Request) string

func defaultScope(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// Middleware refuses a request whose Idempotency-Key was already accepted for
// the same scope within the cache TTL. Requests without the header pass through.
// When the wrapped handler answers with a 4xx or 5xx status the key is released
// so the client may retry.
func Middleware(cache *Cache, scope KeyScope, logger *slog.Logger) func(http.Handler) http.Handler {
	if scope == nil {
		scope = defaultScope
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dedupe")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				writeJSONError(w, http.StatusBadRequest, "idempotency key too long")
				return
			}

			cacheKey := scope(r) + "|" + key
			if cache.CheckAndMark(cacheKey) {
				logger.Info("refused duplicate request", "method", r.Method, "path", r.URL.Path)
				writeJSONError(w, http.StatusConflict, "duplicate request")
				return
			}

			rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusBadRequest {
				cache.Forget(cacheKey)
			}
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}
