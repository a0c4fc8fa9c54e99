// ABOUTME: HTTP API exposing thread operations as JSON endpoints
// ABOUTME: Wires routes through metrics, auth, rate limiting and idempotency middleware

package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/coven-threads/internal/auth"
	"github.com/2389/coven-threads/internal/dedupe"
	"github.com/2389/coven-threads/internal/metrics"
	"github.com/2389/coven-threads/internal/threads"
)

// maxBodyBytes bounds request bodies accepted by any endpoint.
const maxBodyBytes = 1 << 20

// ThreadStore is the set of thread operations the API serves.
// *threads.Store implements it.
type ThreadStore interface {
	Create(ctx context.Context, title, initialMessage string) (threads.Thread, error)
	Get(ctx context.Context, id string) (threads.Thread, error)
	UpdateTitle(ctx context.Context, id string, title *string) (threads.Thread, error)
	AppendMessage(ctx context.Context, id, role, content string) (threads.Thread, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]threads.ThreadSummary, error)
}

// Config holds the API's collaborators. Only Store is required.
type Config struct {
	Store  ThreadStore
	Logger *slog.Logger

	// Auth rejects unauthenticated callers. Nil allows everyone.
	Auth *auth.Authenticator

	// Limiter throttles callers. Nil disables rate limiting.
	Limiter *RateLimiter

	// Idempotency refuses replayed POSTs. Nil disables the check.
	Idempotency *dedupe.Cache

	// Metrics counts requests per route. Nil disables instrumentation.
	Metrics *metrics.Metrics
}

// API serves the /threads endpoints.
type API struct {
	store       ThreadStore
	logger      *slog.Logger
	auth        *auth.Authenticator
	limiter     *RateLimiter
	idempotency *dedupe.Cache
	metrics     *metrics.Metrics
}

// New creates an API from cfg.
func New(cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		store:       cfg.Store,
		logger:      logger.With("component", "api"),
		auth:        cfg.Auth,
		limiter:     cfg.Limiter,
		idempotency: cfg.Idempotency,
		metrics:     cfg.Metrics,
	}
}

// Register adds the thread routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	a.route(mux, "POST /threads", a.handleCreateThread, true)
	a.route(mux, "GET /threads", a.handleListThreads, false)
	a.route(mux, "GET /threads/{id}", a.handleGetThread, false)
	a.route(mux, "PATCH /threads/{id}", a.handleUpdateThread, false)
	a.route(mux, "DELETE /threads/{id}", a.handleDeleteThread, false)
	a.route(mux, "POST /threads/{id}/messages", a.handleAppendMessage, true)
	a.route(mux, "GET /threads/{id}/export", a.handleExportThread, false)
}

// Handler returns a mux serving only the thread routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

// route wraps h in the middleware chain. Outermost first: metrics, auth,
// rate limit, idempotency.
func (a *API) route(mux *http.ServeMux, pattern string, h http.HandlerFunc, idempotent bool) {
	var handler http.Handler = h

	if idempotent && a.idempotency != nil {
		handler = dedupe.Middleware(a.idempotency, idempotencyScope, a.logger)(handler)
	}
	if a.limiter != nil {
		handler = a.limiter.Middleware(handler)
	}
	if a.auth != nil {
		handler = a.auth.Middleware(handler)
	}
	if a.metrics != nil {
		_, path, _ := strings.Cut(pattern, " ")
		handler = a.metrics.Instrument(path, handler)
	}

	mux.Handle(pattern, handler)
}

// idempotencyScope keys replay detection by caller and target so two callers
// may reuse the same key independently.
func idempotencyScope(r *http.Request) string {
	return callerKey(r) + " " + r.Method + " " + r.URL.Path
}

// callerKey identifies the caller for rate limiting and idempotency.
func callerKey(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.Method + ":" + id.Subject
	}
	return "ip:" + clientIP(r)
}
