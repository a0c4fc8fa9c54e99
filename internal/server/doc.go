// Package server orchestrates the coven-threads service components.
//
// # Overview
//
// The server package owns the storage backend and everything layered on it:
// the thread store, the HTTP API, the idempotency cache, metrics and the
// optional gRPC health endpoint.
//
// # HTTP Endpoints
//
//   - GET /health - Liveness check, always "OK"
//   - GET /health/ready - Readiness check, pings the storage backend
//   - GET /metrics - Prometheus metrics when metrics.enabled is set
//   - /threads... - Thread API, see package api
//
// # gRPC Health
//
// When server.grpc_addr is set a gRPC server exposes grpc.health.v1.Health
// and server reflection. Status for "" and "coven.threads" follows storage
// reachability, probed every ten seconds.
//
// # Lifecycle
//
//	srv, err := server.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	err = srv.Run(ctx) // blocks; shuts down when ctx is canceled
//
// Run performs the graceful shutdown itself using server.shutdown_timeout.
// Shutdown may be called directly when Run was never started.
package server
