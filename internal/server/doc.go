// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a conversation graph over HTTP so an external
// renderer can draw it and drive submissions.
//
// # Endpoints
//
//   - GET  /health                - Liveness
//   - GET  /metrics               - Prometheus metrics
//   - GET  /v1/graph              - Graph snapshot with layout positions
//   - GET  /v1/graph/nodes/{id}   - One node
//   - POST /v1/graph/active       - Navigate to a node
//   - POST /v1/graph/messages     - Regular submission (202)
//   - POST /v1/graph/branches     - Branch submission (202)
//   - GET  /v1/transition         - View-transition state
//
// # Error Mapping
//
// Unknown nodes are 404, frozen nodes and busy controllers are 409, and a
// branch from a node without a compute slot is 422. Error bodies are
// {"error": {"message", "type", "code"}}.
//
// # Middleware
//
//   - Request IDs, real client IP and panic recovery (chi)
//   - Request logging (zap)
//   - CORS for the web renderer (go-chi/cors)
//   - Per-client token bucket rate limiting (x/time/rate)
//   - Security headers
//
// # Usage
//
//	srv := server.New(ctrl,
//		server.WithConfig(cfg.Server),
//		server.WithLogger(logger),
//		server.WithMetrics(collector),
//		server.WithTransitions(machine),
//	)
//	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//		log.Fatal(err)
//	}
package server
