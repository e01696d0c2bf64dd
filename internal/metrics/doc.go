// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters and histograms for branch
// submissions, completion streams, graph layout and the HTTP API.
//
// Each Collector owns its registry so tests and multiple servers in one
// process never collide on registration.
//
// # Usage
//
//	m := metrics.New()
//	g := graph.New(graph.WithLayoutObserver(m.ObserveLayout))
//	ctrl := branch.New(g, client, branch.WithMetrics(m))
//	http.Handle("/metrics", m.Handler())
package metrics
