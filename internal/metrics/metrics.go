// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forkchat"

// =============================================================================
// COLLECTOR
// =============================================================================

// Collector holds every forkchat metric.
type Collector struct {
	registry *prometheus.Registry

	branchesCreated prometheus.Counter
	submissions     *prometheus.CounterVec
	streamErrors    *prometheus.CounterVec
	streamChunks    *prometheus.CounterVec
	streamDuration  *prometheus.HistogramVec
	layoutDuration  prometheus.Histogram
	layoutNodes     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a collector backed by a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		// Labels: none
		branchesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_created_total",
			Help:      "Total branch nodes created",
		}),

		// Labels: kind (branch, message)
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total submissions accepted by the controller",
		}, []string{"kind"}),

		streamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "errors_total",
			Help:      "Total completion streams that ended in error",
		}, []string{"kind"}),

		streamChunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "chunks_total",
			Help:      "Total content chunks received from the backend",
		}, []string{"kind"}),

		streamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "duration_seconds",
			Help:      "Completion stream duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"kind"}),

		layoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "duration_seconds",
			Help:      "Graph layout computation time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),

		layoutNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "nodes",
			Help:      "Number of nodes in the last computed layout",
		}),

		// Labels: method, route (chi pattern), status
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// BRANCH RECORDER
// =============================================================================

func (c *Collector) SubmissionStarted(kind string) {
	c.submissions.WithLabelValues(kind).Inc()
}

func (c *Collector) BranchCreated() {
	c.branchesCreated.Inc()
}

func (c *Collector) ChunkReceived(kind string) {
	c.streamChunks.WithLabelValues(kind).Inc()
}

func (c *Collector) StreamFinished(kind string, took time.Duration) {
	c.streamDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (c *Collector) StreamFailed(kind string) {
	c.streamErrors.WithLabelValues(kind).Inc()
}

// ObserveLayout records one relayout. Its signature matches
// graph.WithLayoutObserver.
func (c *Collector) ObserveLayout(nodes int, took time.Duration) {
	c.layoutDuration.Observe(took.Seconds())
	c.layoutNodes.Set(float64(nodes))
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware counts requests by chi route pattern so path parameters do not
// explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
