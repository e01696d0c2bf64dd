// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/completion/completiontest"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/metrics"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/transition"
)

// =============================================================================
// HELPERS
// =============================================================================

func intPtr(v int) *int { return &v }

type fixture struct {
	srv     *Server
	ctrl    *branch.Controller
	fake    *completiontest.Fake
	machine *transition.Machine
}

func newFixture(t *testing.T, mutate func(*config.ServerConfig)) *fixture {
	t.Helper()

	cfg := config.Default().Server
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}

	fake := completiontest.New(completiontest.Text(intPtr(0), "Hello", " there"))
	machine := transition.NewMachine(transition.DefaultDurations())
	ctrl := branch.New(graph.New(), fake, branch.WithTransitions(machine))

	srv := New(ctrl,
		WithConfig(cfg),
		WithMetrics(metrics.New()),
		WithTransitions(machine),
	)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &fixture{srv: srv, ctrl: ctrl, fake: fake, machine: machine}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:5000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.ctrl.IsStreaming() }, 2*time.Second, 5*time.Millisecond)
}

// seedSlot gives the root a compute slot by running one regular exchange.
func (f *fixture) seedSlot(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/graph/messages", MessageRequest{Content: "Explain KV caches"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.settle(t)
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
			Code int    `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Equal(t, rec.Code, body.Error.Code)
	return body.Error.Type
}

// =============================================================================
// READ ENDPOINT TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Nodes)
	assert.False(t, resp.Streaming)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestGraphSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap graph.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, graph.RootID, snap.RootNodeID)
	assert.Equal(t, graph.RootID, snap.ActiveNodeID)
	require.Len(t, snap.Nodes, 1)
}

func TestNode(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/graph/nodes/root", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var n graph.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, graph.RootID, n.ID)

	rec = f.do(t, http.MethodGet, "/v1/graph/nodes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_node", errorType(t, rec))
}

func TestTransition_IdleByDefault(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/transition", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st transition.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, transition.StageIdle, st.Stage)
	assert.Equal(t, transition.ViewFocused, st.View)
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestMessage_Accepted(t *testing.T) {
	f := newFixture(t, nil)
	f.seedSlot(t)

	root, ok := f.ctrl.Graph().Node(graph.RootID)
	require.True(t, ok)
	require.Len(t, root.Messages, 2)
	assert.Equal(t, model.RoleUser, root.Messages[0].Role)
	assert.Equal(t, "Hello there", root.Messages[1].Content)
	require.NotNil(t, root.SlotID)
	assert.Equal(t, 0, *root.SlotID)
}

func TestBranch_WithoutSlotIsUnprocessable(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/graph/branches", BranchRequest{Excerpt: "KV", Question: "why?"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "missing_slot", errorType(t, rec))
	assert.Equal(t, 1, f.ctrl.Graph().Len())
	assert.Equal(t, 0, f.fake.Calls())
}

func TestBranch_Accepted(t *testing.T) {
	f := newFixture(t, nil)
	f.seedSlot(t)

	rec := f.do(t, http.MethodPost, "/v1/graph/branches", BranchRequest{Excerpt: "KV caches", Question: "How big?"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "branch", resp.Kind)
	require.NotEmpty(t, resp.NodeID)
	f.settle(t)

	child, ok := f.ctrl.Graph().Node(resp.NodeID)
	require.True(t, ok)
	assert.Equal(t, graph.RootID, child.ParentID)
	assert.Equal(t, "KV caches", child.ExcerptOrigin)
	assert.Equal(t, resp.NodeID, f.ctrl.Graph().ActiveID())

	st := f.machine.State()
	assert.Equal(t, resp.NodeID, st.NewNodeID)
	assert.Equal(t, transition.StageSwitchingToGraph, st.Stage)

	reqs := f.fake.BranchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 0, reqs[0].ParentSlotID)
	assert.Equal(t, "How big?", reqs[0].Prompt)
}

func TestMessage_FrozenParentConflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.seedSlot(t)

	rec := f.do(t, http.MethodPost, "/v1/graph/branches", BranchRequest{Excerpt: "KV", Question: "More?"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.settle(t)

	rec = f.do(t, http.MethodPost, "/v1/graph/active", NavigateRequest{NodeID: graph.RootID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/graph/messages", MessageRequest{Content: "follow-up"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "frozen_node", errorType(t, rec))
}

func TestMessage_BusyConflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.Gate = make(chan struct{})

	rec := f.do(t, http.MethodPost, "/v1/graph/messages", MessageRequest{Content: "first"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/graph/messages", MessageRequest{Content: "second"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "busy", errorType(t, rec))

	close(f.fake.Gate)
	f.settle(t)
	assert.Equal(t, 1, f.fake.Calls())
}

func TestNavigate(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/graph/active", NavigateRequest{NodeID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/graph/active", NavigateRequest{NodeID: graph.RootID})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
	}{
		{"malformed json", "/v1/graph/messages", "{"},
		{"empty content", "/v1/graph/messages", MessageRequest{}},
		{"missing question", "/v1/graph/branches", BranchRequest{Excerpt: "x"}},
		{"missing node id", "/v1/graph/active", NavigateRequest{}},
	}

	f := newFixture(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
	assert.Equal(t, 0, f.fake.Calls())
}

func TestRequestValidation_MessageNamesField(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/graph/branches", BranchRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is required")
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRateLimit_Rejects(t *testing.T) {
	f := newFixture(t, func(c *config.ServerConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/graph", nil).Code)
	rec := f.do(t, http.MethodGet, "/v1/graph", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Health is outside the limited group.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("192.0.2.1")
	rl.Allow("192.0.2.2")
	assert.Equal(t, 2, rl.Clients())

	now = now.Add(10 * time.Minute)
	rl.Allow("192.0.2.3")
	assert.Equal(t, 1, rl.Clients())
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/graph/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/v1/graph/nodes/ghost", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forkchat_http_requests_total{method="GET",route="/v1/graph/nodes/{id}",status="404"} 1`)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.5:1000", "", "", "203.0.113.5"},
		{"untrusted peer ignores headers", "203.0.113.5:1000", "198.51.100.1", "", "203.0.113.5"},
		{"trusted proxy xff", "127.0.0.1:1000", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"trusted proxy real ip", "10.0.0.2:1000", "", "198.51.100.2", "198.51.100.2"},
		{"trusted proxy junk header", "10.0.0.2:1000", "not-an-ip", "", "10.0.0.2"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{graph.ErrUnknownNode, http.StatusNotFound},
		{graph.ErrFrozenNode, http.StatusConflict},
		{branch.ErrBusy, http.StatusConflict},
		{graph.ErrMissingSlot, http.StatusUnprocessableEntity},
		{branch.ErrEmptyInput, http.StatusBadRequest},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
