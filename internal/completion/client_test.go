// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/model"
)

// sseHandler writes each payload as a data line and flushes.
func sseHandler(t *testing.T, capture *map[string]any, payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body := map[string]any{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			body["_path"] = r.URL.Path
			body["_accept"] = r.Header.Get("Accept")
			*capture = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())

	c = NewClient(&ClientConfig{BaseURL: "http://example.test/"})
	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Equal(t, 10*time.Second, c.config.Timeout)
}

func TestClient_StreamChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(sseHandler(t, &body,
		`{"choices":[{"delta":{"content":"Hel"}}],"slot_id":2}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		DoneSentinel,
	))
	defer srv.Close()

	c := NewClient(&ClientConfig{BaseURL: srv.URL, Model: "llama-3.2-3b"})

	var text strings.Builder
	var slot *int
	var done bool
	var errMsg string
	c.StreamChat(context.Background(), ChatRequest{
		Messages: []model.Message{model.NewUserMessage("hi")},
	}, Callbacks{
		OnChunk: func(d ContentDelta) {
			text.WriteString(d.Text)
			if d.SlotID != nil {
				slot = d.SlotID
			}
		},
		OnDone:  func() { done = true },
		OnError: func(m string) { errMsg = m },
	})

	assert.True(t, done)
	assert.Empty(t, errMsg)
	assert.Equal(t, "Hello", text.String())
	require.NotNil(t, slot)
	assert.Equal(t, 2, *slot)

	assert.Equal(t, "/v1/chat/completions", body["_path"])
	assert.Equal(t, "text/event-stream", body["_accept"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "llama-3.2-3b", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[0])
}

func TestClient_StreamBranch(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(sseHandler(t, &body,
		`{"choices":[{"delta":{"content":"Lord Rayleigh"}}],"slot_id":5}`,
		DoneSentinel,
	))
	defer srv.Close()

	c := NewClient(&ClientConfig{BaseURL: srv.URL})

	var done bool
	c.StreamBranch(context.Background(), BranchRequest{
		ParentSlotID: 3,
		TextExcerpt:  "Rayleigh scattering",
		Prompt:       "who was Rayleigh?",
	}, Callbacks{OnDone: func() { done = true }})

	assert.True(t, done)
	assert.Equal(t, "/v1/chat/branch", body["_path"])
	assert.Equal(t, float64(3), body["parent_slot_id"])
	assert.Equal(t, "reuse_kv", body["branch_mode"])
	assert.Equal(t, "Rayleigh scattering", body["text_excerpt"])
	assert.Equal(t, float64(DefaultContextWindow), body["context_window"])
	assert.Equal(t, "who was Rayleigh?", body["prompt"])
	assert.Equal(t, true, body["stream"])
	assert.NotContains(t, body, "model")
}

func TestClient_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, nil,
		`{"choices":[{"delta":{"content":"par"}}]}`,
		`{"error":{"message":"slot 3 evicted"}}`,
	))
	defer srv.Close()

	var chunks int
	var done bool
	var errs []string
	NewClient(&ClientConfig{BaseURL: srv.URL}).StreamBranch(context.Background(), BranchRequest{ParentSlotID: 3}, Callbacks{
		OnChunk: func(ContentDelta) { chunks++ },
		OnDone:  func() { done = true },
		OnError: func(m string) { errs = append(errs, m) },
	})

	assert.Equal(t, 1, chunks)
	assert.False(t, done)
	assert.Equal(t, []string{"slot 3 evicted"}, errs)
}

func TestClient_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"envelope", `{"error":{"message":"no free slots"}}`, "HTTP 503: no free slots"},
		{"plain", `overloaded`, "HTTP error! status: 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			var errMsg string
			NewClient(&ClientConfig{BaseURL: srv.URL}).StreamChat(context.Background(), ChatRequest{}, Callbacks{
				OnError: func(m string) { errMsg = m },
			})
			assert.Equal(t, tt.want, errMsg)
		})
	}
}

func TestClient_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var errMsg string
	NewClient(&ClientConfig{BaseURL: url}).StreamChat(context.Background(), ChatRequest{}, Callbacks{
		OnError: func(m string) { errMsg = m },
	})
	assert.True(t, strings.HasPrefix(errMsg, "completion backend is not reachable"), errMsg)
}

func TestClient_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	var errs []string
	var done bool
	NewClient(&ClientConfig{BaseURL: srv.URL}).StreamChat(ctx, ChatRequest{}, Callbacks{
		OnChunk: func(ContentDelta) { cancel() },
		OnDone:  func() { done = true },
		OnError: func(m string) { errs = append(errs, m) },
	})

	assert.False(t, done)
	assert.Equal(t, []string{context.Canceled.Error()}, errs)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			fmt.Fprint(w, `{"status":"ok"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(&ClientConfig{BaseURL: srv.URL}).Health(context.Background()))
	assert.Error(t, NewClient(&ClientConfig{BaseURL: srv.URL + "/nope"}).Health(context.Background()))
}

func TestClientError(t *testing.T) {
	err := transportError(context.DeadlineExceeded)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "request timed out: context deadline exceeded", err.Error())
}
