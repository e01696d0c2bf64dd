// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"sync"

	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is a streaming completion backend. Both calls block until the
// stream ends and invoke exactly one of cb.OnDone or cb.OnError.
type Service interface {
	StreamChat(ctx context.Context, req ChatRequest, cb Callbacks)
	StreamBranch(ctx context.Context, req BranchRequest, cb Callbacks)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Mode selects how a branch request seeds its context.
type Mode string

const (
	// ModeReuseKV continues from the parent slot's cached attention state.
	ModeReuseKV Mode = "reuse_kv"
	// ModeFresh recomputes the excerpt context from scratch.
	ModeFresh Mode = "fresh"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeReuseKV || m == ModeFresh
}

// DefaultContextWindow is the context window sent with branch requests.
const DefaultContextWindow = 20

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Model    string          `json:"model,omitempty"`
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
}

// BranchRequest is the body of POST /v1/chat/branch.
type BranchRequest struct {
	Model         string `json:"model,omitempty"`
	ParentSlotID  int    `json:"parent_slot_id"`
	BranchMode    Mode   `json:"branch_mode"`
	TextExcerpt   string `json:"text_excerpt"`
	ContextWindow int    `json:"context_window"`
	Prompt        string `json:"prompt"`
	Stream        bool   `json:"stream"`
}

// =============================================================================
// RECORDS
// =============================================================================

// Record is one decoded stream event: ContentDelta, Done or ErrorRecord.
type Record interface {
	isRecord()
}

// ContentDelta carries a text increment and, when the backend reports it,
// the compute slot holding the stream's context.
type ContentDelta struct {
	Text   string
	SlotID *int
}

// Done marks normal end of stream.
type Done struct{}

// ErrorRecord is a backend-reported failure.
type ErrorRecord struct {
	Message string
}

func (ContentDelta) isRecord() {}
func (Done) isRecord()         {}
func (ErrorRecord) isRecord()  {}

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receive the outcome of a stream. Nil fields are ignored.
type Callbacks struct {
	OnChunk func(ContentDelta)
	OnDone  func()
	OnError func(message string)
}

// terminalOnce wraps cb so at most one terminal callback ever runs, even if
// both paths are reached.
func terminalOnce(cb Callbacks) Callbacks {
	var once sync.Once
	return Callbacks{
		OnChunk: cb.OnChunk,
		OnDone: func() {
			once.Do(func() {
				if cb.OnDone != nil {
					cb.OnDone()
				}
			})
		},
		OnError: func(message string) {
			once.Do(func() {
				if cb.OnError != nil {
					cb.OnError(message)
				}
			})
		},
	}
}

func (cb Callbacks) chunk(d ContentDelta) {
	if cb.OnChunk != nil {
		cb.OnChunk(d)
	}
}
