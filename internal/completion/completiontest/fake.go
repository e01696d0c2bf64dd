// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completiontest provides a scripted completion.Service for tests.
package completiontest

import (
	"context"
	"sync"

	"github.com/jeranaias/forkchat/internal/completion"
)

// Script describes what a Fake plays back on each call.
type Script struct {
	Chunks []completion.ContentDelta
	// Err, when set, ends the stream with OnError instead of OnDone.
	Err string
}

// Text builds a script that streams each part as a chunk, reporting slot
// on the first one when non-nil.
func Text(slot *int, parts ...string) Script {
	s := Script{}
	for i, p := range parts {
		d := completion.ContentDelta{Text: p}
		if i == 0 {
			d.SlotID = slot
		}
		s.Chunks = append(s.Chunks, d)
	}
	return s
}

// Fake records requests and replays a Script.
type Fake struct {
	mu       sync.Mutex
	script   Script
	chats    []completion.ChatRequest
	branches []completion.BranchRequest

	// Gate, when non-nil, blocks every call until it is closed or
	// receives a value.
	Gate chan struct{}
}

var _ completion.Service = (*Fake)(nil)

// New creates a Fake playing s.
func New(s Script) *Fake {
	return &Fake{script: s}
}

// SetScript replaces the script for later calls.
func (f *Fake) SetScript(s Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = s
}

// StreamChat implements completion.Service.
func (f *Fake) StreamChat(ctx context.Context, req completion.ChatRequest, cb completion.Callbacks) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	s := f.script
	f.mu.Unlock()
	f.play(ctx, s, cb)
}

// StreamBranch implements completion.Service.
func (f *Fake) StreamBranch(ctx context.Context, req completion.BranchRequest, cb completion.Callbacks) {
	f.mu.Lock()
	f.branches = append(f.branches, req)
	s := f.script
	f.mu.Unlock()
	f.play(ctx, s, cb)
}

func (f *Fake) play(ctx context.Context, s Script, cb completion.Callbacks) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			cb.OnError(ctx.Err().Error())
			return
		}
	}
	for _, c := range s.Chunks {
		cb.OnChunk(c)
	}
	if s.Err != "" {
		cb.OnError(s.Err)
		return
	}
	cb.OnDone()
}

// ChatRequests returns the recorded chat requests.
func (f *Fake) ChatRequests() []completion.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completion.ChatRequest(nil), f.chats...)
}

// BranchRequests returns the recorded branch requests.
func (f *Fake) BranchRequests() []completion.BranchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completion.BranchRequest(nil), f.branches...)
}

// Calls returns the total number of requests.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats) + len(f.branches)
}
