// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion talks to a streaming chat-completion backend.
//
// Two endpoints are supported:
//
//   - POST /v1/chat/completions: regular chat over a full message history
//   - POST /v1/chat/branch: continue from a parent's cached compute slot,
//     seeded with a text excerpt ("reuse_kv") or from scratch ("fresh")
//
// Responses are Server-Sent Events. Each data line is decoded into a tagged
// Record: ContentDelta, Done or ErrorRecord. Dispatch turns the record
// sequence into Callbacks and guarantees that exactly one of OnDone and
// OnError fires per call.
//
// # Usage
//
//	client := completion.NewClient(completion.DefaultConfig())
//	client.StreamBranch(ctx, completion.BranchRequest{
//	    ParentSlotID:  3,
//	    BranchMode:    completion.ModeReuseKV,
//	    TextExcerpt:   "Rayleigh scattering",
//	    ContextWindow: 20,
//	    Prompt:        "who was Rayleigh?",
//	}, completion.Callbacks{
//	    OnChunk: func(d completion.ContentDelta) { fmt.Print(d.Text) },
//	    OnDone:  func() { fmt.Println() },
//	    OnError: func(msg string) { log.Println(msg) },
//	})
package completion
