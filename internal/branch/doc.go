// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package branch drives the branch lifecycle: it validates a submission,
// mutates the conversation graph, starts the view transition, calls the
// completion backend and streams the answer into the right node.
//
// # Submissions
//
// A branch submission forks a child from the active node, seeded with an
// excerpt, and asks the backend to continue from the parent's compute
// slot. A regular submission appends to the active node and sends its whole
// history. Only one submission streams at a time; a second one is rejected
// with ErrBusy until the first finishes.
//
// Stream failures never escape: the target node gains an assistant message
// "Error: <reason>" and stays navigable. Structural failures (unknown node,
// frozen node, missing slot) are returned before any network call.
//
// # Usage
//
//	ctl := branch.New(g, client, branch.WithTransitions(driver))
//	if err := ctl.BeginBranch("Rayleigh scattering"); err != nil { ... }
//	sub, err := ctl.Submit(ctx, "who was Rayleigh?")
//	<-sub.Done()
package branch
