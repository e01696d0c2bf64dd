// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graph implements the branching conversation graph.
//
// A Graph is an arena: one owned table of nodes keyed by id. Every edit goes
// through a Graph method, so the tree invariants are enforced in one place:
//
//   - exactly one root, every node reachable from it, no cycles
//   - c is in p.Children exactly when nodes[c].ParentID == p.ID
//   - a frozen node never receives another appended message
//   - the active id always names an existing node
//
// Structural changes (creating the root, creating a branch) recompute the
// layout of the whole tree before returning. Message edits do not.
//
// # Usage
//
//	g := graph.New()
//	root := g.InitializeRoot()
//	_ = g.AppendMessage(root, model.NewUserMessage("hi"))
//	slot := 3
//	_ = g.UpdateStreamingAnswer(root, "Hello", &slot)
//	child, err := g.CreateBranch(root, "Hello", "why hello?")
//
// Methods are safe for concurrent use. Returned nodes are copies.
package graph
