// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package layout positions the nodes of a rooted tree on a 2-D canvas.
//
// Compute runs the Buchheim/Walker refinement of the Reingold-Tilford tidy
// tree algorithm in linear time. Nodes at the same depth share a depth-axis
// coordinate (X); siblings are spread along the order axis (Y) so that no two
// sibling subtrees overlap at any depth, and each parent sits at the midpoint
// of its first and last child.
//
// The engine is a pure function: every call builds its own working tree with
// explicit parent pointers and discards it on return, so concurrent calls
// never share state.
//
// # Usage
//
//	tree := layout.Tree{RootID: "root", Edges: map[string][]string{
//	    "root": {"a", "b", "c"},
//	}}
//	pos := layout.Compute(tree, layout.DefaultConfig())
//	// pos["a"].Y == -150, pos["b"].Y == 0, pos["c"].Y == 150
package layout
