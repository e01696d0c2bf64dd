// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transition sequences the view change that follows a branch.
//
// After a branch is created the view switches to the graph, draws the new
// edge, flows the excerpt context along it, expands the new node and
// returns to the focused view:
//
//	idle -> switching_to_graph -> drawing_branch -> flowing_context
//	     -> expanding_node -> returning_to_focus -> idle
//
// Machine is a pure state machine with a single Tick entry point and no
// timers of its own. Delay reports how long the current stage lasts; an
// external scheduler calls Tick when that time has passed. Driver does this
// with time.AfterFunc, and the terminal UI does it with tea.Tick.
package transition
