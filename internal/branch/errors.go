// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package branch

import "errors"

// Controller errors. Graph errors (graph.ErrUnknownNode, graph.ErrFrozenNode,
// graph.ErrMissingSlot) are returned unwrapped.
var (
	ErrBusy         = errors.New("a response is still streaming")
	ErrEmptyInput   = errors.New("input is empty")
	ErrNoActiveNode = errors.New("no active node")
)
