// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes graph errors.
type ErrorKind int

const (
	KindUnknownNode ErrorKind = iota + 1
	KindFrozenNode
	KindMissingSlot
	KindInvalid
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnknownNode:
		return "unknown_node"
	case KindFrozenNode:
		return "frozen_node"
	case KindMissingSlot:
		return "missing_slot"
	case KindInvalid:
		return "invalid_graph"
	default:
		return "unknown"
	}
}

// Error is returned by graph operations. Compare with errors.Is against the
// sentinel values below.
type Error struct {
	Kind   ErrorKind
	NodeID string
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindUnknownNode:
		msg = "unknown node"
	case KindFrozenNode:
		msg = "node is frozen"
	case KindMissingSlot:
		msg = "cannot branch yet: node has no compute slot"
	case KindInvalid:
		msg = "invalid graph"
	default:
		msg = "graph error"
	}
	if e.NodeID != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.NodeID)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

// Is matches on Kind, so errors.Is(err, ErrFrozenNode) holds for every
// frozen-node error regardless of node id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors for errors.Is.
var (
	ErrUnknownNode = &Error{Kind: KindUnknownNode}
	ErrFrozenNode  = &Error{Kind: KindFrozenNode}
	ErrMissingSlot = &Error{Kind: KindMissingSlot}
	ErrInvalid     = &Error{Kind: KindInvalid}
)

func unknownNode(id string) error { return &Error{Kind: KindUnknownNode, NodeID: id} }
func frozenNode(id string) error  { return &Error{Kind: KindFrozenNode, NodeID: id} }
func missingSlot(id string) error { return &Error{Kind: KindMissingSlot, NodeID: id} }

func invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Detail: fmt.Sprintf(format, args...)}
}

// IsUnknownNode reports whether err is an unknown-node error.
func IsUnknownNode(err error) bool { return errors.Is(err, ErrUnknownNode) }

// IsFrozenNode reports whether err is a frozen-node error.
func IsFrozenNode(err error) bool { return errors.Is(err, ErrFrozenNode) }

// IsMissingSlot reports whether err is a missing-slot error.
func IsMissingSlot(err error) bool { return errors.Is(err, ErrMissingSlot) }

// KindOf returns the kind of a graph error, or 0 when err is not one.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}
