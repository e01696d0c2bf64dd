// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forkchat/internal/branch"
)

// =============================================================================
// CONTROLLER EVENTS
// =============================================================================

// Events carries node-change notifications from stream goroutines into the
// Bubble Tea program. Notifications are coalesced when the program lags.
type Events struct {
	ch chan string
}

// NewEvents creates an event bridge.
func NewEvents() *Events {
	return &Events{ch: make(chan string, 64)}
}

// Notify records that nodeID changed. It never blocks.
func (e *Events) Notify(nodeID string) {
	select {
	case e.ch <- nodeID:
	default:
	}
}

// listen waits for the next notification.
func (e *Events) listen() tea.Cmd {
	return func() tea.Msg {
		return NodeChangedMsg{NodeID: <-e.ch}
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// NodeChangedMsg reports that a node's content or the active node changed.
type NodeChangedMsg struct {
	NodeID string
}

// SubmissionDoneMsg is sent when a submission's stream has finished.
type SubmissionDoneMsg struct {
	NodeID  string
	Kind    branch.Kind
	Failure string
}

// TransitionTickMsg advances the view transition started at Gen.
type TransitionTickMsg struct {
	Gen uint64
}

// NoticeMsg shows a one-line status notice.
type NoticeMsg struct {
	Text  string
	Error bool
}
