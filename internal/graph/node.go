// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"github.com/jeranaias/forkchat/internal/layout"
	"github.com/jeranaias/forkchat/internal/model"
)

// Node is one conversation in the tree.
type Node struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`

	// Messages in conversation order.
	Messages []model.Message `json:"messages"`

	// UserQuestion is the prompt that created the node. Empty for the root.
	UserQuestion string `json:"user_question,omitempty"`
	// ExcerptOrigin is the parent text this branch was forked from.
	ExcerptOrigin string `json:"excerpt_origin,omitempty"`

	// SlotID is the backend compute-cache slot holding this node's context.
	SlotID *int `json:"slot_id,omitempty"`

	Children []string `json:"children"`

	IsFrozen    bool `json:"is_frozen"`
	IsActivated bool `json:"is_activated"`

	// Position is owned by the layout engine.
	Position layout.Position `json:"position"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool { return n.ParentID == "" }

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool { return len(n.Children) == 0 }

// HasSlot reports whether the node can be branched from.
func (n Node) HasSlot() bool { return n.SlotID != nil }

// LastMessage returns the final message, if any.
func (n Node) LastMessage() (model.Message, bool) {
	if len(n.Messages) == 0 {
		return model.Message{}, false
	}
	return n.Messages[len(n.Messages)-1], true
}

// LastAssistant returns the content of the most recent assistant message.
func (n Node) LastAssistant() string {
	for i := len(n.Messages) - 1; i >= 0; i-- {
		if n.Messages[i].Role == model.RoleAssistant {
			return n.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy.
func (n *Node) Clone() Node {
	c := *n
	c.Messages = model.CloneMessages(n.Messages)
	if n.Children != nil {
		c.Children = make([]string, len(n.Children))
		copy(c.Children, n.Children)
	}
	if n.SlotID != nil {
		slot := *n.SlotID
		c.SlotID = &slot
	}
	return c
}
