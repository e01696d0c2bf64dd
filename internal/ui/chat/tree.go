// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/transition"
	"github.com/jeranaias/forkchat/internal/util"
)

// treeRow is one line of the graph view.
type treeRow struct {
	node   graph.Node
	prefix string
}

// treeRows flattens the graph in depth-first order with box-drawing
// prefixes.
func (m Model) treeRows() []treeRow {
	g := m.ctrl.Graph()
	root, ok := g.Node(g.RootID())
	if !ok {
		return nil
	}
	rows := []treeRow{{node: root}}
	var walk func(n graph.Node, indent string)
	walk = func(n graph.Node, indent string) {
		for i, id := range n.Children {
			child, ok := g.Node(id)
			if !ok {
				continue
			}
			last := i == len(n.Children)-1
			branch, next := "├─ ", "│  "
			if last {
				branch, next = "└─ ", "   "
			}
			rows = append(rows, treeRow{node: child, prefix: indent + branch})
			walk(child, indent+next)
		}
	}
	walk(root, "")
	return rows
}

// nodeLabel is the one-line title of a node.
func nodeLabel(n graph.Node) string {
	if n.IsRoot() {
		if msg, ok := firstUser(n); ok {
			return "root: " + util.OneLine(msg)
		}
		return "root"
	}
	return util.OneLine(n.UserQuestion)
}

func firstUser(n graph.Node) (string, bool) {
	for _, msg := range n.Messages {
		if msg.Role == model.RoleUser {
			return msg.Content, true
		}
	}
	return "", false
}

// nodeTags lists the short flags shown after a node label.
func nodeTags(n graph.Node) string {
	var tags []string
	if n.SlotID != nil {
		tags = append(tags, fmt.Sprintf("slot %d", *n.SlotID))
	}
	if n.IsFrozen {
		tags = append(tags, "frozen")
	}
	if len(n.Children) > 0 {
		tags = append(tags, fmt.Sprintf("%d branches", len(n.Children)))
	}
	if len(tags) == 0 {
		return ""
	}
	return " [" + strings.Join(tags, ", ") + "]"
}

// renderTree draws the graph view, height rows tall, keeping the cursor
// visible.
func (m Model) renderTree(width, height int) string {
	rows := m.treeRows()
	if len(rows) == 0 {
		return m.theme.Muted.Render("empty graph")
	}

	state := m.machine.State()
	activeID := m.ctrl.Graph().ActiveID()

	start := 0
	if height > 0 && m.cursor >= height {
		start = m.cursor - height + 1
	}

	var b strings.Builder
	for i := start; i < len(rows) && (height <= 0 || i < start+height); i++ {
		r := rows[i]

		marker := "  "
		if r.node.ID == activeID {
			marker = "● "
		}
		text := runewidth.Truncate(marker+nodeLabel(r.node)+nodeTags(r.node),
			max(8, width-runewidth.StringWidth(r.prefix)), "…")

		style := m.theme.NodeNormal
		switch {
		case i == m.cursor:
			style = m.theme.NodeCursor
		case isNew(state, r.node.ID):
			style = m.theme.NodeNew
		case r.node.ID == activeID:
			style = m.theme.NodeActive
		case r.node.IsFrozen:
			style = m.theme.NodeFrozen
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.theme.TreeEdge.Render(r.prefix))
		b.WriteString(style.Render(text))
	}
	return b.String()
}

// isNew reports whether id is the node being revealed by a transition.
func isNew(s transition.State, id string) bool {
	if !s.Animating || s.NewNodeID != id {
		return false
	}
	switch s.Stage {
	case transition.StageDrawingBranch, transition.StageFlowingContext, transition.StageExpandingNode:
		return true
	}
	return false
}
