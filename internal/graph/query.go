// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"github.com/jeranaias/forkchat/internal/layout"
	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// QUERIES
// =============================================================================

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// RootID returns the root id, or "" before InitializeRoot.
func (g *Graph) RootID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootID
}

// ActiveID returns the active node id.
func (g *Graph) ActiveID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.activeID
}

// Node returns a copy of the node.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Active returns a copy of the active node.
func (g *Graph) Active() (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[g.activeID]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// History returns a copy of the node's messages.
func (g *Graph) History(id string) ([]model.Message, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, unknownNode(id)
	}
	return model.CloneMessages(n.Messages), nil
}

// Nodes returns copies of every reachable node in breadth-first order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order := g.bfsLocked()
	out := make([]Node, 0, len(order))
	for _, id := range order {
		out = append(out, g.nodes[id].Clone())
	}
	return out
}

// Positions returns the current layout keyed by node id.
func (g *Graph) Positions() map[string]layout.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]layout.Position, len(g.nodes))
	for id, n := range g.nodes {
		out[id] = n.Position
	}
	return out
}

// PathTo returns the ids from the root down to id. Unknown ids yield nil.
func (g *Graph) PathTo(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	var path []string
	for cur := id; cur != ""; {
		n, ok := g.nodes[cur]
		if !ok {
			break
		}
		path = append(path, cur)
		cur = n.ParentID
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Descendants returns every node below id in depth-first pre-order, not
// including id itself.
func (g *Graph) Descendants(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	stack := make([]string, 0, len(n.Children))
	for i := len(n.Children) - 1; i >= 0; i-- {
		stack = append(stack, n.Children[i])
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		if c, ok := g.nodes[cur]; ok {
			for i := len(c.Children) - 1; i >= 0; i-- {
				stack = append(stack, c.Children[i])
			}
		}
	}
	return out
}

// Leaves returns the ids of nodes without children in breadth-first order.
func (g *Graph) Leaves() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.bfsLocked() {
		if len(g.nodes[id].Children) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Depth returns the distance from the root, or -1 for unknown ids.
func (g *Graph) Depth(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return -1
	}
	depth := 0
	for n.ParentID != "" {
		parent, ok := g.nodes[n.ParentID]
		if !ok {
			break
		}
		n = parent
		depth++
	}
	return depth
}

func (g *Graph) bfsLocked() []string {
	if g.rootID == "" {
		return nil
	}
	out := make([]string, 0, len(g.nodes))
	seen := make(map[string]bool, len(g.nodes))
	queue := []string{g.rootID}
	seen[g.rootID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		out = append(out, id)
		for _, c := range n.Children {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return out
}
