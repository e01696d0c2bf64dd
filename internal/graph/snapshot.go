// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the serializable form of a graph.
type Snapshot struct {
	Nodes        []Node `json:"nodes"`
	ActiveNodeID string `json:"active_node_id"`
	RootNodeID   string `json:"root_node_id"`
}

// Snapshot returns a deep copy of the graph in breadth-first order.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order := g.bfsLocked()
	s := Snapshot{
		Nodes:        make([]Node, 0, len(order)),
		ActiveNodeID: g.activeID,
		RootNodeID:   g.rootID,
	}
	for _, id := range order {
		s.Nodes = append(s.Nodes, g.nodes[id].Clone())
	}
	return s
}

// Restore rebuilds a graph from a snapshot. The result is validated and
// relaid out; stored positions are ignored.
func Restore(s Snapshot, opts ...Option) (*Graph, error) {
	g := New(opts...)

	for i := range s.Nodes {
		n := s.Nodes[i].Clone()
		if n.ID == "" {
			return nil, invalid("node %d has an empty id", i)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, invalid("duplicate node id %q", n.ID)
		}
		if n.Messages == nil {
			n.Messages = []model.Message{}
		}
		if n.Children == nil {
			n.Children = []string{}
		}
		g.nodes[n.ID] = &n
	}
	g.rootID = s.RootNodeID
	g.activeID = s.ActiveNodeID

	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.rootID != "" {
		g.relayoutLocked()
	}
	return g, nil
}

// Validate checks every structural invariant.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		if g.rootID != "" || g.activeID != "" {
			return invalid("empty graph references root %q active %q", g.rootID, g.activeID)
		}
		return nil
	}

	root, ok := g.nodes[g.rootID]
	if !ok {
		return invalid("root %q not found", g.rootID)
	}
	if root.ParentID != "" {
		return invalid("root %q has parent %q", g.rootID, root.ParentID)
	}
	if _, ok := g.nodes[g.activeID]; !ok {
		return invalid("active node %q not found", g.activeID)
	}

	for id, n := range g.nodes {
		if n.ID != id {
			return invalid("node %q stored under %q", n.ID, id)
		}
		if n.ParentID == "" && id != g.rootID {
			return invalid("second parentless node %q", id)
		}
		if n.ParentID != "" {
			parent, ok := g.nodes[n.ParentID]
			if !ok {
				return invalid("node %q has unknown parent %q", id, n.ParentID)
			}
			if !contains(parent.Children, id) {
				return invalid("node %q missing from children of %q", id, n.ParentID)
			}
		}
		seen := make(map[string]bool, len(n.Children))
		for _, c := range n.Children {
			if seen[c] {
				return invalid("node %q lists child %q twice", id, c)
			}
			seen[c] = true
			child, ok := g.nodes[c]
			if !ok {
				return invalid("node %q has unknown child %q", id, c)
			}
			if child.ParentID != id {
				return invalid("child %q of %q points at parent %q", c, id, child.ParentID)
			}
		}
	}

	if reached := len(g.bfsLocked()); reached != len(g.nodes) {
		return invalid("%d of %d nodes unreachable from root", len(g.nodes)-reached, len(g.nodes))
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// =============================================================================
// FILE I/O
// =============================================================================

// Save writes the graph snapshot as JSON.
func (g *Graph) Save(path string) error {
	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string, opts ...Option) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse graph: %w", err)
	}
	return Restore(s, opts...)
}
