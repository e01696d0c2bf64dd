// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package layout

import "math"

// =============================================================================
// TYPES
// =============================================================================

// Position is a node's coordinate on the canvas. X is the depth axis and Y
// is the order axis.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the extent along the depth axis.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the extent along the order axis.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Topology is the read-only view of a tree the engine needs.
type Topology interface {
	// Root returns the root id, or "" for an empty tree.
	Root() string
	// Children returns the ordered child ids of id.
	Children(id string) []string
}

// Tree is a Topology backed by an adjacency map.
type Tree struct {
	RootID string
	Edges  map[string][]string
}

// Root implements Topology.
func (t Tree) Root() string { return t.RootID }

// Children implements Topology.
func (t Tree) Children(id string) []string { return t.Edges[id] }

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config controls spacing.
type Config struct {
	// LevelSpacing is the canvas distance between consecutive depths.
	LevelSpacing float64 `toml:"level_spacing" json:"level_spacing" validate:"gt=0"`
	// SiblingSpacing is the canvas length of one order-axis unit.
	SiblingSpacing float64 `toml:"sibling_spacing" json:"sibling_spacing" validate:"gt=0"`
	// Distance is the minimum separation, in order-axis units, between
	// adjacent subtrees.
	Distance float64 `toml:"distance" json:"distance" validate:"gt=0"`
}

// DefaultConfig returns the standard spacing.
func DefaultConfig() Config {
	return Config{
		LevelSpacing:   300,
		SiblingSpacing: 150,
		Distance:       1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LevelSpacing <= 0 {
		c.LevelSpacing = d.LevelSpacing
	}
	if c.SiblingSpacing <= 0 {
		c.SiblingSpacing = d.SiblingSpacing
	}
	if c.Distance <= 0 {
		c.Distance = d.Distance
	}
	return c
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// Compute lays out every node reachable from t.Root(). Child ids that were
// already placed (duplicates or cycles) are skipped. An empty root yields an
// empty map.
func Compute(t Topology, cfg Config) map[string]Position {
	cfg = cfg.withDefaults()

	root := build(t)
	if root == nil {
		return map[string]Position{}
	}

	firstWalk(root, cfg.Distance)

	placed := make([]*node, 0, 16)
	secondWalk(root, -root.prelim, 0, &placed)

	minOrder, maxOrder := math.Inf(1), math.Inf(-1)
	for _, n := range placed {
		minOrder = math.Min(minOrder, n.x)
		maxOrder = math.Max(maxOrder, n.x)
	}
	center := (minOrder + maxOrder) / 2

	out := make(map[string]Position, len(placed))
	for _, n := range placed {
		out[n.id] = Position{
			X: float64(n.depth) * cfg.LevelSpacing,
			Y: (n.x - center) * cfg.SiblingSpacing,
		}
	}
	return out
}

// Bounds returns the bounding box of positions. An empty map yields a zero
// Rect.
func Bounds(positions map[string]Position) Rect {
	if len(positions) == 0 {
		return Rect{}
	}
	r := Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range positions {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}
