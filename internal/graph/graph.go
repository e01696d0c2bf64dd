// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/layout"
	"github.com/jeranaias/forkchat/internal/model"
)

// RootID is the id given to the synthesized root node.
const RootID = "root"

// =============================================================================
// GRAPH
// =============================================================================

// Graph owns every conversation node.
type Graph struct {
	mu sync.RWMutex

	nodes    map[string]*Node
	rootID   string
	activeID string

	layoutCfg layout.Config
	logger    *zap.Logger
	newID     func() string
	observe   func(nodes int, took time.Duration)
}

// Option configures a Graph.
type Option func(*Graph)

// WithLayout sets the spacing used for relayout.
func WithLayout(cfg layout.Config) Option {
	return func(g *Graph) { g.layoutCfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithIDGenerator replaces the branch id generator.
func WithIDGenerator(fn func() string) Option {
	return func(g *Graph) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// WithLayoutObserver registers a function called after every relayout.
func WithLayoutObserver(fn func(nodes int, took time.Duration)) Option {
	return func(g *Graph) { g.observe = fn }
}

// New creates an empty graph. The root is created by InitializeRoot.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node),
		layoutCfg: layout.DefaultConfig(),
		logger:    zap.NewNop(),
		newID:     newNodeID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newNodeID() string {
	return "node-" + uuid.NewString()
}

// =============================================================================
// MUTATIONS
// =============================================================================

// InitializeRoot creates the root node if the graph is empty and makes it
// active. It returns the root id and is safe to call repeatedly.
func (g *Graph) InitializeRoot() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rootID != "" {
		return g.rootID
	}

	g.nodes[RootID] = &Node{
		ID:          RootID,
		Messages:    []model.Message{},
		Children:    []string{},
		IsActivated: true,
	}
	g.rootID = RootID
	g.activeID = RootID
	g.relayoutLocked()

	g.logger.Debug("root initialized", zap.String("node_id", RootID))
	return RootID
}

// AppendMessage appends msg to the node and marks it activated.
func (g *Graph) AppendMessage(nodeID string, msg model.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[nodeID]
	if !ok {
		return unknownNode(nodeID)
	}
	if n.IsFrozen {
		return frozenNode(nodeID)
	}
	n.Messages = append(n.Messages, msg)
	n.IsActivated = true
	return nil
}

// UpdateStreamingAnswer sets the trailing assistant message of a node to
// fullText, appending one if the last message is not from the assistant.
// A non-nil slotID overwrites the node's slot. Replacing an existing
// trailing answer is allowed on a frozen node; appending is not.
func (g *Graph) UpdateStreamingAnswer(nodeID, fullText string, slotID *int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[nodeID]
	if !ok {
		return unknownNode(nodeID)
	}

	if last := len(n.Messages) - 1; last >= 0 && n.Messages[last].Role == model.RoleAssistant {
		n.Messages[last].Content = fullText
	} else {
		if n.IsFrozen {
			return frozenNode(nodeID)
		}
		n.Messages = append(n.Messages, model.NewAssistantMessage(fullText))
	}

	if slotID != nil {
		slot := *slotID
		n.SlotID = &slot
	}
	return nil
}

// CreateBranch forks a new node from parentID seeded with excerpt. The
// parent is frozen, the child becomes active and the tree is relaid out.
// A parent without a compute slot cannot be branched from and the graph is
// left untouched.
func (g *Graph) CreateBranch(parentID, excerpt, question string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return "", unknownNode(parentID)
	}
	if parent.SlotID == nil {
		return "", missingSlot(parentID)
	}

	id := g.newID()
	if _, taken := g.nodes[id]; taken || id == "" {
		id = newNodeID()
	}

	parent.IsFrozen = true
	parent.Children = append(parent.Children, id)
	g.nodes[id] = &Node{
		ID:            id,
		ParentID:      parentID,
		Messages:      []model.Message{},
		UserQuestion:  question,
		ExcerptOrigin: excerpt,
		Children:      []string{},
		IsActivated:   true,
	}
	g.activeID = id
	g.relayoutLocked()

	g.logger.Info("branch created",
		zap.String("node_id", id),
		zap.String("parent_id", parentID),
		zap.Int("slot_id", *parent.SlotID),
		zap.Int("excerpt_len", len(excerpt)),
	)
	return id, nil
}

// SetActive makes nodeID the active node.
func (g *Graph) SetActive(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[nodeID]
	if !ok {
		return unknownNode(nodeID)
	}
	g.activeID = nodeID
	n.IsActivated = true
	return nil
}

// Relayout recomputes every node position.
func (g *Graph) Relayout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relayoutLocked()
}

// =============================================================================
// LAYOUT
// =============================================================================

// arena adapts the node table to layout.Topology. Callers hold g.mu.
type arena struct{ g *Graph }

func (a arena) Root() string { return a.g.rootID }

func (a arena) Children(id string) []string {
	if n, ok := a.g.nodes[id]; ok {
		return n.Children
	}
	return nil
}

func (g *Graph) relayoutLocked() {
	start := time.Now()
	positions := layout.Compute(arena{g}, g.layoutCfg)
	for id, pos := range positions {
		if n, ok := g.nodes[id]; ok {
			n.Position = pos
		}
	}
	took := time.Since(start)

	g.logger.Debug("layout computed",
		zap.Int("nodes", len(positions)),
		zap.Duration("took", took),
	)
	if g.observe != nil {
		g.observe(len(positions), took)
	}
}
