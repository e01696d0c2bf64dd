// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package branch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/completion"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// Kind distinguishes branch and regular submissions.
type Kind string

const (
	KindBranch  Kind = "branch"
	KindMessage Kind = "message"
)

// ComposeState tracks whether the next submission forks a branch.
type ComposeState string

const (
	ComposeIdle  ComposeState = "idle"
	ComposeReady ComposeState = "ready_to_branch"
)

// Config holds branch request parameters.
type Config struct {
	BranchMode    completion.Mode
	ContextWindow int
}

// DefaultConfig returns the standard branch parameters.
func DefaultConfig() Config {
	return Config{
		BranchMode:    completion.ModeReuseKV,
		ContextWindow: completion.DefaultContextWindow,
	}
}

// Recorder receives submission metrics.
type Recorder interface {
	SubmissionStarted(kind string)
	BranchCreated()
	ChunkReceived(kind string)
	StreamFinished(kind string, took time.Duration)
	StreamFailed(kind string)
}

// TransitionStarter starts the view transition toward a new branch.
type TransitionStarter interface {
	Start(newNodeID, parentNodeID string)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the submission pipeline for one graph.
type Controller struct {
	mu        sync.Mutex
	streaming bool
	compose   ComposeState
	excerpt   string

	graph       *graph.Graph
	svc         completion.Service
	cfg         Config
	transitions TransitionStarter
	logger      *zap.Logger
	metrics     Recorder
	notify      func(nodeID string)
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig sets branch request parameters.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithTransitions sets the transition started after each branch.
func WithTransitions(t TransitionStarter) Option {
	return func(c *Controller) { c.transitions = t }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(c *Controller) { c.metrics = r }
}

// WithNotify registers fn to run whenever a node changes.
func WithNotify(fn func(nodeID string)) Option {
	return func(c *Controller) { c.notify = fn }
}

// New creates a controller and makes sure the graph has a root.
func New(g *graph.Graph, svc completion.Service, opts ...Option) *Controller {
	c := &Controller{
		graph:   g,
		svc:     svc,
		cfg:     DefaultConfig(),
		compose: ComposeIdle,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.cfg.BranchMode.Valid() {
		c.cfg.BranchMode = completion.ModeReuseKV
	}
	if c.cfg.ContextWindow <= 0 {
		c.cfg.ContextWindow = completion.DefaultContextWindow
	}
	g.InitializeRoot()
	return c
}

// Graph returns the controlled graph.
func (c *Controller) Graph() *graph.Graph {
	return c.graph
}

// IsStreaming reports whether a submission is in flight.
func (c *Controller) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// =============================================================================
// COMPOSE STATE
// =============================================================================

// BeginBranch arms the next Submit to fork a branch seeded with excerpt.
func (c *Controller) BeginBranch(excerpt string) error {
	if strings.TrimSpace(excerpt) == "" {
		return ErrEmptyInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = ComposeReady
	c.excerpt = excerpt
	return nil
}

// CancelBranch discards a pending excerpt.
func (c *Controller) CancelBranch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compose = ComposeIdle
	c.excerpt = ""
}

// Compose returns the compose state and pending excerpt.
func (c *Controller) Compose() (ComposeState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compose, c.excerpt
}

// Submit sends input as a branch question when an excerpt is pending and
// as a regular message otherwise. A successful branch clears the excerpt.
func (c *Controller) Submit(ctx context.Context, input string) (*Submission, error) {
	state, excerpt := c.Compose()
	if state != ComposeReady || excerpt == "" {
		return c.StartMessage(ctx, input)
	}

	sub, err := c.StartBranch(ctx, excerpt, input)
	if err != nil {
		return nil, err
	}
	c.CancelBranch()
	return sub, nil
}

// =============================================================================
// BRANCH SUBMISSION
// =============================================================================

// StartBranch forks a child of the active node and starts streaming the
// answer to question into it. It returns once the child exists.
func (c *Controller) StartBranch(ctx context.Context, excerpt, question string) (*Submission, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	parent, ok := c.graph.Active()
	if !ok {
		c.mu.Unlock()
		return nil, ErrNoActiveNode
	}
	childID, err := c.graph.CreateBranch(parent.ID, excerpt, question)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("branch rejected",
			zap.String("parent_id", parent.ID),
			zap.String("kind", graph.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}
	c.streaming = true
	c.mu.Unlock()

	if c.transitions != nil {
		c.transitions.Start(childID, parent.ID)
	}
	if err := c.graph.AppendMessage(childID, model.NewUserMessage(question)); err != nil {
		c.logger.Error("failed to record branch question", zap.String("node_id", childID), zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.BranchCreated()
	}
	c.changed(childID)

	req := completion.BranchRequest{
		ParentSlotID:  *parent.SlotID,
		BranchMode:    c.cfg.BranchMode,
		TextExcerpt:   excerpt,
		ContextWindow: c.cfg.ContextWindow,
		Prompt:        question,
		Stream:        true,
	}
	c.logger.Info("branch submitted",
		zap.String("node_id", childID),
		zap.String("parent_id", parent.ID),
		zap.Int("parent_slot_id", req.ParentSlotID),
		zap.String("branch_mode", string(req.BranchMode)),
		zap.String("excerpt", util.Label(excerpt, 60)),
	)

	sub := newSubmission(childID, KindBranch)
	go c.run(sub, func(cb completion.Callbacks) {
		c.svc.StreamBranch(ctx, req, cb)
	})
	return sub, nil
}

// SubmitBranch is StartBranch followed by Wait. It returns the new node id.
func (c *Controller) SubmitBranch(ctx context.Context, excerpt, question string) (string, error) {
	sub, err := c.StartBranch(ctx, excerpt, question)
	if err != nil {
		return "", err
	}
	return sub.NodeID, sub.Wait(ctx)
}

// =============================================================================
// REGULAR SUBMISSION
// =============================================================================

// StartMessage appends text to the active node and starts streaming the
// reply to its full history.
func (c *Controller) StartMessage(ctx context.Context, text string) (*Submission, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	nodeID := c.graph.ActiveID()
	if nodeID == "" {
		c.mu.Unlock()
		return nil, ErrNoActiveNode
	}
	if err := c.graph.AppendMessage(nodeID, model.NewUserMessage(text)); err != nil {
		c.mu.Unlock()
		c.logger.Error("message rejected",
			zap.String("node_id", nodeID),
			zap.String("kind", graph.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}
	history, err := c.graph.History(nodeID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.streaming = true
	c.mu.Unlock()

	c.changed(nodeID)
	c.logger.Info("message submitted",
		zap.String("node_id", nodeID),
		zap.Int("history_len", len(history)),
	)

	sub := newSubmission(nodeID, KindMessage)
	go c.run(sub, func(cb completion.Callbacks) {
		c.svc.StreamChat(ctx, completion.ChatRequest{Messages: history, Stream: true}, cb)
	})
	return sub, nil
}

// SubmitMessage is StartMessage followed by Wait.
func (c *Controller) SubmitMessage(ctx context.Context, text string) error {
	sub, err := c.StartMessage(ctx, text)
	if err != nil {
		return err
	}
	return sub.Wait(ctx)
}

// =============================================================================
// NAVIGATION
// =============================================================================

// Navigate makes nodeID the active node.
func (c *Controller) Navigate(nodeID string) error {
	if err := c.graph.SetActive(nodeID); err != nil {
		c.logger.Error("navigation failed", zap.String("node_id", nodeID), zap.Error(err))
		return err
	}
	c.logger.Debug("navigated", zap.String("node_id", nodeID))
	c.changed(nodeID)
	return nil
}

// =============================================================================
// STREAMING
// =============================================================================

// run applies one completion stream to sub.NodeID. The streaming flag is
// cleared exactly once, even if the service breaks its callback contract.
func (c *Controller) run(sub *Submission, stream func(completion.Callbacks)) {
	start := time.Now()
	kind := string(sub.Kind)
	if c.metrics != nil {
		c.metrics.SubmissionStarted(kind)
	}

	var (
		mu       sync.Mutex
		acc      strings.Builder
		finished bool
	)

	finish := func(failure string) {
		mu.Lock()
		if finished {
			mu.Unlock()
			return
		}
		finished = true
		mu.Unlock()

		if failure != "" {
			if err := c.graph.AppendMessage(sub.NodeID, model.NewErrorMessage(failure)); err != nil {
				c.logger.Error("failed to record stream error", zap.String("node_id", sub.NodeID), zap.Error(err))
			}
			c.logger.Warn("stream failed",
				zap.String("node_id", sub.NodeID),
				zap.String("kind", kind),
				zap.String("reason", failure),
			)
			if c.metrics != nil {
				c.metrics.StreamFailed(kind)
			}
		} else {
			c.logger.Info("stream finished",
				zap.String("node_id", sub.NodeID),
				zap.String("kind", kind),
				zap.Duration("took", time.Since(start)),
			)
			if c.metrics != nil {
				c.metrics.StreamFinished(kind, time.Since(start))
			}
		}

		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()

		sub.finish(failure)
		c.changed(sub.NodeID)
	}

	stream(completion.Callbacks{
		OnChunk: func(d completion.ContentDelta) {
			mu.Lock()
			if finished {
				mu.Unlock()
				return
			}
			acc.WriteString(d.Text)
			text := acc.String()
			mu.Unlock()

			if err := c.graph.UpdateStreamingAnswer(sub.NodeID, text, d.SlotID); err != nil {
				c.logger.Error("failed to apply chunk", zap.String("node_id", sub.NodeID), zap.Error(err))
				return
			}
			if c.metrics != nil {
				c.metrics.ChunkReceived(kind)
			}
			c.changed(sub.NodeID)
		},
		OnDone:  func() { finish("") },
		OnError: func(message string) { finish(message) },
	})

	finish("stream ended without a result")
}

func (c *Controller) changed(nodeID string) {
	if c.notify != nil {
		c.notify(nodeID)
	}
}
