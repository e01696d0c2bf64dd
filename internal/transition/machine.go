// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transition

import (
	"sync"
	"time"
)

// =============================================================================
// STAGES AND VIEWS
// =============================================================================

// Stage is a step of the branch transition.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageSwitchingToGraph Stage = "switching_to_graph"
	StageDrawingBranch    Stage = "drawing_branch"
	StageFlowingContext   Stage = "flowing_context"
	StageExpandingNode    Stage = "expanding_node"
	StageReturningToFocus Stage = "returning_to_focus"
)

// next is the fixed stage order.
var next = map[Stage]Stage{
	StageSwitchingToGraph: StageDrawingBranch,
	StageDrawingBranch:    StageFlowingContext,
	StageFlowingContext:   StageExpandingNode,
	StageExpandingNode:    StageReturningToFocus,
	StageReturningToFocus: StageIdle,
}

// View is what the user is looking at.
type View string

const (
	ViewFocused View = "focused"
	ViewGraph   View = "graph"
)

// =============================================================================
// DURATIONS
// =============================================================================

// Durations sets how long each stage lasts.
type Durations struct {
	SwitchToGraph time.Duration
	DrawBranch    time.Duration
	FlowContext   time.Duration
	ExpandNode    time.Duration
	ReturnToFocus time.Duration
}

// DefaultDurations returns the standard stage timings.
func DefaultDurations() Durations {
	return Durations{
		SwitchToGraph: 300 * time.Millisecond,
		DrawBranch:    500 * time.Millisecond,
		FlowContext:   2000 * time.Millisecond,
		ExpandNode:    600 * time.Millisecond,
		ReturnToFocus: 300 * time.Millisecond,
	}
}

// Of returns the duration of stage s. Idle lasts zero.
func (d Durations) Of(s Stage) time.Duration {
	switch s {
	case StageSwitchingToGraph:
		return d.SwitchToGraph
	case StageDrawingBranch:
		return d.DrawBranch
	case StageFlowingContext:
		return d.FlowContext
	case StageExpandingNode:
		return d.ExpandNode
	case StageReturningToFocus:
		return d.ReturnToFocus
	default:
		return 0
	}
}

// Total returns the length of a full transition.
func (d Durations) Total() time.Duration {
	return d.SwitchToGraph + d.DrawBranch + d.FlowContext + d.ExpandNode + d.ReturnToFocus
}

// =============================================================================
// MACHINE
// =============================================================================

// State is a snapshot of the machine.
type State struct {
	Stage        Stage  `json:"stage"`
	NewNodeID    string `json:"new_node_id,omitempty"`
	ParentNodeID string `json:"parent_node_id,omitempty"`
	Animating    bool   `json:"is_animating"`
	View         View   `json:"view_mode"`
}

// Machine is the transition state machine. It is safe for concurrent use.
type Machine struct {
	mu        sync.Mutex
	stage     Stage
	newID     string
	parentID  string
	view      View
	gen       uint64
	durations Durations
	observers []func(State)
}

// NewMachine creates an idle machine in the focused view. Zero durations
// are replaced by the defaults.
func NewMachine(d Durations) *Machine {
	def := DefaultDurations()
	if d.SwitchToGraph <= 0 {
		d.SwitchToGraph = def.SwitchToGraph
	}
	if d.DrawBranch <= 0 {
		d.DrawBranch = def.DrawBranch
	}
	if d.FlowContext <= 0 {
		d.FlowContext = def.FlowContext
	}
	if d.ExpandNode <= 0 {
		d.ExpandNode = def.ExpandNode
	}
	if d.ReturnToFocus <= 0 {
		d.ReturnToFocus = def.ReturnToFocus
	}
	return &Machine{stage: StageIdle, view: ViewFocused, durations: d}
}

// OnChange registers fn to run after every state change, outside the lock.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Start begins a transition toward newID. A transition already in flight
// is abandoned and restarted with the new ids.
func (m *Machine) Start(newID, parentID string) {
	m.mu.Lock()
	m.gen++
	m.newID = newID
	m.parentID = parentID
	m.enterLocked(StageSwitchingToGraph)
	s, obs := m.stateLocked(), m.observers
	m.mu.Unlock()
	notify(obs, s)
}

// Tick advances one stage. Idle is absorbing.
func (m *Machine) Tick() State {
	s, _ := m.tick(0, false)
	return s
}

// TickIf advances only if no Start happened since gen was read. It reports
// whether the machine moved.
func (m *Machine) TickIf(gen uint64) (State, bool) {
	return m.tick(gen, true)
}

func (m *Machine) tick(gen uint64, checkGen bool) (State, bool) {
	m.mu.Lock()
	if m.stage == StageIdle || (checkGen && gen != m.gen) {
		s := m.stateLocked()
		m.mu.Unlock()
		return s, false
	}
	m.enterLocked(next[m.stage])
	s, obs := m.stateLocked(), m.observers
	m.mu.Unlock()
	notify(obs, s)
	return s, true
}

// enterLocked applies the entry action of stage s.
func (m *Machine) enterLocked(s Stage) {
	m.stage = s
	switch s {
	case StageSwitchingToGraph:
		m.view = ViewGraph
	case StageReturningToFocus:
		m.view = ViewFocused
	case StageIdle:
		m.newID = ""
		m.parentID = ""
	}
}

// Delay returns how long the current stage lasts before the next Tick.
func (m *Machine) Delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations.Of(m.stage)
}

// Generation identifies the current transition for TickIf.
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// State returns a snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Durations returns the configured stage timings.
func (m *Machine) Durations() Durations {
	return m.durations
}

// ToggleView flips between the focused and graph views.
func (m *Machine) ToggleView() View {
	m.mu.Lock()
	if m.view == ViewFocused {
		m.view = ViewGraph
	} else {
		m.view = ViewFocused
	}
	v, s, obs := m.view, m.stateLocked(), m.observers
	m.mu.Unlock()
	notify(obs, s)
	return v
}

// SetView sets the view directly.
func (m *Machine) SetView(v View) {
	m.mu.Lock()
	m.view = v
	s, obs := m.stateLocked(), m.observers
	m.mu.Unlock()
	notify(obs, s)
}

func (m *Machine) stateLocked() State {
	return State{
		Stage:        m.stage,
		NewNodeID:    m.newID,
		ParentNodeID: m.parentID,
		Animating:    m.stage != StageIdle,
		View:         m.view,
	}
}

func notify(obs []func(State), s State) {
	for _, fn := range obs {
		fn(s)
	}
}
