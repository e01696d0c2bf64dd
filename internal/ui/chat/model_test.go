// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/completion/completiontest"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/transition"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func intPtr(v int) *int { return &v }

func fastDurations() transition.Durations {
	return transition.Durations{
		SwitchToGraph: time.Millisecond,
		DrawBranch:    time.Millisecond,
		FlowContext:   time.Millisecond,
		ExpandNode:    time.Millisecond,
		ReturnToFocus: time.Millisecond,
	}
}

func newTestModel(t *testing.T, fake *completiontest.Fake) (Model, *branch.Controller, *transition.Machine) {
	t.Helper()
	machine := transition.NewMachine(fastDurations())
	ctrl := branch.New(graph.New(), fake, branch.WithTransitions(machine))
	m := New(ctrl, machine, WithSavePath(filepath.Join(t.TempDir(), "graph.json")))

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), ctrl, machine
}

// drain runs cmd and returns every message it produces, expanding batches.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func typeAndSend(t *testing.T, m Model, input string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(input)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// settle feeds every produced message back into the model until nothing
// is left to run.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	pending := drain(cmd)
	for i := 0; len(pending) > 0; i++ {
		require.Less(t, i, 100, "model did not settle")
		msg := pending[0]
		pending = pending[1:]
		next, c := m.Update(msg)
		m = next.(Model)
		pending = append(pending, drain(c)...)
	}
	return m
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestModel_SendMessage(t *testing.T) {
	fake := completiontest.New(completiontest.Text(intPtr(0), "Rayleigh ", "scattering."))
	m, ctrl, _ := newTestModel(t, fake)

	m, cmd := typeAndSend(t, m, "why is the sky blue?")
	assert.Empty(t, m.input.Value())
	m = settle(t, m, cmd)

	root, ok := ctrl.Graph().Node(graph.RootID)
	require.True(t, ok)
	require.Len(t, root.Messages, 2)
	assert.Equal(t, "Rayleigh scattering.", root.Messages[1].Content)
	assert.False(t, m.noticeError)
	assert.Contains(t, m.renderTranscript(), "Rayleigh scattering.")
}

func TestModel_StreamFailureShowsNotice(t *testing.T) {
	fake := completiontest.New(completiontest.Script{Err: "backend down"})
	m, _, _ := newTestModel(t, fake)

	m, cmd := typeAndSend(t, m, "hello")
	m = settle(t, m, cmd)

	assert.True(t, m.noticeError)
	assert.Contains(t, m.notice, "backend down")
}

func TestModel_BranchCommandRunsTransition(t *testing.T) {
	fake := completiontest.New(completiontest.Text(intPtr(0), "first answer"))
	m, ctrl, machine := newTestModel(t, fake)

	m, cmd := typeAndSend(t, m, "start")
	m = settle(t, m, cmd)

	fake.SetScript(completiontest.Text(intPtr(1), "branch answer"))
	m, cmd = typeAndSend(t, m, "/branch first answer | tell me more")
	assert.Equal(t, transition.StageSwitchingToGraph, machine.State().Stage)
	m = settle(t, m, cmd)

	g := ctrl.Graph()
	assert.Equal(t, 2, g.Len())
	assert.NotEqual(t, graph.RootID, g.ActiveID())

	st := machine.State()
	assert.Equal(t, transition.StageIdle, st.Stage)
	assert.Equal(t, transition.ViewFocused, st.View)

	active, _ := g.Active()
	assert.Equal(t, "first answer", active.ExcerptOrigin)
	assert.Contains(t, m.renderTranscript(), "branch answer")
}

func TestModel_SelectThenAsk(t *testing.T) {
	fake := completiontest.New(completiontest.Text(intPtr(0), "answer"))
	m, ctrl, _ := newTestModel(t, fake)
	m, cmd := typeAndSend(t, m, "q")
	m = settle(t, m, cmd)

	m, _ = typeAndSend(t, m, "/select answer")
	state, excerpt := ctrl.Compose()
	assert.Equal(t, branch.ComposeReady, state)
	assert.Equal(t, "answer", excerpt)
	assert.Contains(t, m.renderStatus(), "branching from")

	m, cmd = typeAndSend(t, m, "why?")
	settle(t, m, cmd)

	active, _ := ctrl.Graph().Active()
	assert.Equal(t, "why?", active.UserQuestion)
	state, _ = ctrl.Compose()
	assert.Equal(t, branch.ComposeIdle, state)
}

func TestModel_BranchWithoutSlotShowsError(t *testing.T) {
	fake := completiontest.New(completiontest.Script{})
	m, ctrl, _ := newTestModel(t, fake)

	m, cmd := typeAndSend(t, m, "/branch x | y")
	assert.Nil(t, cmd)
	assert.True(t, m.noticeError)
	assert.Contains(t, m.notice, "compute slot")
	assert.Equal(t, 1, ctrl.Graph().Len())
}

func TestModel_BadBranchSyntax(t *testing.T) {
	m, _, _ := newTestModel(t, completiontest.New(completiontest.Script{}))

	m, _ = typeAndSend(t, m, "/branch no separator")
	assert.True(t, m.noticeError)
	assert.Equal(t, ErrBranchSyntax.Error(), m.notice)
}

// =============================================================================
// NAVIGATION AND VIEWS
// =============================================================================

func branchedModel(t *testing.T) (Model, *branch.Controller, *transition.Machine) {
	t.Helper()
	fake := completiontest.New(completiontest.Text(intPtr(0), "answer"))
	m, ctrl, machine := newTestModel(t, fake)
	m, cmd := typeAndSend(t, m, "q")
	m = settle(t, m, cmd)
	m, cmd = typeAndSend(t, m, "/branch answer | deeper?")
	m = settle(t, m, cmd)
	return m, ctrl, machine
}

func TestModel_GotoCommand(t *testing.T) {
	m, ctrl, _ := branchedModel(t)

	m, _ = typeAndSend(t, m, "/goto root")
	assert.Equal(t, graph.RootID, ctrl.Graph().ActiveID())
	assert.False(t, m.noticeError)

	m, _ = typeAndSend(t, m, "/goto nope")
	assert.True(t, m.noticeError)
}

func TestModel_GraphViewCursorNavigates(t *testing.T) {
	m, ctrl, machine := branchedModel(t)
	child := ctrl.Graph().ActiveID()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Equal(t, transition.ViewGraph, machine.State().View)
	assert.Equal(t, 1, m.cursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = next.(Model)
	assert.Equal(t, 0, m.cursor)

	tree := m.renderTree(100, 10)
	assert.Contains(t, tree, "root")
	assert.Contains(t, tree, "deeper?")
	assert.Contains(t, tree, "frozen")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Equal(t, graph.RootID, ctrl.Graph().ActiveID())
	assert.Equal(t, transition.ViewFocused, machine.State().View)
	assert.NotEqual(t, child, ctrl.Graph().ActiveID())
}

func TestModel_FrozenRootRejectsMessage(t *testing.T) {
	m, ctrl, _ := branchedModel(t)
	require.NoError(t, ctrl.Navigate(graph.RootID))

	m, cmd := typeAndSend(t, m, "more on root")
	assert.Nil(t, cmd)
	assert.True(t, m.noticeError)
	assert.Contains(t, m.notice, "read-only")
}

func TestModel_EscCancelsPendingBranch(t *testing.T) {
	m, ctrl, _ := newTestModel(t, completiontest.New(completiontest.Script{}))
	require.NoError(t, ctrl.BeginBranch("something"))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	state, _ := ctrl.Compose()
	assert.Equal(t, branch.ComposeIdle, state)
	assert.Equal(t, "branch cancelled", m.notice)
}

func TestModel_StaleTransitionTickIgnored(t *testing.T) {
	m, _, machine := newTestModel(t, completiontest.New(completiontest.Script{}))
	machine.Start("a", "root")
	stale := machine.Generation()
	machine.Start("b", "root")

	next, cmd := m.Update(TransitionTickMsg{Gen: stale})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, transition.StageSwitchingToGraph, machine.State().Stage)
	assert.Equal(t, "b", machine.State().NewNodeID)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestModel_SaveAndExport(t *testing.T) {
	m, _, _ := branchedModel(t)

	m, _ = typeAndSend(t, m, "/save")
	require.False(t, m.noticeError, m.notice)
	_, err := os.Stat(m.savePath)
	require.NoError(t, err)

	loaded, err := graph.Load(m.savePath)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	dir := t.TempDir()
	m, _ = typeAndSend(t, m, "/export md "+dir)
	require.False(t, m.noticeError, m.notice)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".md"))

	m, _ = typeAndSend(t, m, "/export pdf")
	assert.True(t, m.noticeError)
}

func TestModel_UnknownCommand(t *testing.T) {
	m, _, _ := newTestModel(t, completiontest.New(completiontest.Script{}))
	m, _ = typeAndSend(t, m, "/frobnicate")
	assert.True(t, m.noticeError)
	assert.Contains(t, m.notice, "/frobnicate")
}

func TestModel_QuitAndView(t *testing.T) {
	m, _, _ := newTestModel(t, completiontest.New(completiontest.Script{}))
	assert.Contains(t, m.View(), "forkchat")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}
