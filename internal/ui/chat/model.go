// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/export"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/transition"
	"github.com/jeranaias/forkchat/internal/ui/styles"
)

// DefaultSavePath is where /save writes without an argument.
const DefaultSavePath = "forkchat-graph.json"

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	ctrl    *branch.Controller
	machine *transition.Machine
	events  *Events
	logger  *zap.Logger
	ctx     context.Context

	keys     KeyMap
	theme    *styles.Theme
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model

	width  int
	height int
	ready  bool

	// cursor indexes the graph view rows.
	cursor   int
	showHelp bool
	quitting bool

	notice      string
	noticeError bool
	savePath    string
}

// Option configures a Model.
type Option func(*Model)

// WithEvents connects controller notifications to the model.
func WithEvents(e *Events) Option {
	return func(m *Model) { m.events = e }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithContext sets the context passed to submissions.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithSavePath sets the default /save destination.
func WithSavePath(path string) Option {
	return func(m *Model) { m.savePath = path }
}

// New creates the chat model. A nil machine gets one with default timings.
func New(ctrl *branch.Controller, machine *transition.Machine, opts ...Option) Model {
	if machine == nil {
		machine = transition.NewMachine(transition.DefaultDurations())
	}

	ti := textinput.New()
	ti.Placeholder = "Ask something, or /help"
	ti.Prompt = "> "
	ti.CharLimit = 100000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctrl:     ctrl,
		machine:  machine,
		logger:   zap.NewNop(),
		ctx:      context.Background(),
		keys:     DefaultKeyMap(),
		theme:    styles.NewTheme(),
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		help:     help.New(),
		savePath: DefaultSavePath,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.input.PromptStyle = m.theme.InputPrompt
	m.refresh()
	return m
}

// Init starts the cursor blink, the spinner and the event listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.events != nil {
		cmds = append(cmds, m.events.listen())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case NodeChangedMsg:
		m.refresh()
		if m.events != nil {
			return m, m.events.listen()
		}
		return m, nil

	case SubmissionDoneMsg:
		if msg.Failure != "" {
			m.setNotice("stream failed: "+msg.Failure, true)
		} else {
			m.setNotice("", false)
		}
		m.refresh()
		return m, nil

	case TransitionTickMsg:
		return m.handleTransitionTick(msg)

	case NoticeMsg:
		m.setNotice(msg.Text, msg.Error)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.help.Width = msg.Width
	m.input.Width = max(10, msg.Width-4)

	// header + status + input + separators
	chrome := 5
	m.viewport.Width = msg.Width
	m.viewport.Height = max(3, msg.Height-chrome)
	m.ready = true
	m.refresh()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	graphView := m.machine.State().View == transition.ViewGraph

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.ToggleView):
		m.machine.ToggleView()
		m.syncCursor()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if state, _ := m.ctrl.Compose(); state == branch.ComposeReady {
			m.ctrl.CancelBranch()
			m.setNotice("branch cancelled", false)
		} else if graphView {
			m.machine.SetView(transition.ViewFocused)
		}
		return m, nil

	case graphView && key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case graphView && key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.treeRows())-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if graphView && strings.TrimSpace(m.input.Value()) == "" {
			return m.openCursor()
		}
		input := m.input.Value()
		m.input.Reset()
		return m.submit(input)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// openCursor navigates to the node under the graph cursor.
func (m Model) openCursor() (tea.Model, tea.Cmd) {
	rows := m.treeRows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return m, nil
	}
	return m.navigate(rows[m.cursor].node.ID)
}

// =============================================================================
// SUBMISSION
// =============================================================================

func (m Model) submit(input string) (tea.Model, tea.Cmd) {
	input = strings.TrimSpace(input)
	if input == "" {
		return m, nil
	}
	if cmd, ok := ParseCommand(input); ok {
		return m.runCommand(cmd)
	}

	sub, err := m.ctrl.Submit(m.ctx, input)
	return m.started(sub, err)
}

func (m Model) started(sub *branch.Submission, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		m.setNotice(describeError(err), true)
		return m, nil
	}
	m.setNotice("", false)
	m.refresh()

	cmds := []tea.Cmd{waitFor(sub)}
	if sub.Kind == branch.KindBranch {
		cmds = append(cmds, m.scheduleTick())
	}
	return m, tea.Batch(cmds...)
}

// waitFor reports when sub has finished streaming.
func waitFor(sub *branch.Submission) tea.Cmd {
	return func() tea.Msg {
		<-sub.Done()
		return SubmissionDoneMsg{NodeID: sub.NodeID, Kind: sub.Kind, Failure: sub.Failure()}
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// scheduleTick arms the next transition tick, or nothing when idle.
func (m Model) scheduleTick() tea.Cmd {
	delay := m.machine.Delay()
	if delay <= 0 {
		return nil
	}
	gen := m.machine.Generation()
	return tea.Tick(delay, func(time.Time) tea.Msg { return TransitionTickMsg{Gen: gen} })
}

func (m Model) handleTransitionTick(msg TransitionTickMsg) (tea.Model, tea.Cmd) {
	st, moved := m.machine.TickIf(msg.Gen)
	if !moved {
		return m, nil
	}
	if st.Stage == transition.StageIdle {
		m.refresh()
	}
	m.syncCursor()
	return m, m.scheduleTick()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (m Model) runCommand(cmd Command) (tea.Model, tea.Cmd) {
	switch cmd.Name {
	case "branch", "b":
		excerpt, question, err := ParseBranchArgs(cmd.Args)
		if err != nil {
			m.setNotice(err.Error(), true)
			return m, nil
		}
		sub, err := m.ctrl.StartBranch(m.ctx, excerpt, question)
		return m.started(sub, err)

	case "select", "s":
		if err := m.ctrl.BeginBranch(cmd.Args); err != nil {
			m.setNotice("usage: /select <excerpt>", true)
			return m, nil
		}
		m.setNotice("next message branches from the selection", false)
		return m, nil

	case "cancel":
		m.ctrl.CancelBranch()
		m.setNotice("branch cancelled", false)
		return m, nil

	case "goto", "g":
		id, err := resolveNode(m.ctrl.Graph(), cmd.Args)
		if err != nil {
			m.setNotice(describeError(err), true)
			return m, nil
		}
		return m.navigate(id)

	case "graph":
		m.machine.ToggleView()
		m.syncCursor()
		return m, nil

	case "save":
		path := cmd.Args
		if path == "" {
			path = m.savePath
		}
		if err := m.ctrl.Graph().Save(path); err != nil {
			m.logger.Error("save failed", zap.String("path", path), zap.Error(err))
			m.setNotice(err.Error(), true)
			return m, nil
		}
		m.setNotice("saved "+path, false)
		return m, nil

	case "export":
		return m.export(cmd.Args)

	case "help", "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "quit", "q", "exit":
		m.quitting = true
		return m, tea.Quit

	default:
		m.setNotice(fmt.Sprintf("unknown command /%s (try /help)", cmd.Name), true)
		return m, nil
	}
}

func (m Model) navigate(id string) (tea.Model, tea.Cmd) {
	if err := m.ctrl.Navigate(id); err != nil {
		m.setNotice(describeError(err), true)
		return m, nil
	}
	m.machine.SetView(transition.ViewFocused)
	m.setNotice("", false)
	m.refresh()
	return m, nil
}

func (m Model) export(args string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		m.setNotice("usage: /export <json|md|svg> [dir]", true)
		return m, nil
	}
	format, err := export.ParseFormat(fields[0])
	if err != nil {
		m.setNotice(err.Error(), true)
		return m, nil
	}
	opts := export.DefaultOptions()
	if len(fields) > 1 {
		opts.OutputDir = fields[1]
	}
	exporter, err := export.New(format, opts)
	if err != nil {
		m.setNotice(err.Error(), true)
		return m, nil
	}
	path, err := export.ExportToFile(m.ctrl.Graph(), exporter, opts)
	if err != nil {
		m.logger.Error("export failed", zap.String("format", string(format)), zap.Error(err))
		m.setNotice(err.Error(), true)
		return m, nil
	}
	m.setNotice("exported "+path, false)
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeError = isErr
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if atBottom || m.ctrl.IsStreaming() {
		m.viewport.GotoBottom()
	}
}

// syncCursor puts the graph cursor on the active node.
func (m *Model) syncCursor() {
	active := m.ctrl.Graph().ActiveID()
	for i, r := range m.treeRows() {
		if r.node.ID == active {
			m.cursor = i
			return
		}
	}
}

// describeError turns controller errors into status-line text.
func describeError(err error) string {
	switch {
	case errors.Is(err, branch.ErrBusy):
		return "still streaming, wait for the answer to finish"
	case graph.IsMissingSlot(err):
		return "cannot branch yet: this node has no answer with a compute slot"
	case graph.IsFrozenNode(err):
		return "this node has branches and is read-only; continue in a branch"
	case graph.IsUnknownNode(err):
		return err.Error()
	case errors.Is(err, branch.ErrEmptyInput):
		return "nothing to send"
	default:
		return err.Error()
	}
}
