// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/transition"
	"github.com/jeranaias/forkchat/internal/ui/styles"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the whole screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	var body string
	if m.machine.State().View == transition.ViewGraph {
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(m.viewport.Height).
			Render(m.renderTree(m.width, m.viewport.Height))
	} else {
		body = m.viewport.View()
	}

	sep := lipgloss.NewStyle().Foreground(styles.Overlay).Render(strings.Repeat("─", max(0, m.width)))

	parts := []string{m.renderHeader(), body, sep, m.input.View(), m.renderStatus()}
	if m.showHelp {
		m.help.ShowAll = true
		parts = append(parts, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	g := m.ctrl.Graph()
	active, _ := g.Active()

	title := m.theme.HeaderTitle.Render("forkchat")
	info := m.theme.HeaderInfo.Render(fmt.Sprintf("  %s · depth %d · %d nodes",
		util.TruncateRunes(nodeLabel(active), 40), g.Depth(active.ID), g.Len()))

	return m.theme.Header.Width(max(0, m.width)).Render(title + info)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders the active node's messages.
func (m Model) renderTranscript() string {
	active, ok := m.ctrl.Graph().Active()
	if !ok {
		return m.theme.Muted.Render("no active node")
	}

	width := max(20, m.viewport.Width-2)
	var b strings.Builder

	if active.ExcerptOrigin != "" {
		b.WriteString(m.theme.Muted.Render("branched from:"))
		b.WriteByte('\n')
		b.WriteString(m.theme.Excerpt.Width(width).Render(active.ExcerptOrigin))
		b.WriteString("\n\n")
	}

	if len(active.Messages) == 0 {
		b.WriteString(m.theme.Muted.Render("Start typing to ask a question."))
		return b.String()
	}

	for i, msg := range active.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.roleLabel(msg.Role))
		b.WriteByte('\n')

		style := m.theme.Body
		if msg.IsError() {
			style = m.theme.ErrorText.PaddingLeft(2)
		}
		b.WriteString(style.Width(width).Render(msg.Content))
	}
	return b.String()
}

func (m Model) roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return m.theme.UserLabel.Render(role.DisplayName())
	case model.RoleSystem:
		return m.theme.SystemLabel.Render(role.DisplayName())
	default:
		return m.theme.AssistantLabel.Render(role.DisplayName())
	}
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatus() string {
	var parts []string

	if m.ctrl.IsStreaming() {
		parts = append(parts, m.theme.StatusBusy.Render(m.spinner.View()+"streaming"))
	} else {
		parts = append(parts, m.theme.StatusIdle.Render("ready"))
	}

	if state, excerpt := m.ctrl.Compose(); state == branch.ComposeReady {
		parts = append(parts, m.theme.Pending.Render("branching from \""+util.Label(excerpt, 30)+"\""))
	}

	if st := m.machine.State(); st.Animating {
		parts = append(parts, m.theme.Muted.Render(string(st.Stage)))
	}

	if m.notice != "" {
		style := m.theme.HeaderInfo
		if m.noticeError {
			style = m.theme.StatusError
		}
		parts = append(parts, style.Render(m.notice))
	}

	if !m.showHelp {
		parts = append(parts, m.theme.ShortcutKey.Render("F1")+" "+m.theme.ShortcutDesc.Render("help"))
	}

	return m.theme.StatusBar.Width(max(0, m.width)).Render(strings.Join(parts, "  │  "))
}
