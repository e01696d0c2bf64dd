// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderInfo  lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	ErrorText      lipgloss.Style
	Body           lipgloss.Style
	Excerpt        lipgloss.Style

	// ==========================================================================
	// GRAPH STYLES
	// ==========================================================================

	TreeEdge   lipgloss.Style
	NodeNormal lipgloss.Style
	NodeActive lipgloss.Style
	NodeFrozen lipgloss.Style
	NodeCursor lipgloss.Style
	NodeNew    lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputPrompt  lipgloss.Style
	Pending      lipgloss.Style
	StatusBar    lipgloss.Style
	StatusIdle   lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusError  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Muted        lipgloss.Style
}

// NewTheme builds the theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()

	return &Theme{
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,

		Header: lipgloss.NewStyle().
			Background(SurfaceDim).
			Padding(0, 1),
		HeaderTitle: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		HeaderInfo: lipgloss.NewStyle().
			Foreground(TextSecondary),

		UserLabel: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		AssistantLabel: lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true),
		SystemLabel: lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true),
		ErrorText: lipgloss.NewStyle().
			Foreground(Rose),
		Body: lipgloss.NewStyle().
			Foreground(TextPrimary).
			PaddingLeft(2),
		Excerpt: lipgloss.NewStyle().
			Foreground(TextSecondary).
			Italic(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(Amber).
			PaddingLeft(1),

		TreeEdge: lipgloss.NewStyle().
			Foreground(TextMuted),
		NodeNormal: lipgloss.NewStyle().
			Foreground(TextPrimary),
		NodeActive: lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true),
		NodeFrozen: lipgloss.NewStyle().
			Foreground(Slate),
		NodeCursor: lipgloss.NewStyle().
			Foreground(TextInverse).
			Background(Purple),
		NodeNew: lipgloss.NewStyle().
			Foreground(Emerald).
			Bold(true),

		InputPrompt: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		Pending: lipgloss.NewStyle().
			Foreground(Amber),
		StatusBar: lipgloss.NewStyle().
			Background(SurfaceDim).
			Foreground(TextSecondary).
			Padding(0, 1),
		StatusIdle: lipgloss.NewStyle().
			Foreground(Emerald),
		StatusBusy: lipgloss.NewStyle().
			Foreground(Amber),
		StatusError: lipgloss.NewStyle().
			Foreground(Rose),
		ShortcutKey: lipgloss.NewStyle().
			Foreground(Cyan),
		ShortcutDesc: lipgloss.NewStyle().
			Foreground(TextMuted),
		Muted: lipgloss.NewStyle().
			Foreground(TextMuted),
	}
}
