// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/model"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// Markdown renders the transcript from the root down to nodeID. Each branch
// on the path opens with the excerpt it was forked from. An empty nodeID
// means the active node.
func Markdown(g *graph.Graph, nodeID string) ([]byte, error) {
	return NewMarkdownExporter(&Options{NodeID: nodeID}).Export(g)
}

// MarkdownExporter exports transcripts to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts the root-to-node path of g to Markdown.
func (e *MarkdownExporter) Export(g *graph.Graph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}

	target := e.options.NodeID
	if target == "" {
		target = g.ActiveID()
	}
	path := g.PathTo(target)
	if len(path) == 0 {
		return nil, fmt.Errorf("cannot export transcript: %w", &graph.Error{Kind: graph.KindUnknownNode, NodeID: target})
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("node: %s\n", escapeYAML(target)))
		sb.WriteString(fmt.Sprintf("depth: %d\n", len(path)-1))
		sb.WriteString(fmt.Sprintf("nodes: %d\n", g.Len()))
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: forkchat\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# Conversation transcript\n\n")

	for i, id := range path {
		n, ok := g.Node(id)
		if !ok {
			continue
		}

		if n.IsRoot() {
			sb.WriteString("## Root\n\n")
		} else {
			sb.WriteString(fmt.Sprintf("## Branch %d: %s\n\n", i, escapeMarkdown(util.Label(n.UserQuestion, 80))))
			if n.ExcerptOrigin != "" {
				sb.WriteString(quote(n.ExcerptOrigin))
				sb.WriteString("\n\n")
			}
		}

		for _, msg := range n.Messages {
			sb.WriteString(fmt.Sprintf("### %s\n\n", formatRoleLabel(msg.Role)))
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
		}

		if i < len(path)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(role model.Role) string {
	if role == "" {
		return "Unknown"
	}
	return "[" + role.DisplayName() + "]"
}

// quote renders s as a Markdown blockquote.
func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
