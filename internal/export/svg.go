// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/layout"
	"github.com/jeranaias/forkchat/internal/util"
)

// =============================================================================
// SVG EXPORTER
// =============================================================================

const (
	boxWidth  = 220
	boxHeight = 84
	margin    = 40
)

type palette struct {
	background string
	node       string
	frozen     string
	stroke     string
	active     string
	edge       string
	text       string
	muted      string
}

var themes = map[string]palette{
	"dark": {
		background: "#1e1e2e",
		node:       "#313244",
		frozen:     "#45475a",
		stroke:     "#6c7086",
		active:     "#f9e2af",
		edge:       "#89b4fa",
		text:       "#cdd6f4",
		muted:      "#a6adc8",
	},
	"light": {
		background: "#eff1f5",
		node:       "#ffffff",
		frozen:     "#dce0e8",
		stroke:     "#9ca0b0",
		active:     "#df8e1d",
		edge:       "#1e66f5",
		text:       "#4c4f69",
		muted:      "#6c6f85",
	},
}

// SVG draws g at its layout positions using the dark theme.
func SVG(g *graph.Graph, w io.Writer) error {
	return drawSVG(g, w, themes["dark"])
}

// SVGExporter exports graph diagrams to SVG format.
type SVGExporter struct {
	options *Options
}

// NewSVGExporter creates a new SVG exporter.
func NewSVGExporter(opts *Options) *SVGExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &SVGExporter{options: opts}
}

// Export draws the graph diagram.
func (e *SVGExporter) Export(g *graph.Graph) ([]byte, error) {
	p, ok := themes[e.options.Theme]
	if !ok {
		p = themes["dark"]
	}
	var buf bytes.Buffer
	if err := drawSVG(g, &buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for SVG.
func (e *SVGExporter) FileExtension() string {
	return ".svg"
}

// MimeType returns the MIME type for SVG.
func (e *SVGExporter) MimeType() string {
	return "image/svg+xml"
}

// =============================================================================
// DRAWING
// =============================================================================

func drawSVG(g *graph.Graph, w io.Writer, p palette) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}

	nodes := g.Nodes()
	positions := make(map[string]layout.Position, len(nodes))
	for _, n := range nodes {
		positions[n.ID] = n.Position
	}
	bounds := layout.Bounds(positions)

	width := int(bounds.Width()) + boxWidth + 2*margin
	height := int(bounds.Height()) + boxHeight + 2*margin

	// Box top-left corner for a layout position.
	corner := func(pos layout.Position) (int, int) {
		return int(pos.X-bounds.MinX) + margin, int(pos.Y-bounds.MinY) + margin
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Title("forkchat conversation graph")
	canvas.Rect(0, 0, width, height, "fill:"+p.background)

	if len(nodes) == 0 {
		canvas.Text(width/2, height/2, "empty graph", "text-anchor:middle;font-family:sans-serif;fill:"+p.muted)
		canvas.End()
		return nil
	}

	// Edges first so boxes sit on top.
	canvas.Group(`class="edges"`, fmt.Sprintf("fill:none;stroke:%s;stroke-width:2", p.edge))
	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		parent, ok := positions[n.ParentID]
		if !ok {
			continue
		}
		px, py := corner(parent)
		cx, cy := corner(n.Position)
		sx, sy := px+boxWidth, py+boxHeight/2
		ex, ey := cx, cy+boxHeight/2
		mid := (sx + ex) / 2
		canvas.Path(fmt.Sprintf("M%d,%d C%d,%d %d,%d %d,%d", sx, sy, mid, sy, mid, ey, ex, ey))
	}
	canvas.Gend()

	active := g.ActiveID()
	for _, n := range nodes {
		x, y := corner(n.Position)

		fill := p.node
		if n.IsFrozen {
			fill = p.frozen
		}
		stroke, strokeWidth := p.stroke, 1
		if n.ID == active {
			stroke, strokeWidth = p.active, 3
		}

		canvas.Gid(n.ID)
		canvas.Title(nodeTitle(n))
		canvas.Roundrect(x, y, boxWidth, boxHeight, 10, 10,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%d", fill, stroke, strokeWidth))
		canvas.Text(x+12, y+28, nodeLabel(n),
			"font-family:sans-serif;font-size:14px;font-weight:bold;fill:"+p.text)
		canvas.Text(x+12, y+52, nodeDetail(n),
			"font-family:sans-serif;font-size:12px;fill:"+p.muted)
		if n.ExcerptOrigin != "" {
			canvas.Text(x+12, y+72, "“"+util.Label(n.ExcerptOrigin, 28)+"”",
				"font-family:sans-serif;font-size:11px;font-style:italic;fill:"+p.muted)
		}
		canvas.Gend()
	}

	canvas.End()
	return nil
}

func nodeLabel(n graph.Node) string {
	if n.IsRoot() {
		return "Root"
	}
	return util.Label(n.UserQuestion, 26)
}

func nodeDetail(n graph.Node) string {
	parts := []string{fmt.Sprintf("%d messages", len(n.Messages))}
	if n.SlotID != nil {
		parts = append(parts, fmt.Sprintf("slot %d", *n.SlotID))
	}
	if n.IsFrozen {
		parts = append(parts, "frozen")
	}
	return strings.Join(parts, " · ")
}

func nodeTitle(n graph.Node) string {
	if n.IsRoot() {
		return n.ID
	}
	return n.ID + ": " + util.OneLine(n.UserQuestion)
}
