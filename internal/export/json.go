// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/forkchat/internal/graph"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSON renders the graph snapshot as indented JSON. The output can be read
// back with graph.Load.
func JSON(g *graph.Graph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	return json.MarshalIndent(g.Snapshot(), "", "  ")
}

// JSONExporter exports graphs to JSON format.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a graph to JSON format.
func (e *JSONExporter) Export(g *graph.Graph) ([]byte, error) {
	return JSON(g)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
