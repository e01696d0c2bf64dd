// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation graph out as JSON, a Markdown
// transcript or an SVG diagram.
//
// # Key Types
//
//   - Format: Export format enumeration (JSON, Markdown, SVG)
//   - Exporter: Main export interface
//   - Options: Export configuration options
//
// # Supported Formats
//
//   - JSON: the graph snapshot, loadable with graph.Load
//   - Markdown: the root-to-node transcript with branch excerpts
//   - SVG: the tree drawn at its layout positions
//
// # Usage
//
//	exporter, err := export.New(export.FormatMarkdown, nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(g, exporter, nil)
package export
