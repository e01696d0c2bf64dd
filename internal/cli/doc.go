// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the forkchat command tree.
//
// # Commands
//
//   - chat: interactive terminal session (default when no command is given)
//   - serve: HTTP API over a single conversation graph
//   - export: render a saved graph as JSON, Markdown or SVG
//   - version: build information
//
// Every command accepts --config to point at a TOML or JSON file and
// --log-level to override the configured level. Without --config the file
// is looked up in ~/.forkchat (or $FORKCHAT_CONFIG_DIR).
//
// # Usage
//
//	func main() {
//	    if err := cli.Execute(); err != nil {
//	        os.Exit(1)
//	    }
//	}
package cli
