// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for forkchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and struct-tag validation.
//
// # Key Types
//
//   - Config: main configuration structure
//   - BackendConfig: completion backend location and model
//   - BranchConfig: branch mode and context window
//   - LayoutConfig, TransitionConfig: graph spacing and view timings
//   - ServerConfig, LogConfig: HTTP API and logging
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FORKCHAT_*)
//   - ~/.forkchat/config.toml
//   - ~/.forkchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := completion.NewClient(cfg.ClientConfig())
package config
