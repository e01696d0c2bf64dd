// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across forkchat.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing used for graph snapshots and config
//   - TruncateRunes: UTF-8 safe truncation for node labels and log fields
//   - OneLine: collapse whitespace so excerpts fit a single display row
package util
