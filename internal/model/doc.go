// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message types shared by the conversation graph,
// the completion client and every renderer.
//
// # Key Types
//
//   - Role: message sender (user, assistant, system)
//   - Message: one turn of a conversation node
//
// # Usage
//
//	msg := model.NewUserMessage("why is the sky blue?")
//	reply := model.NewErrorMessage("backend unavailable")
//	// reply.Content == "Error: backend unavailable"
package model
