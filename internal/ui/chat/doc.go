// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal front end for a branching conversation.

The chat package implements the interface using the Bubble Tea framework.
It shows either the active node's transcript (focused view) or the whole
tree (graph view) and drives the branch controller from typed input.

# Key Components

## Model (model.go)

The Model struct is the central Bubble Tea model:
  - Input line and transcript viewport
  - Graph view cursor
  - Streaming indicator fed by controller notifications
  - View-transition ticking

## Commands (commands.go)

Slash commands typed into the input line:
  - /branch <excerpt> | <question>  fork the active node
  - /select <excerpt>               arm a branch, the next input is the question
  - /cancel                         drop a pending excerpt
  - /goto <id>                      navigate (id prefix or "root")
  - /graph                          toggle focused and graph view
  - /save [path]                    write the graph as JSON
  - /export <json|md|svg> [dir]     export the graph
  - /help, /quit

## Events (messages.go)

Controller callbacks run on stream goroutines. Events bridges them into the
program: pass Events.Notify to branch.WithNotify and the model re-renders
whenever a node changes.

# Usage

	events := chat.NewEvents()
	machine := transition.NewMachine(cfg.Durations())
	ctrl := branch.New(g, client,
		branch.WithNotify(events.Notify),
		branch.WithTransitions(machine),
	)
	m := chat.New(ctrl, machine, chat.WithEvents(events))
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
*/
package chat
