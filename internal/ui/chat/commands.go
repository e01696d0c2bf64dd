// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/forkchat/internal/graph"
)

// =============================================================================
// COMMAND PARSING
// =============================================================================

// Command is a parsed slash command.
type Command struct {
	Name string
	Args string
}

// CommandHelp lists the slash commands in display order.
var CommandHelp = []struct{ Usage, Desc string }{
	{"/branch <excerpt> | <question>", "fork the active node"},
	{"/select <excerpt>", "arm a branch; the next message is the question"},
	{"/cancel", "drop the pending excerpt"},
	{"/goto <id>", "open a node (id prefix or root)"},
	{"/graph", "toggle graph view"},
	{"/save [path]", "write the graph as JSON"},
	{"/export <json|md|svg> [dir]", "export the graph"},
	{"/help", "show commands"},
	{"/quit", "exit"},
}

// ParseCommand splits "/name args" input. ok is false for plain messages.
func ParseCommand(input string) (Command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || len(input) == 1 {
		return Command{}, false
	}
	name, args, _ := strings.Cut(input[1:], " ")
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// ErrBranchSyntax is returned for /branch without a "|" separator.
var ErrBranchSyntax = errors.New("usage: /branch <excerpt> | <question>")

// ParseBranchArgs splits "excerpt | question" at the last separator so the
// excerpt may itself contain "|".
func ParseBranchArgs(args string) (excerpt, question string, err error) {
	i := strings.LastIndex(args, "|")
	if i < 0 {
		return "", "", ErrBranchSyntax
	}
	excerpt = strings.TrimSpace(args[:i])
	question = strings.TrimSpace(args[i+1:])
	if excerpt == "" || question == "" {
		return "", "", ErrBranchSyntax
	}
	return excerpt, question, nil
}

// resolveNode finds the node whose id equals ref or uniquely starts with
// it. The "node-" prefix may be omitted.
func resolveNode(g *graph.Graph, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("usage: /goto <id>")
	}
	if _, ok := g.Node(ref); ok {
		return ref, nil
	}

	var matches []string
	for _, n := range g.Nodes() {
		if strings.HasPrefix(n.ID, ref) || strings.HasPrefix(n.ID, "node-"+ref) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &graph.Error{Kind: graph.KindUnknownNode, NodeID: ref}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous node id %q matches %d nodes", ref, len(matches))
	}
}
