// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app holds the global flags and what they resolve to.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// loadConfig resolves the configuration once per invocation.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("warning: "+err.Error()+" (using defaults)"))
	}

	if a.logLevel != "" {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = a.logLevel
	}

	a.cfg = cfg
	return cfg, nil
}

// newLogger builds a logger from cfg.
func (a *app) newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// openGraph loads the graph at path, or creates an empty one when path is
// empty or does not exist yet.
func openGraph(path string, opts ...graph.Option) (*graph.Graph, error) {
	if path == "" {
		return graph.New(opts...), nil
	}
	g, err := graph.Load(path, opts...)
	if errors.Is(err, os.ErrNotExist) {
		return graph.New(opts...), nil
	}
	return g, err
}

// =============================================================================
// COMMAND TREE
// =============================================================================

// NewRootCommand builds the forkchat command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "forkchat",
		Short: "Branching conversations with a local LLM",
		Long: `forkchat keeps a conversation as a tree. Select text from an answer,
ask a follow-up about it, and the question opens a new branch that reuses
the parent's cached context on the backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("forkchat {{.Version}}\n")

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (TOML or JSON)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	chatCmd := newChatCommand(a)
	root.AddCommand(
		chatCmd,
		newServeCommand(a),
		newExportCommand(a),
		newVersionCommand(),
	)

	// Bare "forkchat" starts a chat.
	root.RunE = chatCmd.RunE
	root.Flags().AddFlagSet(chatCmd.Flags())

	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		return err
	}
	return nil
}
