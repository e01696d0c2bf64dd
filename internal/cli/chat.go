// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/completion"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/transition"
	"github.com/jeranaias/forkchat/internal/ui/chat"
)

type chatFlags struct {
	load string
	save string
}

func newChatCommand(a *app) *cobra.Command {
	f := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive branching conversation",
		Long: `Chat opens the terminal interface. Type to talk to the model, use
/branch <excerpt> | <question> to fork from part of an answer, and Tab to
switch between the transcript and the conversation tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.load, "load", "", "resume a saved graph")
	cmd.Flags().StringVar(&f.save, "save", "", "save the graph here on exit (also the /save default)")
	return cmd
}

// chatLogConfig keeps log output off the terminal the UI is drawing on.
func chatLogConfig(cfg config.LogConfig) config.LogConfig {
	if cfg.File != "" {
		return cfg
	}
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		dir = os.TempDir()
	}
	cfg.File = filepath.Join(dir, "forkchat.log")
	cfg.Format = "json"
	return cfg
}

func (a *app) runChat(cmd *cobra.Command, f *chatFlags) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(chatLogConfig(cfg.Log))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	g, err := openGraph(f.load,
		graph.WithLogger(logger),
		graph.WithLayout(cfg.LayoutOptions()),
	)
	if err != nil {
		return err
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	client := completion.NewClient(clientCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := client.Health(healthCtx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render(
			fmt.Sprintf("warning: backend at %s is not reachable: %v", client.BaseURL(), err)))
		logger.Warn("backend health check failed", zap.String("url", client.BaseURL()), zap.Error(err))
	}
	cancel()

	events := chat.NewEvents()
	machine := transition.NewMachine(cfg.Durations())
	ctrl := branch.New(g, client,
		branch.WithConfig(cfg.BranchOptions()),
		branch.WithTransitions(machine),
		branch.WithLogger(logger),
		branch.WithNotify(events.Notify),
	)

	opts := []chat.Option{
		chat.WithEvents(events),
		chat.WithLogger(logger),
		chat.WithContext(ctx),
	}
	if f.save != "" {
		opts = append(opts, chat.WithSavePath(f.save))
	}

	logger.Info("chat started",
		zap.String("backend", client.BaseURL()),
		zap.Int("nodes", g.Len()),
	)

	p := tea.NewProgram(chat.New(ctrl, machine, opts...), tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}

	if f.save != "" {
		if err := g.Save(f.save); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("saved")+" "+f.save)
	}
	return nil
}
