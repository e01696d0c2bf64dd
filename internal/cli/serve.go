// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/completion"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/metrics"
	"github.com/jeranaias/forkchat/internal/server"
	"github.com/jeranaias/forkchat/internal/transition"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	listen string
	load   string
	save   string
}

func newServeCommand(a *app) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation graph over HTTP",
		Long: `Serve exposes one conversation graph through a JSON API for web
renderers, plus /health and Prometheus /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "listen address (overrides server.listen)")
	cmd.Flags().StringVar(&f.load, "load", "", "serve a saved graph")
	cmd.Flags().StringVar(&f.save, "save", "", "save the graph here on shutdown")
	return cmd
}

// serveStack is everything serve wires together.
type serveStack struct {
	graph   *graph.Graph
	server  *server.Server
	driver  *transition.Driver
	metrics *metrics.Collector
}

// buildServeStack wires graph, controller, transition driver and server
// around svc.
func buildServeStack(cfg *config.Config, svc completion.Service, g *graph.Graph, logger *zap.Logger, collector *metrics.Collector) *serveStack {
	machine := transition.NewMachine(cfg.Durations())
	driver := transition.NewDriver(machine, transition.RealScheduler{})

	ctrl := branch.New(g, svc,
		branch.WithConfig(cfg.BranchOptions()),
		branch.WithTransitions(driver),
		branch.WithLogger(logger),
		branch.WithMetrics(collector),
	)

	srv := server.New(ctrl,
		server.WithConfig(cfg.Server),
		server.WithLogger(logger),
		server.WithMetrics(collector),
		server.WithTransitions(machine),
	)
	return &serveStack{graph: g, server: srv, driver: driver, metrics: collector}
}

func (a *app) runServe(cmd *cobra.Command, f *serveFlags) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if f.listen != "" {
		cfg.Server.Listen = f.listen
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := a.newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	collector := metrics.New()
	g, err := openGraph(f.load,
		graph.WithLogger(logger),
		graph.WithLayout(cfg.LayoutOptions()),
		graph.WithLayoutObserver(collector.ObserveLayout),
	)
	if err != nil {
		return err
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	stack := buildServeStack(cfg, completion.NewClient(clientCfg), g, logger, collector)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("listening")+" http://"+ln.Addr().String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return stack.run(ctx, ln, f.save, logger)
}

// run serves on ln until ctx is done, then shuts down and optionally saves
// the graph.
func (s *serveStack) run(ctx context.Context, ln net.Listener, savePath string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	s.driver.Stop()

	if savePath != "" {
		if err := s.graph.Save(savePath); err != nil {
			return err
		}
		logger.Info("graph saved", zap.String("path", savePath), zap.Int("nodes", s.graph.Len()))
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
