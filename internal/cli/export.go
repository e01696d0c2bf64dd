// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/forkchat/internal/export"
	"github.com/jeranaias/forkchat/internal/graph"
)

type exportFlags struct {
	in     string
	format string
	node   string
	out    string
	theme  string
	open   bool
	noMeta bool
}

func newExportCommand(a *app) *cobra.Command {
	f := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a saved graph as JSON, Markdown or SVG",
		Long: `Export reads a graph saved with /save (or by "serve --save") and renders
it. Without --out the result is written to stdout.`,
		Example: `  forkchat export --in graph.json --format md --node node-1234
  forkchat export --in graph.json --format svg --out ./exports`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runExport(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.in, "in", "i", "", "saved graph (JSON)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "md", "output format: json, md, svg")
	cmd.Flags().StringVar(&f.node, "node", "", "node whose transcript to render (md; default: active node)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output directory (default: stdout)")
	cmd.Flags().StringVar(&f.theme, "theme", "dark", "svg theme: dark, light")
	cmd.Flags().BoolVar(&f.open, "open", false, "open the file after export")
	cmd.Flags().BoolVar(&f.noMeta, "no-metadata", false, "omit the markdown front matter")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func (a *app) runExport(cmd *cobra.Command, f *exportFlags) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}

	g, err := graph.Load(f.in, graph.WithLogger(logger), graph.WithLayout(cfg.LayoutOptions()))
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.NodeID = f.node
	opts.Theme = f.theme
	opts.IncludeMetadata = !f.noMeta
	opts.OpenAfterExport = f.open

	exporter, err := export.New(format, opts)
	if err != nil {
		return err
	}

	if f.out == "" {
		data, err := exporter.Export(g)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	opts.OutputDir = f.out
	path, err := export.ExportToFile(g, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("exported")+" "+path)
	return nil
}
