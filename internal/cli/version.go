// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionInfo is the payload of "forkchat version --json".
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newVersionCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := currentVersion()
			if jsonOut {
				return NewJSONResponse("version", info).Print(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("forkchat "+info.Version))
			fmt.Fprintln(out, RenderField("commit", info.GitCommit))
			fmt.Fprintln(out, RenderField("built", info.BuildDate))
			fmt.Fprintln(out, RenderField("go", info.GoVersion))
			fmt.Fprintln(out, RenderField("platform", info.Platform))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}
