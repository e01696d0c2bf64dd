// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/forkchat/internal/completion/completiontest"
	"github.com/jeranaias/forkchat/internal/config"
	"github.com/jeranaias/forkchat/internal/graph"
	"github.com/jeranaias/forkchat/internal/metrics"
	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FORKCHAT_CONFIG_DIR", dir)
	for _, key := range []string{
		"FORKCHAT_BACKEND_URL",
		"FORKCHAT_MODEL",
		"FORKCHAT_BRANCH_MODE",
		"FORKCHAT_CONTEXT_WINDOW",
		"FORKCHAT_LISTEN",
		"FORKCHAT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// savedGraph writes a root with one branch and returns its path.
func savedGraph(t *testing.T) string {
	t.Helper()
	g := graph.New()
	g.InitializeRoot()
	require.NoError(t, g.AppendMessage(graph.RootID, model.NewUserMessage("why is the sky blue?")))
	slot := 0
	require.NoError(t, g.UpdateStreamingAnswer(graph.RootID, "Rayleigh scattering.", &slot))
	_, err := g.CreateBranch(graph.RootID, "Rayleigh", "who was Rayleigh?")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, g.Save(path))
	return path
}

// =============================================================================
// VERSION
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "forkchat "+Version)
	assert.Contains(t, out, "platform")
}

func TestVersionCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var resp struct {
		Success bool        `json:"success"`
		Command string      `json:"command"`
		Data    VersionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "version", resp.Command)
	assert.Equal(t, Version, resp.Data.Version)
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExportCommand_MarkdownToStdout(t *testing.T) {
	isolate(t)
	path := savedGraph(t)

	out, _, err := execute(t, "export", "--in", path, "--format", "md")
	require.NoError(t, err)
	assert.Contains(t, out, "# Conversation transcript")
	assert.Contains(t, out, "why is the sky blue?")
	assert.Contains(t, out, "who was Rayleigh?")
}

func TestExportCommand_JSON(t *testing.T) {
	isolate(t)
	path := savedGraph(t)

	out, _, err := execute(t, "export", "-i", path, "-f", "json")
	require.NoError(t, err)

	var snap graph.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	g, err := graph.Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestExportCommand_SVGToDir(t *testing.T) {
	isolate(t)
	path := savedGraph(t)
	dir := filepath.Join(t.TempDir(), "exports")

	out, _, err := execute(t, "export", "--in", path, "--format", "svg", "--out", dir, "--theme", "light")
	require.NoError(t, err)
	assert.Contains(t, out, "exported")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".svg"))
}

func TestExportCommand_Errors(t *testing.T) {
	isolate(t)
	path := savedGraph(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing in", []string{"export"}},
		{"unknown format", []string{"export", "--in", path, "--format", "pdf"}},
		{"missing file", []string{"export", "--in", filepath.Join(t.TempDir(), "nope.json")}},
		{"unknown node", []string{"export", "--in", path, "--node", "node-missing"}},
		{"bad log level", []string{"export", "--in", path, "--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigFlag_InvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backend]\nurl = \"not a url\"\n"), 0600))

	_, _, err := execute(t, "export", "--config", path, "--in", savedGraph(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.url")
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	isolate(t)
	a := &app{logLevel: "debug"}
	cfg, err := a.loadConfig(NewRootCommand())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	again, err := a.loadConfig(NewRootCommand())
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestChatLogConfig(t *testing.T) {
	dir := isolate(t)

	got := chatLogConfig(config.LogConfig{Level: "info", Format: "console"})
	assert.Equal(t, filepath.Join(dir, "forkchat.log"), got.File)
	assert.Equal(t, "json", got.Format)

	explicit := config.LogConfig{Level: "warn", Format: "console", File: "/tmp/x.log"}
	assert.Equal(t, explicit, chatLogConfig(explicit))
}

// =============================================================================
// CHAT
// =============================================================================

func TestChatCommand_RequiresTerminal(t *testing.T) {
	if IsTTY() && IsStdoutTTY() {
		t.Skip("running attached to a terminal")
	}
	isolate(t)

	_, _, err := execute(t, "chat")
	var ttyErr *TTYRequiredError
	require.True(t, errors.As(err, &ttyErr), "got %v", err)
	assert.Equal(t, "chat", ttyErr.Operation)
}

// =============================================================================
// SERVE
// =============================================================================

func TestServeStack_RunAndSave(t *testing.T) {
	slot := 0
	fake := completiontest.New(completiontest.Text(&slot, "Hello", " there"))
	cfg := config.Default()
	g := graph.New()
	stack := buildServeStack(cfg, fake, g, zap.NewNop(), metrics.New())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()
	savePath := filepath.Join(t.TempDir(), "served.json")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stack.run(ctx, ln, savePath, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(base+"/v1/graph/messages", "application/json", strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		root, ok := g.Node(graph.RootID)
		return ok && len(root.Messages) == 2 && root.HasSlot()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}

	loaded, err := graph.Load(savePath)
	require.NoError(t, err)
	root, ok := loaded.Node(graph.RootID)
	require.True(t, ok)
	assert.Equal(t, "Hello there", root.LastAssistant())
}

// =============================================================================
// HELPERS
// =============================================================================

func TestOpenGraph(t *testing.T) {
	g, err := openGraph("")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())

	g, err = openGraph(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0600))
	_, err = openGraph(bad)
	assert.Error(t, err)

	g, err = openGraph(savedGraph(t))
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestJSONErrorResponse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONErrorResponse("export", errors.New("boom")).Print(&buf))

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)
}
