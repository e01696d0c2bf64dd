// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/jeranaias/forkchat/internal/branch"
	"github.com/jeranaias/forkchat/internal/completion"
	"github.com/jeranaias/forkchat/internal/layout"
	"github.com/jeranaias/forkchat/internal/transition"
	"github.com/jeranaias/forkchat/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the main configuration structure.
type Config struct {
	Version string `toml:"version" json:"version"`

	Backend    BackendConfig    `toml:"backend" json:"backend"`
	Branch     BranchConfig     `toml:"branch" json:"branch"`
	Layout     LayoutConfig     `toml:"layout" json:"layout"`
	Transition TransitionConfig `toml:"transition" json:"transition"`
	Server     ServerConfig     `toml:"server" json:"server"`
	Log        LogConfig        `toml:"log" json:"log"`
}

// BackendConfig locates the completion backend.
type BackendConfig struct {
	URL         string `toml:"url" json:"url" validate:"required,url"`
	Model       string `toml:"model" json:"model"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs" validate:"gte=0,lte=600"`
}

// BranchConfig controls branch requests.
type BranchConfig struct {
	Mode          string `toml:"mode" json:"mode" validate:"oneof=reuse_kv fresh"`
	ContextWindow int    `toml:"context_window" json:"context_window" validate:"gt=0,lte=8192"`
}

// LayoutConfig controls graph spacing.
type LayoutConfig struct {
	LevelSpacing   float64 `toml:"level_spacing" json:"level_spacing" validate:"gt=0"`
	SiblingSpacing float64 `toml:"sibling_spacing" json:"sibling_spacing" validate:"gt=0"`
	Distance       float64 `toml:"distance" json:"distance" validate:"gt=0"`
}

// TransitionConfig sets the branch transition stage durations in
// milliseconds.
type TransitionConfig struct {
	SwitchToGraphMs int `toml:"switch_to_graph_ms" json:"switch_to_graph_ms" validate:"gt=0"`
	DrawBranchMs    int `toml:"draw_branch_ms" json:"draw_branch_ms" validate:"gt=0"`
	FlowContextMs   int `toml:"flow_context_ms" json:"flow_context_ms" validate:"gt=0"`
	ExpandNodeMs    int `toml:"expand_node_ms" json:"expand_node_ms" validate:"gt=0"`
	ReturnToFocusMs int `toml:"return_to_focus_ms" json:"return_to_focus_ms" validate:"gt=0"`
}

// ServerConfig controls the graph HTTP API.
type ServerConfig struct {
	Listen      string   `toml:"listen" json:"listen" validate:"required,hostname_port"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins" validate:"dive,required"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" validate:"gte=0"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst" validate:"gte=0"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" json:"format" validate:"oneof=json console"`
	// File receives logs instead of stderr when set.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	d := transition.DefaultDurations()
	l := layout.DefaultConfig()
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:         completion.DefaultConfig().BaseURL,
			TimeoutSecs: 10,
		},
		Branch: BranchConfig{
			Mode:          string(completion.ModeReuseKV),
			ContextWindow: completion.DefaultContextWindow,
		},
		Layout: LayoutConfig{
			LevelSpacing:   l.LevelSpacing,
			SiblingSpacing: l.SiblingSpacing,
			Distance:       l.Distance,
		},
		Transition: TransitionConfig{
			SwitchToGraphMs: int(d.SwitchToGraph.Milliseconds()),
			DrawBranchMs:    int(d.DrawBranch.Milliseconds()),
			FlowContextMs:   int(d.FlowContext.Milliseconds()),
			ExpandNodeMs:    int(d.ExpandNode.Milliseconds()),
			ReturnToFocusMs: int(d.ReturnToFocus.Milliseconds()),
		},
		Server: ServerConfig{
			Listen:      "127.0.0.1:8090",
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   20,
			RateBurst:   40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ClientConfig returns the completion client configuration.
func (c *Config) ClientConfig() *completion.ClientConfig {
	return &completion.ClientConfig{
		BaseURL: c.Backend.URL,
		Model:   c.Backend.Model,
		Timeout: time.Duration(c.Backend.TimeoutSecs) * time.Second,
	}
}

// BranchOptions returns the branch controller configuration.
func (c *Config) BranchOptions() branch.Config {
	return branch.Config{
		BranchMode:    completion.Mode(c.Branch.Mode),
		ContextWindow: c.Branch.ContextWindow,
	}
}

// LayoutOptions returns the layout engine configuration.
func (c *Config) LayoutOptions() layout.Config {
	return layout.Config{
		LevelSpacing:   c.Layout.LevelSpacing,
		SiblingSpacing: c.Layout.SiblingSpacing,
		Distance:       c.Layout.Distance,
	}
}

// Durations returns the transition stage durations.
func (c *Config) Durations() transition.Durations {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return transition.Durations{
		SwitchToGraph: ms(c.Transition.SwitchToGraphMs),
		DrawBranch:    ms(c.Transition.DrawBranchMs),
		FlowContext:   ms(c.Transition.FlowContextMs),
		ExpandNode:    ms(c.Transition.ExpandNodeMs),
		ReturnToFocus: ms(c.Transition.ReturnToFocusMs),
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the forkchat configuration directory. FORKCHAT_CONFIG_DIR
// overrides the default of ~/.forkchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("FORKCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".forkchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory. Tries TOML first,
// then JSON, and falls back to defaults. Environment overrides are applied
// last. A file that fails to parse is reported alongside the defaults.
func Load() (*Config, error) {
	var loadErr error

	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		if errors.As(err, new(ValidateErrors)) {
			return nil, err
		}
		if loadErr == nil {
			loadErr = err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads a TOML or JSON file (by extension) with defaults,
// environment overrides and validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg and fills missing values.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file into cfg and fills missing values.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults replaces zero values with defaults.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Version == "" {
		cfg.Version = d.Version
	}

	// Backend
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = d.Backend.URL
	}
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}

	// Branch
	if cfg.Branch.Mode == "" {
		cfg.Branch.Mode = d.Branch.Mode
	}
	if cfg.Branch.ContextWindow == 0 {
		cfg.Branch.ContextWindow = d.Branch.ContextWindow
	}

	// Layout
	if cfg.Layout.LevelSpacing == 0 {
		cfg.Layout.LevelSpacing = d.Layout.LevelSpacing
	}
	if cfg.Layout.SiblingSpacing == 0 {
		cfg.Layout.SiblingSpacing = d.Layout.SiblingSpacing
	}
	if cfg.Layout.Distance == 0 {
		cfg.Layout.Distance = d.Layout.Distance
	}

	// Transition
	if cfg.Transition.SwitchToGraphMs == 0 {
		cfg.Transition.SwitchToGraphMs = d.Transition.SwitchToGraphMs
	}
	if cfg.Transition.DrawBranchMs == 0 {
		cfg.Transition.DrawBranchMs = d.Transition.DrawBranchMs
	}
	if cfg.Transition.FlowContextMs == 0 {
		cfg.Transition.FlowContextMs = d.Transition.FlowContextMs
	}
	if cfg.Transition.ExpandNodeMs == 0 {
		cfg.Transition.ExpandNodeMs = d.Transition.ExpandNodeMs
	}
	if cfg.Transition.ReturnToFocusMs == 0 {
		cfg.Transition.ReturnToFocusMs = d.Transition.ReturnToFocusMs
	}

	// Server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = d.Server.Listen
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = d.Server.CORSOrigins
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with a short header, mode 0600.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# forkchat configuration file\n")
	buf.WriteString("# Generated by forkchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON, mode 0600.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field against its validate tag. Field names in the
// result use the TOML key path, e.g. "branch.context_window".
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make(ValidateErrors, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		errs = append(errs, ValidationError{Field: field, Message: describe(fe)})
	}
	return errs
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - FORKCHAT_BACKEND_URL: overrides backend.url
//   - FORKCHAT_MODEL: overrides backend.model
//   - FORKCHAT_BRANCH_MODE: overrides branch.mode
//   - FORKCHAT_CONTEXT_WINDOW: overrides branch.context_window
//   - FORKCHAT_LISTEN: overrides server.listen
//   - FORKCHAT_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("FORKCHAT_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if model := os.Getenv("FORKCHAT_MODEL"); model != "" {
		c.Backend.Model = model
	}
	if mode := os.Getenv("FORKCHAT_BRANCH_MODE"); mode != "" {
		c.Branch.Mode = mode
	}
	if window := os.Getenv("FORKCHAT_CONTEXT_WINDOW"); window != "" {
		if n, err := strconv.Atoi(window); err == nil {
			c.Branch.ContextWindow = n
		}
	}
	if listen := os.Getenv("FORKCHAT_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if level := os.Getenv("FORKCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.CORSOrigins != nil {
		clone.Server.CORSOrigins = append([]string{}, c.Server.CORSOrigins...)
	}
	return &clone
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
