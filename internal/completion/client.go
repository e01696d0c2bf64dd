// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the completion client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same Type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeConnection
	ErrTypeStatus
	ErrTypeTruncated
	ErrTypeInvalidRequest
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning = &ClientError{Type: ErrTypeNotRunning, Message: "completion backend is not reachable"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrTruncated  = &ClientError{Type: ErrTypeTruncated, Message: "unexpected end of stream"}
)

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the completion client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://localhost:8080)
	BaseURL string

	// Model is sent with each request when set.
	Model string

	// Timeout bounds non-streaming requests such as Health (default: 10s).
	// Streams are bounded only by their context.
	Timeout time.Duration

	// Logger receives request-level events (default: no-op).
	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is an HTTP implementation of Service. It is safe for concurrent
// use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a client, filling zero values from DefaultConfig.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		logger:       logger,
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Health checks that the backend answers GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Type: ErrTypeStatus, Message: "unexpected status from backend: " + resp.Status}
	}
	return nil
}

// StreamChat implements Service.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, cb Callbacks) {
	req.Stream = true
	if req.Model == "" {
		req.Model = c.config.Model
	}
	c.stream(ctx, "/v1/chat/completions", req, cb)
}

// StreamBranch implements Service.
func (c *Client) StreamBranch(ctx context.Context, req BranchRequest, cb Callbacks) {
	req.Stream = true
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.BranchMode == "" {
		req.BranchMode = ModeReuseKV
	}
	if req.ContextWindow <= 0 {
		req.ContextWindow = DefaultContextWindow
	}
	c.stream(ctx, "/v1/chat/branch", req, cb)
}

func (c *Client) stream(ctx context.Context, path string, body any, cb Callbacks) {
	cb = terminalOnce(cb)
	start := time.Now()

	payload, err := json.Marshal(body)
	if err != nil {
		cb.OnError((&ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}).Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		cb.OnError((&ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}).Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		cerr := transportError(err)
		c.logger.Warn("completion request failed", zap.String("path", path), zap.Error(cerr))
		cb.OnError(cerr.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cerr := statusError(resp)
		c.logger.Warn("completion request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		cb.OnError(cerr.Error())
		return
	}

	c.logger.Debug("completion stream opened", zap.String("path", path))
	Dispatch(ctx, NewDecoder(resp.Body), Callbacks{
		OnChunk: cb.OnChunk,
		OnDone: func() {
			c.logger.Debug("completion stream finished",
				zap.String("path", path),
				zap.Duration("took", time.Since(start)),
			)
			cb.OnDone()
		},
		OnError: cb.OnError,
	})
}

func transportError(err error) *ClientError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ClientError{Type: ErrTypeTimeout, Message: ErrTimeout.Message, Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: ErrNotRunning.Message, Cause: err}
}

// statusError builds an error from a non-200 response, preferring the
// backend's {"error":{"message":...}} body when present.
func statusError(resp *http.Response) *ClientError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if msg, ok := errorMessage(envelope.Error); ok {
			return &ClientError{Type: ErrTypeStatus, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)}
		}
	}
	return &ClientError{Type: ErrTypeStatus, Message: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)}
}
