// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package branch

import (
	"context"
	"sync"
)

// Submission is one in-flight completion round.
type Submission struct {
	NodeID string
	Kind   Kind

	done    chan struct{}
	mu      sync.Mutex
	failure string
}

func newSubmission(nodeID string, kind Kind) *Submission {
	return &Submission{NodeID: nodeID, Kind: kind, done: make(chan struct{})}
}

// Done is closed when the stream has finished and the node is final.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission finishes or ctx ends. Stream failures
// are not errors; see Failure.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failure returns the stream error message, or "" on success. Only
// meaningful after Done is closed.
func (s *Submission) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Submission) finish(failure string) {
	s.mu.Lock()
	s.failure = failure
	s.mu.Unlock()
	close(s.done)
}
