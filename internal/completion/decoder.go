// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
)

// DoneSentinel is the data payload that ends a stream.
const DoneSentinel = "[DONE]"

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader yields the payload of each "data:" line of an event stream.
// Completion backends put one JSON document per data line, so lines are
// not joined into multi-line events.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData returns the next data payload. Other fields (event:, id:,
// retry:, comments) and blank lines are skipped. Returns io.EOF at end of
// input.
func (s *SSEReader) ReadData() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}
		if err != nil && err != io.EOF {
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			return bytes.TrimPrefix(data, []byte(" ")), nil
		}
		if err == io.EOF {
			return nil, io.EOF
		}
	}
}

// =============================================================================
// DECODER
// =============================================================================

// streamChunk is the wire shape of one data payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	SlotID *int            `json:"slot_id"`
	Error  json.RawMessage `json:"error"`
}

// Decoder turns an event stream into Records.
type Decoder struct {
	sse  *SSEReader
	done bool
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{sse: NewSSEReader(r)}
}

// Next returns the next record. Payloads that are not valid JSON are
// skipped. Input ending before the done sentinel returns ErrTruncated.
// After Done or ErrorRecord, Next returns io.EOF.
func (d *Decoder) Next() (Record, error) {
	if d.done {
		return nil, io.EOF
	}
	for {
		data, err := d.sse.ReadData()
		if err == io.EOF {
			d.done = true
			return nil, ErrTruncated
		}
		if err != nil {
			d.done = true
			return nil, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		}

		if string(bytes.TrimSpace(data)) == DoneSentinel {
			d.done = true
			return Done{}, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}

		if msg, ok := errorMessage(chunk.Error); ok {
			d.done = true
			return ErrorRecord{Message: msg}, nil
		}

		delta := ContentDelta{SlotID: chunk.SlotID}
		if len(chunk.Choices) > 0 {
			delta.Text = chunk.Choices[0].Delta.Content
		}
		return delta, nil
	}
}

// errorMessage extracts a message from the "error" field, which backends
// send either as {"message": "..."} or as a bare string.
func errorMessage(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	return string(raw), true
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch drains dec into cb. It returns after exactly one of cb.OnDone or
// cb.OnError has been called.
func Dispatch(ctx context.Context, dec *Decoder, cb Callbacks) {
	cb = terminalOnce(cb)
	for {
		if err := ctx.Err(); err != nil {
			cb.OnError(err.Error())
			return
		}

		rec, err := dec.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			cb.OnError(err.Error())
			return
		}

		switch r := rec.(type) {
		case ContentDelta:
			cb.chunk(r)
		case Done:
			cb.OnDone()
			return
		case ErrorRecord:
			cb.OnError(r.Message)
			return
		}
	}
}
