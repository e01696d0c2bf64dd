// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_ReadData(t *testing.T) {
	input := ": keep-alive\n" +
		"event: message\n" +
		"data: {\"a\":1}\n\n" +
		"id: 7\r\n" +
		"data:{\"b\":2}\r\n\r\n" +
		"data: [DONE]"

	r := NewSSEReader(strings.NewReader(input))

	var got []string
	for {
		data, err := r.ReadData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(data))
	}
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, "[DONE]"}, got)
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func collect(t *testing.T, input string) ([]Record, error) {
	t.Helper()
	dec := NewDecoder(strings.NewReader(input))
	var out []Record
	for {
		rec, err := dec.Next()
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestDecoder_ContentAndDone(t *testing.T) {
	input := `data: {"choices":[{"delta":{"content":"Hel"}}],"slot_id":3}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	recs, err := collect(t, input)
	assert.Equal(t, io.EOF, err)
	require.Len(t, recs, 3)

	first := recs[0].(ContentDelta)
	assert.Equal(t, "Hel", first.Text)
	require.NotNil(t, first.SlotID)
	assert.Equal(t, 3, *first.SlotID)

	second := recs[1].(ContentDelta)
	assert.Equal(t, "lo", second.Text)
	assert.Nil(t, second.SlotID)

	assert.Equal(t, Done{}, recs[2])
}

func TestDecoder_ErrorRecord(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{"object", `{"error":{"message":"slot evicted"}}`, "slot evicted"},
		{"string", `{"error":"bad request"}`, "bad request"},
		{"no message", `{"error":{"code":500}}`, `{"code":500}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := collect(t, "data: "+tt.chunk+"\n\ndata: [DONE]\n\n")
			assert.Equal(t, io.EOF, err)
			require.Len(t, recs, 1)
			assert.Equal(t, ErrorRecord{Message: tt.want}, recs[0])
		})
	}
}

func TestDecoder_NullErrorIsContent(t *testing.T) {
	recs, _ := collect(t, `data: {"choices":[{"delta":{"content":"x"}}],"error":null}`+"\n\ndata: [DONE]\n")
	require.Len(t, recs, 2)
	assert.Equal(t, "x", recs[0].(ContentDelta).Text)
}

func TestDecoder_SkipsMalformed(t *testing.T) {
	input := "data: {not json\n\n" +
		`data: {"choices":[{"delta":{"content":"ok"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	recs, err := collect(t, input)
	assert.Equal(t, io.EOF, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "ok", recs[0].(ContentDelta).Text)
}

func TestDecoder_EmptyChoices(t *testing.T) {
	recs, _ := collect(t, `data: {"choices":[],"slot_id":9}`+"\n\ndata: [DONE]\n")
	require.Len(t, recs, 2)
	delta := recs[0].(ContentDelta)
	assert.Equal(t, "", delta.Text)
	assert.Equal(t, 9, *delta.SlotID)
}

func TestDecoder_TruncatedStream(t *testing.T) {
	recs, err := collect(t, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
	require.Len(t, recs, 1)
	assert.True(t, errors.Is(err, ErrTruncated))
	assert.Equal(t, "unexpected end of stream", err.Error())
}

// =============================================================================
// DISPATCH TESTS
// =============================================================================

type recorder struct {
	chunks []string
	done   int
	errs   []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChunk: func(d ContentDelta) { r.chunks = append(r.chunks, d.Text) },
		OnDone:  func() { r.done++ },
		OnError: func(msg string) { r.errs = append(r.errs, msg) },
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		chunks []string
		done   int
		errs   []string
	}{
		{
			name:   "normal",
			input:  "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\ndata: [DONE]\n\n",
			chunks: []string{"Hel", "lo"},
			done:   1,
		},
		{
			name:  "error chunk",
			input: "data: {\"error\":{\"message\":\"boom\"}}\n\ndata: [DONE]\n\n",
			errs:  []string{"boom"},
		},
		{
			name:  "second done ignored",
			input: "data: [DONE]\n\ndata: [DONE]\n\n",
			done:  1,
		},
		{
			name:   "truncated",
			input:  "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n",
			chunks: []string{"a"},
			errs:   []string{"unexpected end of stream"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r recorder
			Dispatch(context.Background(), NewDecoder(strings.NewReader(tt.input)), r.callbacks())

			assert.Equal(t, tt.chunks, r.chunks)
			assert.Equal(t, tt.done, r.done)
			assert.Equal(t, tt.errs, r.errs)
		})
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var r recorder
	Dispatch(ctx, NewDecoder(strings.NewReader("data: [DONE]\n\n")), r.callbacks())

	assert.Equal(t, 0, r.done)
	assert.Equal(t, []string{context.Canceled.Error()}, r.errs)
}

func TestTerminalOnce(t *testing.T) {
	var r recorder
	cb := terminalOnce(r.callbacks())
	cb.OnDone()
	cb.OnError("late")
	cb.OnDone()

	assert.Equal(t, 1, r.done)
	assert.Empty(t, r.errs)

	// Nil callbacks are tolerated.
	empty := terminalOnce(Callbacks{})
	empty.OnDone()
	empty.OnError("x")
	empty.chunk(ContentDelta{Text: "x"})
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeReuseKV.Valid())
	assert.True(t, ModeFresh.Valid())
	assert.False(t, Mode("warm").Valid())
}
