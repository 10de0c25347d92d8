package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyShapes(t *testing.T) {
	data, err := json.Marshal(Reply{Result: []any{map[string]any{"error": "column value"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":[{"error":"column value"}]}`, string(data))

	data, err = json.Marshal(Reply{Result: nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null}`, string(data))

	data, err = json.Marshal(Reply{Result: "ignored", Error: "no such table: ghosts"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"no such table: ghosts"}`, string(data))
}

func TestDecodeReply(t *testing.T) {
	reply, err := DecodeReply([]byte(`{"result":[{"n":9007199254740993}]}`))
	require.NoError(t, err)
	assert.False(t, reply.Failed())
	assert.Equal(t, []any{map[string]any{"n": json.Number("9007199254740993")}}, reply.Result)

	reply, err = DecodeReply([]byte(`{"error":"Unknown command: nope"}`))
	require.NoError(t, err)
	assert.True(t, reply.Failed())
	assert.Equal(t, "Unknown command: nope", reply.Error)

	reply, err = DecodeReply([]byte(`{"error":""}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown error", reply.Error)

	_, err = DecodeReply([]byte(`{}`))
	assert.Error(t, err)
	_, err = DecodeReply([]byte(`{"result":1} {}`))
	assert.Error(t, err)
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args.Args)

	args, err = DecodeArguments([]byte(`{"args":["SELECT ?", [1.5]]}`))
	require.NoError(t, err)
	assert.Equal(t, []any{"SELECT ?", []any{json.Number("1.5")}}, args.Args)

	_, err = DecodeArguments([]byte(`{"args":`))
	assert.Error(t, err)
}
