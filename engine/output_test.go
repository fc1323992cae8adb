package engine_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sciforge/toolbridge/engine"
)

func TestOutput_NormalizeStructured(t *testing.T) {
	t.Parallel()
	out := engine.Structured(map[string]interface{}{"count": 3})

	payload, err := out.Normalize()
	require.NoError(t, err)
	require.JSONEq(t, `{"count":3}`, string(payload))
}

func TestOutput_NormalizeTextWrapped(t *testing.T) {
	t.Parallel()
	out := engine.Text("plain answer")

	payload, err := out.Normalize()
	require.NoError(t, err)
	require.JSONEq(t, `{"result":"plain answer"}`, string(payload))
}

func TestOutput_NormalizeSerializedValidJSON(t *testing.T) {
	t.Parallel()
	out := engine.AlreadySerialized(`{"already":"json"}`)

	payload, err := out.Normalize()
	require.NoError(t, err)
	require.JSONEq(t, `{"already":"json"}`, string(payload))
}

func TestOutput_NormalizeSerializedInvalidJSONWrapped(t *testing.T) {
	t.Parallel()
	out := engine.AlreadySerialized("not json at all")

	payload, err := out.Normalize()
	require.NoError(t, err)
	require.JSONEq(t, `{"result":"not json at all"}`, string(payload))
}

func TestOutput_Text(t *testing.T) {
	t.Parallel()
	require.Equal(t, "hello", engine.Text("hello").Text())
	require.True(t, engine.Text("hello").IsText())

	serialized := engine.AlreadySerialized(`{"a":1}`)
	require.Equal(t, `{"a":1}`, serialized.Text())
	require.False(t, serialized.IsText())

	structured := engine.Structured(map[string]interface{}{"a": 1})
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(structured.Text()), &decoded))
	require.EqualValues(t, 1, decoded["a"])
}
