package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
)

func TestOpenCodeDecode_SessionInit(t *testing.T) {
	events, err := OpenCode{}.Decode([]byte(`{"type":"session.init","session_id":"oc-1"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventSessionInit, events[0].Type)
	assert.Equal(t, "oc-1", events[0].SessionID)
}

func TestOpenCodeDecode_TextPart(t *testing.T) {
	line := []byte(`{"type":"message.part","part":{"type":"text","text":"working on it"}}`)
	events, err := OpenCode{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventAssistantMsg, events[0].Type)
	assert.Equal(t, "working on it", events[0].Text)
}

func TestOpenCodeDecode_ToolPartRunning(t *testing.T) {
	line := []byte(`{"type":"message.part","part":{"type":"tool","id":"t1","tool":"bash","state":{"status":"running","input":{"command":"ls"}}}}`)
	events, err := OpenCode{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventToolStarted, events[0].Type)
	assert.Equal(t, "t1", events[0].ToolID)
	assert.JSONEq(t, `{"command":"ls"}`, events[0].Arguments)
}

func TestOpenCodeDecode_ToolPartCompleted(t *testing.T) {
	line := []byte(`{"type":"message.part","part":{"type":"tool","id":"t1","tool":"bash","state":{"status":"completed","output":"done"}}}`)
	events, err := OpenCode{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventToolCompleted, events[0].Type)
	assert.True(t, events[0].Success)
	assert.Equal(t, "done", events[0].Result)
}

func TestOpenCodeDecode_ToolPartError(t *testing.T) {
	line := []byte(`{"type":"message.part","part":{"type":"tool","id":"t1","tool":"bash","state":{"status":"error","output":"failed"}}}`)
	events, err := OpenCode{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

func TestOpenCodeDecode_TurnCompletedAndFailed(t *testing.T) {
	completed, err := OpenCode{}.Decode([]byte(`{"type":"turn.completed","usage":{"input_tokens":1,"output_tokens":2}}`))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, event.AgentEventTurnCompleted, completed[0].Type)

	failed, err := OpenCode{}.Decode([]byte(`{"type":"turn.failed","error":"oops"}`))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, event.AgentEventTurnFailed, failed[0].Type)
	assert.Equal(t, "oops", failed[0].ErrorMessage)
}

func TestOpenCodeDecode_MalformedLineErrors(t *testing.T) {
	_, err := OpenCode{}.Decode([]byte(`{bad`))
	assert.Error(t, err)
}

func TestOpenCodeSpawnArgs_IncludesSessionAndModel(t *testing.T) {
	args := OpenCode{}.SpawnArgs(runnerConfigFixture())
	assert.Contains(t, args, "--session")
	assert.Contains(t, args, "sess-1")
	assert.Contains(t, args, "--model")
}
