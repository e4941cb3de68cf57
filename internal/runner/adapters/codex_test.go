package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
)

func TestCodexDecode_SessionConfigured(t *testing.T) {
	line := []byte(`{"type":"session_configured","session_id":"cx-1"}`)
	events, err := Codex{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventSessionInit, events[0].Type)
	assert.Equal(t, "cx-1", events[0].SessionID)
}

func TestCodexDecode_TurnStartedAndCompleted(t *testing.T) {
	started, err := Codex{}.Decode([]byte(`{"type":"turn.started"}`))
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, event.AgentEventTurnStarted, started[0].Type)

	completed, err := Codex{}.Decode([]byte(`{"type":"turn.completed","usage":{"input_tokens":3,"output_tokens":7}}`))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, event.AgentEventTurnCompleted, completed[0].Type)
	assert.Equal(t, int64(3), completed[0].Usage.InputTokens)
	assert.Equal(t, int64(7), completed[0].Usage.OutputTokens)
}

func TestCodexDecode_TurnFailed(t *testing.T) {
	events, err := Codex{}.Decode([]byte(`{"type":"turn.failed","error":"timed out"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventTurnFailed, events[0].Type)
	assert.Equal(t, "timed out", events[0].ErrorMessage)
}

func TestCodexDecode_EventMsgAgentMessage(t *testing.T) {
	line := []byte(`{"type":"event_msg","payload":{"type":"agent_message","message":"done here"}}`)
	events, err := Codex{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventAssistantMsg, events[0].Type)
	assert.Equal(t, "done here", events[0].Text)
	assert.True(t, events[0].IsFinal)
}

func TestCodexDecode_ResponseItemFunctionCall(t *testing.T) {
	line := []byte(`{"type":"response_item","payload":{"type":"function_call","call_id":"fc_1","name":"shell","arguments":"{\"command\":[\"ls\"]}"}}`)
	events, err := Codex{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventToolStarted, events[0].Type)
	assert.Equal(t, "fc_1", events[0].ToolID)
}

func TestCodexDecode_ResponseItemFunctionCallOutput(t *testing.T) {
	line := []byte(`{"type":"response_item","payload":{"type":"function_call_output","call_id":"fc_1","output":"Process exited with code 0\nOutput:\nhello\n"}}`)
	events, err := Codex{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.AgentEventToolCompleted, events[0].Type)
	assert.True(t, events[0].Success)
	assert.Equal(t, "hello\n", events[0].Result)
	require.NotNil(t, events[0].ExitCode)
	assert.Equal(t, 0, *events[0].ExitCode)
}

func TestCodexDecode_ResponseItemFunctionCallOutputNonZeroExit(t *testing.T) {
	line := []byte(`{"type":"response_item","payload":{"type":"function_call_output","call_id":"fc_2","output":"Process exited with code 1\nOutput:\nboom\n"}}`)
	events, err := Codex{}.Decode(line)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

func TestCodexDecode_MalformedLineErrors(t *testing.T) {
	_, err := Codex{}.Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestCodexSpawnArgs_IncludesResumeAndModel(t *testing.T) {
	args := Codex{}.SpawnArgs(runnerConfigFixture())
	assert.Contains(t, args, "resume")
	assert.Contains(t, args, "sess-1")
	assert.Contains(t, args, "--model")
}
