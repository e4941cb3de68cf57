package opencode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
)

func writeJSON(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDecode_UserAndAssistantTextMessages(t *testing.T) {
	storage := t.TempDir()
	sessionID := "ses_abc"

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_1.json"),
		`{"id":"msg_1","role":"user","time":{"created":1000}}`)
	writeJSON(t, filepath.Join(storage, "part", "msg_1", "part_1.json"),
		`{"type":"text","text":"hello there"}`)

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_2.json"),
		`{"id":"msg_2","role":"assistant","time":{"created":1001}}`)
	writeJSON(t, filepath.Join(storage, "part", "msg_2", "part_1.json"),
		`{"type":"text","text":"hi back"}`)

	messages, debug, err := Decode(storage, sessionID)
	require.NoError(t, err)
	require.Len(t, debug, 2)

	require.Len(t, messages, 2)
	assert.Equal(t, event.KindUser, messages[0].Kind)
	assert.Equal(t, "hello there", messages[0].Content)
	assert.Equal(t, event.KindAssistant, messages[1].Kind)
	assert.Equal(t, "hi back", messages[1].Content)
}

func TestDecode_ToolPartBecomesToolMessage(t *testing.T) {
	storage := t.TempDir()
	sessionID := "ses_tool"

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_1.json"),
		`{"id":"msg_1","role":"assistant","time":{"created":1000}}`)
	writeJSON(t, filepath.Join(storage, "part", "msg_1", "part_1.json"),
		`{"type":"tool","tool":"bash","state":{"status":"completed","input":{"command":"echo hi"},"output":"hi\n"}}`)

	messages, _, err := Decode(storage, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, event.KindTool, messages[0].Kind)
	assert.Equal(t, "Tool", messages[0].ToolName)
	assert.Equal(t, "echo hi", messages[0].ToolArgs)
	assert.Equal(t, "hi\n", messages[0].Content)
}

func TestDecode_SummaryAssistantMessageSkipped(t *testing.T) {
	storage := t.TempDir()
	sessionID := "ses_summary"

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_1.json"),
		`{"id":"msg_1","role":"assistant","summary":true,"time":{"created":1000}}`)

	messages, debug, err := Decode(storage, sessionID)
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, debug, 1)
	assert.Equal(t, "SKIP", debug[0].Status)
	assert.Equal(t, "assistant summary", debug[0].Reason)
}

func TestDecode_OrdersByCreatedThenID(t *testing.T) {
	storage := t.TempDir()
	sessionID := "ses_order"

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_b.json"),
		`{"id":"msg_b","role":"user","time":{"created":500}}`)
	writeJSON(t, filepath.Join(storage, "part", "msg_b", "part_1.json"), `{"type":"text","text":"second"}`)

	writeJSON(t, filepath.Join(storage, "message", sessionID, "msg_a.json"),
		`{"id":"msg_a","role":"user","time":{"created":100}}`)
	writeJSON(t, filepath.Join(storage, "part", "msg_a", "part_1.json"), `{"type":"text","text":"first"}`)

	messages, _, err := Decode(storage, sessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
}
