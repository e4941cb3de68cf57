package claude

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDecode_SimpleUserAssistantExchange(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hello"}}`,
		`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","requestId":"r1","message":{"role":"assistant","content":[{"type":"text","text":"hi there"}],"usage":{"input_tokens":10,"output_tokens":5}}}`,
	)

	messages, debug, err := Decode(path)
	require.NoError(t, err)
	require.Len(t, debug, 2)

	require.Len(t, messages, 3)
	assert.Equal(t, event.KindUser, messages[0].Kind)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, event.KindAssistant, messages[1].Kind)
	assert.Equal(t, "hi there", messages[1].Content)
	assert.Equal(t, event.KindSummary, messages[2].Kind)
	require.NotNil(t, messages[2].Summary)
	assert.Equal(t, int64(10), messages[2].Summary.InputTokens)
	assert.Equal(t, int64(5), messages[2].Summary.OutputTokens)
}

func TestDecode_ToolUseCorrelatesWithToolResult(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"list files"}}`,
		`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","requestId":"r1","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_1","name":"exec_command","input":{"command":"ls -la"}}],"usage":{"input_tokens":1,"output_tokens":1}}}`,
		`{"type":"user","timestamp":"2026-01-01T00:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"file1\nfile2"}]}}`,
	)

	messages, _, err := Decode(path)
	require.NoError(t, err)

	var toolMsgs []event.Message
	for _, m := range messages {
		if m.Kind == event.KindTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 1)
	assert.Equal(t, "Bash", toolMsgs[0].ToolName)
	assert.Equal(t, "ls -la", toolMsgs[0].ToolArgs)
	assert.Equal(t, "file1\nfile2", toolMsgs[0].Content)
}

func TestDecode_ToolResultWithoutMatchingToolUseIsSkipped(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"unknown_id","content":"orphaned"}]}}`,
	)

	messages, debug, err := Decode(path)
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, debug, 1)
	assert.Equal(t, "SKIP", debug[0].Status)
}

func TestDecode_MalformedLineProducesErrorDebugEntry(t *testing.T) {
	path := writeTranscript(t, `{"type": not json`)

	messages, debug, err := Decode(path)
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, debug, 1)
	assert.Equal(t, "ERROR", debug[0].Status)
}

func TestDecode_TurnSummaryCollectsFilesChanged(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"edit two files"}}`,
		`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","requestId":"r1","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_1","name":"Write","input":{"file_path":"a.go"}}],"usage":{"input_tokens":1,"output_tokens":1}}}`,
		`{"type":"user","timestamp":"2026-01-01T00:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"wrote"}]}}`,
		`{"type":"assistant","timestamp":"2026-01-01T00:00:03Z","requestId":"r1","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu_2","name":"Edit","input":{"file_path":"b.go"}}]}}`,
		`{"type":"user","timestamp":"2026-01-01T00:00:04Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_2","content":"edited"}]}}`,
	)

	messages, _, err := Decode(path)
	require.NoError(t, err)

	var summary *event.Message
	for i := range messages {
		if messages[i].Kind == event.KindSummary {
			summary = &messages[i]
		}
	}
	require.NotNil(t, summary)
	assert.Equal(t, []string{"a.go", "b.go"}, summary.Summary.FilesChanged)
}

func TestDecode_NoSummaryWhenNoUsageOrDuration(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}`,
		`{"type":"assistant","timestamp":"2026-01-01T00:00:00Z","message":{"role":"assistant","content":[{"type":"text","text":"hey"}]}}`,
	)

	messages, _, err := Decode(path)
	require.NoError(t, err)
	for _, m := range messages {
		assert.NotEqual(t, event.KindSummary, m.Kind)
	}
}
