// Package claude decodes Claude Code's on-disk session transcripts
// (~/.claude/projects/<project>/<session_id>.jsonl) into the normalized
// event.Message sequence, replicating exactly what the live stream-json
// runner would have produced for the same session.
//
// Grounded on original_source/src/agent/history.rs's Claude-side functions
// (ClaudeToolUseInfo, ClaudeTurnTracker, convert_claude_entry_with_tools,
// format_tool_args, build_turn_summary) and restated in the per-concern
// adapter-file style used elsewhere in this module.
package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/history"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

type toolUseInfo struct {
	Name  string
	Input map[string]any
}

// rawEntry pairs one parsed jsonl record with its source line number, so
// debug entries can be emitted in source order after processing.
type rawEntry struct {
	lineNum int
	entry   map[string]any
}

type turnTracker struct {
	startedAt       *time.Time
	lastAssistantAt *time.Time
	usageByRequest  map[string][2]int64 // requestID -> (input, output), max-of-cumulative
	fallbackUsage   [2]int64
	hasTurn         bool
	filesChanged    []string
	filesSeen       map[string]bool
}

func newTurnTracker() *turnTracker {
	return &turnTracker{usageByRequest: map[string][2]int64{}}
}

func (t *turnTracker) start(startedAt *time.Time) {
	t.startedAt = startedAt
	t.lastAssistantAt = nil
	t.usageByRequest = map[string][2]int64{}
	t.fallbackUsage = [2]int64{}
	t.filesChanged = nil
	t.filesSeen = map[string]bool{}
	t.hasTurn = true
}

// recordFile appends path to the turn's files-changed list the first time
// it is seen, preserving the order tool calls appeared in.
func (t *turnTracker) recordFile(path string) {
	if path == "" || t.filesSeen[path] {
		return
	}
	if t.filesSeen == nil {
		t.filesSeen = map[string]bool{}
	}
	t.filesSeen[path] = true
	t.filesChanged = append(t.filesChanged, path)
}

func (t *turnTracker) updateAssistant(requestID string, usage [2]int64, ts *time.Time) {
	if ts != nil {
		t.lastAssistantAt = ts
	}
	if requestID != "" {
		cur := t.usageByRequest[requestID]
		if usage[0] > cur[0] {
			cur[0] = usage[0]
		}
		if usage[1] > cur[1] {
			cur[1] = usage[1]
		}
		t.usageByRequest[requestID] = cur
	} else {
		t.fallbackUsage[0] += usage[0]
		t.fallbackUsage[1] += usage[1]
	}
}

func (t *turnTracker) finish() *event.Message {
	if !t.hasTurn {
		return nil
	}
	input, output := t.fallbackUsage[0], t.fallbackUsage[1]
	for _, u := range t.usageByRequest {
		input += u[0]
		output += u[1]
	}

	var hasData bool
	summary := event.TurnSummary{}
	if input > 0 || output > 0 {
		summary.InputTokens = input
		summary.OutputTokens = output
		hasData = true
	}
	if len(t.filesChanged) > 0 {
		summary.FilesChanged = append([]string(nil), t.filesChanged...)
	}
	if t.startedAt != nil && t.lastAssistantAt != nil {
		d := t.lastAssistantAt.Sub(*t.startedAt).Seconds()
		if d < 0 {
			d = 0
		}
		if d > 0 {
			summary.DurationSecs = d
			hasData = true
		}
	}
	t.hasTurn = false
	if !hasData {
		return nil
	}
	m := event.NewSummary(summary)
	return &m
}

// Decode reads the jsonl file at path and returns the replayed chat plus a
// per-record debug log, sorted by source line order.
func Decode(path string) ([]event.Message, []history.DebugEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open claude transcript: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read claude transcript: %w", err)
	}

	var entries []rawEntry
	toolUses := map[string]toolUseInfo{}
	var debugEntries []history.DebugEntry

	for lineNum, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			debugEntries = append(debugEntries, history.DebugEntry{
				LineNumber: lineNum,
				EntryType:  "parse_error",
				Status:     history.StatusError,
				Reason:     err.Error(),
				RawJSON:    mustJSON(line),
			})
			continue
		}
		indexToolUses(parsed, toolUses)
		entries = append(entries, rawEntry{lineNum: lineNum, entry: parsed})
	}

	for _, re := range entries {
		entryType, _ := re.entry["type"].(string)
		converted := convertEntry(re.entry, toolUses)
		status, reason := debugInfo(re.entry, entryType, len(converted))
		raw, _ := json.Marshal(re.entry)
		debugEntries = append(debugEntries, history.DebugEntry{
			LineNumber: re.lineNum,
			EntryType:  entryType,
			Status:     status,
			Reason:     reason,
			RawJSON:    raw,
		})
	}

	messages := buildMessages(entries, toolUses)

	sort.SliceStable(debugEntries, func(i, j int) bool {
		return debugEntries[i].LineNumber < debugEntries[j].LineNumber
	})

	return messages, debugEntries, nil
}

func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func indexToolUses(entry map[string]any, toolUses map[string]toolUseInfo) {
	if t, _ := entry["type"].(string); t != "assistant" {
		return
	}
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return
	}
	content, _ := message["content"].([]any)
	for _, b := range content {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		if bt, _ := block["type"].(string); bt != "tool_use" {
			continue
		}
		id, _ := block["id"].(string)
		name, _ := block["name"].(string)
		if id == "" || name == "" {
			continue
		}
		input, _ := block["input"].(map[string]any)
		toolUses[id] = toolUseInfo{Name: name, Input: input}
	}
}

func buildMessages(entries []rawEntry, toolUses map[string]toolUseInfo) []event.Message {
	var messages []event.Message
	tracker := newTurnTracker()

	for _, re := range entries {
		entry := re.entry
		entryType, _ := entry["type"].(string)

		if isUserPrompt(entry) {
			if s := tracker.finish(); s != nil {
				messages = append(messages, *s)
			}
			tracker.start(parseTimestamp(entry))
		}

		converted := convertEntry(entry, toolUses)
		for _, m := range converted {
			if m.Kind == event.KindTool && isFileChangeTool(m.ToolName) {
				tracker.recordFile(m.ToolArgs)
			}
		}
		messages = append(messages, converted...)

		if entryType == "assistant" || entryType == "result" {
			if input, output, ok := extractUsage(entry); ok {
				requestID, _ := entry["requestId"].(string)
				tracker.updateAssistant(requestID, [2]int64{input, output}, parseTimestamp(entry))
			}
		}
	}

	if s := tracker.finish(); s != nil {
		messages = append(messages, *s)
	}
	return messages
}

// isFileChangeTool reports whether a Tool message's canonical name
// represents a file mutation worth recording in a turn's files_changed list.
func isFileChangeTool(name string) bool {
	switch name {
	case toolname.Write, toolname.Edit, "NotebookEdit":
		return true
	default:
		return false
	}
}

func parseTimestamp(entry map[string]any) *time.Time {
	s, _ := entry["timestamp"].(string)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func extractUsage(entry map[string]any) (input, output int64, ok bool) {
	var usage map[string]any
	if message, _ := entry["message"].(map[string]any); message != nil {
		usage, _ = message["usage"].(map[string]any)
	}
	if usage == nil {
		usage, _ = entry["usage"].(map[string]any)
	}
	if usage == nil {
		return 0, 0, false
	}
	in, inOK := numOf(usage["input_tokens"])
	out, outOK := numOf(usage["output_tokens"])
	if !inOK || !outOK {
		return 0, 0, false
	}
	return in, out, true
}

func numOf(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func isUserPrompt(entry map[string]any) bool {
	if t, _ := entry["type"].(string); t != "user" {
		return false
	}
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return false
	}
	content, hasContent := message["content"]
	if !hasContent {
		return false
	}
	if text, ok := content.(string); ok {
		return strings.TrimSpace(text) != ""
	}
	blocks, ok := content.([]any)
	if !ok {
		return false
	}
	var hasText, hasToolResult bool
	for _, b := range blocks {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		switch block["type"] {
		case "text":
			if text, _ := block["text"].(string); strings.TrimSpace(text) != "" {
				hasText = true
			}
		case "tool_result":
			hasToolResult = true
		}
	}
	return hasText || (!hasToolResult && len(blocks) > 0)
}

func convertEntry(entry map[string]any, toolUses map[string]toolUseInfo) []event.Message {
	entryType, _ := entry["type"].(string)
	switch entryType {
	case "user":
		return convertUserEntry(entry, toolUses)
	case "assistant":
		return convertAssistantEntry(entry)
	case "tool_result":
		return convertToolResultEntry(entry, toolUses, nil)
	default:
		return nil
	}
}

func convertUserEntry(entry map[string]any, toolUses map[string]toolUseInfo) []event.Message {
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return nil
	}
	content, hasContent := message["content"]
	if !hasContent {
		return nil
	}
	if text, ok := content.(string); ok {
		return []event.Message{event.NewUser(text)}
	}
	blocks, ok := content.([]any)
	if !ok {
		return nil
	}
	var out []event.Message
	for _, b := range blocks {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		switch block["type"] {
		case "tool_result":
			toolUseID, _ := block["tool_use_id"].(string)
			info, found := toolUses[toolUseID]
			if !found {
				continue
			}
			resultContent := extractToolResultContent(block["content"])
			isError, _ := block["is_error"].(bool)
			args := formatToolArgs(info.Name, info.Input)
			output := resultContent
			if isError {
				output = "Error: " + resultContent
			}
			var fileSize *int64
			if toolUseResult, _ := entry["toolUseResult"].(map[string]any); toolUseResult != nil {
				if fileObj, _ := toolUseResult["file"].(map[string]any); fileObj != nil {
					if sz, ok := numOf(fileObj["originalSize"]); ok {
						fileSize = &sz
					}
				}
			}
			msg := event.NewTool(toolname.Canonical(info.Name), args, output, nil)
			msg.FileSize = fileSize
			out = append(out, msg)
		case "text":
			if text, _ := block["text"].(string); text != "" {
				out = append(out, event.NewUser(text))
			}
		}
	}
	return out
}

func convertAssistantEntry(entry map[string]any) []event.Message {
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return nil
	}
	content, hasContent := message["content"]
	if !hasContent {
		return nil
	}
	if text, ok := content.(string); ok {
		if text == "" {
			return nil
		}
		return []event.Message{event.NewAssistant(text, false)}
	}
	blocks, ok := content.([]any)
	if !ok {
		return nil
	}
	var texts []string
	for _, b := range blocks {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		if block["type"] == "text" {
			if t, _ := block["text"].(string); t != "" {
				texts = append(texts, t)
			}
		}
		// tool_use blocks are NOT emitted here; matched via tool_result.
	}
	if len(texts) == 0 {
		return nil
	}
	return []event.Message{event.NewAssistant(strings.Join(texts, "\n"), false)}
}

func convertToolResultEntry(entry map[string]any, toolUses map[string]toolUseInfo, _ any) []event.Message {
	toolUseID, _ := entry["tool_use_id"].(string)
	info, found := toolUses[toolUseID]
	if !found {
		return nil
	}
	content := extractToolResultContent(entry["content"])
	isError, _ := entry["is_error"].(bool)
	args := formatToolArgs(info.Name, info.Input)
	output := content
	if isError {
		output = "Error: " + content
	}
	return []event.Message{event.NewTool(toolname.Canonical(info.Name), args, output, nil)}
}

func formatToolArgs(toolName string, input map[string]any) string {
	fallback := func() string {
		b, _ := json.Marshal(input)
		return string(b)
	}
	switch toolName {
	case "Bash", "exec_command", "shell", "local_shell_call", "command_execution":
		if s, ok := input["command"].(string); ok {
			return s
		}
		return fallback()
	case "Read", "read_file", "Write", "write_file", "Edit":
		if s, ok := input["file_path"].(string); ok {
			return s
		}
		return fallback()
	case "Glob":
		if s, ok := input["pattern"].(string); ok {
			return s
		}
		return fallback()
	case "Grep":
		pattern, _ := input["pattern"].(string)
		path, _ := input["path"].(string)
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("%s in %s", pattern, path)
	default:
		return fallback()
	}
}

func extractToolResultContent(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		var parts []string
		for _, item := range val {
			m, _ := item.(map[string]any)
			if m == nil {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func debugInfo(entry map[string]any, entryType string, convertedCount int) (status, reason string) {
	if entryType == "" {
		return history.StatusSkip, "missing type field"
	}
	switch entryType {
	case "user":
		if convertedCount > 0 {
			return history.StatusInclude, "user message"
		}
		return history.StatusSkip, "user message produced no output"
	case "assistant":
		if convertedCount > 0 {
			return history.StatusInclude, "assistant message"
		}
		return history.StatusSkip, "assistant message with no text content"
	case "result":
		return history.StatusSkip, "result entry (metadata)"
	case "summary":
		return history.StatusSkip, "summary entry (metadata)"
	default:
		return history.StatusSkip, fmt.Sprintf("unhandled type: %s", entryType)
	}
}
