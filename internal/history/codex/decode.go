// Package codex decodes Codex CLI's rollout session transcripts
// (~/.codex/sessions/YYYY/MM/DD/rollout-*-{session-id}.jsonl) into the
// normalized event.Message sequence.
//
// Grounded on original_source/src/agent/history.rs's Codex-side functions
// (FunctionCallInfo, CodexTurnTracker, parse_codex_history_file_with_debug,
// convert_codex_entry_with_debug, parse_running_session_id,
// parse_codex_tool_output) and restated in the per-concern adapter style
// used elsewhere in this module.
package codex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/history"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

type functionCallInfo struct {
	Name      string
	Command   string
	SessionID *int64
}

type turnTracker struct {
	startedAt     *time.Time
	lastAssistant *time.Time
	lastUsage     *[2]int64
	lastUsageAt   *time.Time
	hasTurn       bool
}

func newTurnTracker() *turnTracker { return &turnTracker{} }

func (t *turnTracker) start(startedAt *time.Time) {
	t.startedAt = startedAt
	t.lastAssistant = nil
	t.lastUsage = nil
	t.lastUsageAt = nil
	t.hasTurn = true
}

func (t *turnTracker) updateUsage(usage [2]int64, ts *time.Time) {
	t.lastUsage = &usage
	if ts != nil {
		t.lastUsageAt = ts
	}
}

func (t *turnTracker) updateAssistant(ts *time.Time) {
	if ts != nil {
		t.lastAssistant = ts
	}
}

func (t *turnTracker) finish() *event.Message {
	if !t.hasTurn {
		return nil
	}
	endAt := t.lastAssistant
	if endAt == nil {
		endAt = t.lastUsageAt
	}
	t.hasTurn = false

	var hasData bool
	summary := event.TurnSummary{}
	if t.lastUsage != nil && (t.lastUsage[0] > 0 || t.lastUsage[1] > 0) {
		summary.InputTokens = t.lastUsage[0]
		summary.OutputTokens = t.lastUsage[1]
		hasData = true
	}
	if t.startedAt != nil && endAt != nil {
		d := endAt.Sub(*t.startedAt).Seconds()
		if d < 0 {
			d = 0
		}
		if d > 0 {
			summary.DurationSecs = d
			hasData = true
		}
	}
	if !hasData {
		return nil
	}
	m := event.NewSummary(summary)
	return &m
}

type pendingExecOutput struct {
	messageIndex int
}

// Decode reads the rollout jsonl file at path and returns the replayed chat
// plus a per-record debug log, in source line order.
func Decode(path string) ([]event.Message, []history.DebugEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open codex transcript: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read codex transcript: %w", err)
	}

	functionCalls := map[string]functionCallInfo{}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if callID, info, ok := extractFunctionCallInfo(entry); ok {
			functionCalls[callID] = info
		}
	}

	var messages []event.Message
	var debugEntries []history.DebugEntry
	tracker := newTurnTracker()
	pending := map[int64]pendingExecOutput{}

	for lineNum, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			debugEntries = append(debugEntries, history.DebugEntry{
				LineNumber: lineNum,
				EntryType:  "parse_error",
				Status:     history.StatusError,
				Reason:     err.Error(),
				RawJSON:    mustJSON(line),
			})
			continue
		}

		entryType, _ := entry["type"].(string)
		raw, _ := json.Marshal(entry)

		switch entryType {
		case "turn.started":
			tracker.start(parseTimestamp(entry))
			debugEntries = append(debugEntries, history.DebugEntry{
				LineNumber: lineNum, EntryType: entryType, Status: history.StatusSkip,
				Reason: "turn started", RawJSON: raw,
			})
			continue
		case "turn.failed":
			tracker.finish()
			debugEntries = append(debugEntries, history.DebugEntry{
				LineNumber: lineNum, EntryType: entryType, Status: history.StatusSkip,
				Reason: "turn failed", RawJSON: raw,
			})
			continue
		case "turn.completed":
			if usage, ok := extractCodexUsage(entry); ok {
				tracker.updateUsage(usage, parseTimestamp(entry))
			}
			summary := tracker.finish()
			status, reason := history.StatusSkip, "turn summary missing data"
			if summary != nil {
				status, reason = history.StatusInclude, "turn summary"
				messages = append(messages, *summary)
			}
			debugEntries = append(debugEntries, history.DebugEntry{
				LineNumber: lineNum, EntryType: entryType, Status: status, Reason: reason, RawJSON: raw,
			})
			continue
		case "event_msg":
			if payload, _ := entry["payload"].(map[string]any); payload != nil {
				if payloadType, _ := payload["type"].(string); payloadType == "token_count" {
					if usage, ok := extractCodexUsage(payload); ok {
						tracker.updateUsage(usage, parseTimestamp(entry))
					}
					debugEntries = append(debugEntries, history.DebugEntry{
						LineNumber: lineNum, EntryType: entryType, Status: history.StatusSkip,
						Reason: "token_count", RawJSON: raw,
					})
					continue
				}
			}
		case "response_item":
			if payload, _ := entry["payload"].(map[string]any); payload != nil {
				if payloadType, _ := payload["type"].(string); payloadType == "function_call_output" {
					callID, _ := payload["call_id"].(string)
					rawOutput, _ := payload["output"].(string)
					info, found := functionCalls[callID]
					rawName := "shell"
					if found {
						rawName = info.Name
					}

					if rawName == "exec_command" {
						if sessionID, ok := parseRunningSessionID(rawOutput); ok {
							output, exitCode := parseCodexToolOutput(rawOutput)
							command := ""
							if found {
								command = info.Command
							}
							msg := event.NewTool(toolname.CanonicalOrGeneric(rawName), command, output, exitCode)
							messages = append(messages, msg)
							pending[sessionID] = pendingExecOutput{messageIndex: len(messages) - 1}
							debugEntries = append(debugEntries, history.DebugEntry{
								LineNumber: lineNum, EntryType: entryType, Status: history.StatusInclude,
								Reason: fmt.Sprintf("exec_command output pending session %d", sessionID), RawJSON: raw,
							})
							continue
						}
					}

					if rawName == "write_stdin" && found && info.SessionID != nil {
						if p, ok := pending[*info.SessionID]; ok {
							output, exitCode := parseCodexToolOutput(rawOutput)
							appendOutput(&messages[p.messageIndex].Content, output)
							if messages[p.messageIndex].ExitCode == nil {
								messages[p.messageIndex].ExitCode = exitCode
							}
							if exitCode != nil {
								delete(pending, *info.SessionID)
							}
							debugEntries = append(debugEntries, history.DebugEntry{
								LineNumber: lineNum, EntryType: entryType, Status: history.StatusSkip,
								Reason: fmt.Sprintf("coalesced write_stdin for session %d", *info.SessionID), RawJSON: raw,
							})
							continue
						}
					}
				}
			}
		}

		msg, status, reason := convertEntry(entry, functionCalls)

		if payload, _ := entry["payload"].(map[string]any); payload != nil {
			if pt, _ := payload["type"].(string); pt == "message" {
				switch payload["role"] {
				case "user":
					if s := tracker.finish(); s != nil {
						messages = append(messages, *s)
					}
					tracker.start(parseTimestamp(entry))
				case "assistant":
					tracker.updateAssistant(parseTimestamp(entry))
				}
			}
		}

		debugEntries = append(debugEntries, history.DebugEntry{
			LineNumber: lineNum, EntryType: entryType, Status: status, Reason: reason, RawJSON: raw,
		})
		if msg != nil {
			messages = append(messages, *msg)
		}
	}

	if s := tracker.finish(); s != nil {
		messages = append(messages, *s)
	}

	for _, p := range pending {
		if messages[p.messageIndex].Content == "" {
			messages[p.messageIndex].Content = "Process still running."
		}
	}

	return messages, debugEntries, nil
}

func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func extractFunctionCallInfo(entry map[string]any) (string, functionCallInfo, bool) {
	if t, _ := entry["type"].(string); t != "response_item" {
		return "", functionCallInfo{}, false
	}
	payload, _ := entry["payload"].(map[string]any)
	if payload == nil {
		return "", functionCallInfo{}, false
	}
	if pt, _ := payload["type"].(string); pt != "function_call" {
		return "", functionCallInfo{}, false
	}
	callID, _ := payload["call_id"].(string)
	name, _ := payload["name"].(string)
	if callID == "" || name == "" {
		return "", functionCallInfo{}, false
	}
	argsStr, _ := payload["arguments"].(string)
	var args map[string]any
	_ = json.Unmarshal([]byte(argsStr), &args)

	command, _ := args["command"].(string)
	if command == "" {
		command, _ = args["cmd"].(string)
	}
	var sessionID *int64
	if sid, ok := args["session_id"]; ok {
		if f, ok := sid.(float64); ok {
			v := int64(f)
			sessionID = &v
		}
	}
	return callID, functionCallInfo{Name: name, Command: command, SessionID: sessionID}, true
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

func extractCodexUsage(entry map[string]any) ([2]int64, bool) {
	usage, _ := entry["usage"].(map[string]any)
	if usage == nil {
		if info, _ := entry["info"].(map[string]any); info != nil {
			usage, _ = info["last_token_usage"].(map[string]any)
			if usage == nil {
				usage, _ = info["total_token_usage"].(map[string]any)
			}
		}
	}
	if usage == nil {
		return [2]int64{}, false
	}
	input, inOK := numOf(usage["input_tokens"])
	output, outOK := numOf(usage["output_tokens"])
	if !inOK || !outOK {
		return [2]int64{}, false
	}
	return [2]int64{input, output}, true
}

func numOf(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func parseRunningSessionID(rawOutput string) (int64, bool) {
	const marker = "Process running with session ID "
	idx := strings.Index(rawOutput, marker)
	if idx == -1 {
		return 0, false
	}
	after := rawOutput[idx+len(marker):]
	end := strings.IndexByte(after, '\n')
	if end == -1 {
		end = len(after)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(after[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseCodexToolOutput(rawOutput string) (string, *int) {
	var exitCode *int

	if pos := strings.Index(rawOutput, "Process exited with code "); pos != -1 {
		after := rawOutput[pos+len("Process exited with code "):]
		if end := strings.IndexByte(after, '\n'); end != -1 {
			if code, err := strconv.Atoi(strings.TrimSpace(after[:end])); err == nil {
				exitCode = &code
			}
		}
	} else if pos := strings.Index(rawOutput, "Exit code:"); pos != -1 {
		after := rawOutput[pos+len("Exit code:"):]
		if end := strings.IndexByte(after, '\n'); end != -1 {
			if code, err := strconv.Atoi(strings.TrimSpace(after[:end])); err == nil {
				exitCode = &code
			}
		}
	}

	output := rawOutput
	if pos := strings.Index(rawOutput, "Output:\n"); pos != -1 {
		output = rawOutput[pos+len("Output:\n"):]
	}
	return output, exitCode
}

func appendOutput(target *string, addition string) {
	if addition == "" {
		return
	}
	if *target != "" && !strings.HasSuffix(*target, "\n") && !strings.HasPrefix(addition, "\n") {
		*target += "\n"
	}
	*target += addition
}

func codexTextSkipReason(text string) string {
	switch {
	case strings.Contains(text, "<environment_context>"):
		return "filtered: environment_context"
	case strings.HasPrefix(text, "# AGENTS.md instructions"):
		return "filtered: AGENTS.md instructions"
	case strings.Contains(text, "<INSTRUCTIONS>"):
		return "filtered: INSTRUCTIONS tags"
	default:
		return ""
	}
}

func extractTextContent(payload map[string]any) string {
	content, _ := payload["content"].([]any)
	if content == nil {
		return ""
	}
	var parts []string
	for _, b := range content {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		switch block["type"] {
		case "input_text", "output_text", "text":
			if s, ok := block["text"].(string); ok {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func convertEntry(entry map[string]any, functionCalls map[string]functionCallInfo) (*event.Message, string, string) {
	entryType, _ := entry["type"].(string)
	if entryType == "" {
		return nil, history.StatusSkip, "missing type field"
	}
	payload, _ := entry["payload"].(map[string]any)
	if payload == nil {
		return nil, history.StatusSkip, "missing payload"
	}

	switch entryType {
	case "event_msg":
		payloadType, _ := payload["type"].(string)
		if payloadType != "user_message" {
			return nil, history.StatusSkip, fmt.Sprintf("event_msg type=%s", payloadType)
		}
		text, _ := payload["message"].(string)
		if text == "" {
			return nil, history.StatusSkip, "empty user_message text"
		}
		if reason := codexTextSkipReason(text); reason != "" {
			return nil, history.StatusSkip, reason
		}
		m := event.NewUser(text)
		return &m, history.StatusInclude, fmt.Sprintf("event_msg user_message: %q", truncatePreview(text, 60))

	case "response_item":
		payloadType, _ := payload["type"].(string)
		if payloadType == "function_call_output" {
			if rawOutput, ok := payload["output"].(string); ok {
				callID, _ := payload["call_id"].(string)
				if callID == "" {
					callID = "unknown"
				}
				rawName, command := "shell", callID
				if info, found := functionCalls[callID]; found {
					rawName, command = info.Name, info.Command
				}
				output, exitCode := parseCodexToolOutput(rawOutput)
				m := event.NewTool(toolname.CanonicalOrGeneric(rawName), command, output, exitCode)
				return &m, history.StatusInclude, fmt.Sprintf("%s(%s): %q",
					toolname.CanonicalOrGeneric(rawName), truncatePreview(command, 30), truncatePreview(rawOutput, 60))
			}
		}

		role, _ := payload["role"].(string)
		if role == "" {
			return nil, history.StatusSkip, fmt.Sprintf("role is null, type=%s", payloadType)
		}
		text := extractTextContent(payload)
		if text == "" {
			return nil, history.StatusSkip, "empty text content"
		}
		if reason := codexTextSkipReason(text); reason != "" {
			return nil, history.StatusSkip, reason
		}
		var m event.Message
		switch role {
		case "user":
			m = event.NewUser(text)
		case "assistant":
			m = event.NewAssistant(text, false)
		default:
			return nil, history.StatusSkip, fmt.Sprintf("unknown role: %s", role)
		}
		return &m, history.StatusInclude, fmt.Sprintf("role=%s: %q", role, truncatePreview(text, 60))

	default:
		return nil, history.StatusSkip, fmt.Sprintf("type=%s", entryType)
	}
}

func truncatePreview(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return strings.ReplaceAll(text, "\n", " ")
	}
	return strings.ReplaceAll(string(r[:maxLen]), "\n", " ") + "..."
}
