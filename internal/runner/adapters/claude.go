// Package adapters implements one runner.Adapter per supported coding
// agent. Each file owns the on-wire shape for a single agent; nothing
// outside this package parses agent-specific JSON.
package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/runner"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

// Claude implements runner.Adapter for the Claude Code CLI's
// --output-format stream-json / --input-format stream-json protocol.
// BinaryOverride lets conduit point at a non-default install (config.go's
// agents.claudeBinary); the zero value resolves to "claude" on PATH.
type Claude struct {
	BinaryOverride string
}

func (c Claude) Binary() string {
	if c.BinaryOverride != "" {
		return c.BinaryOverride
	}
	return "claude"
}

func (Claude) SpawnArgs(cfg runner.Config) []string {
	args := []string{
		"--print", cfg.Prompt,
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(cfg.AllowedTools, ","))
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.ResumeSessionID != "" {
		args = append(args, "--resume", cfg.ResumeSessionID)
	}
	return args
}

func (Claude) InterruptSignal() string { return "SIGINT" }

func (Claude) EncodeInput(text string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": text,
		},
	})
}

func (Claude) Decode(line []byte) ([]event.AgentEvent, error) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("claude: invalid json line: %w", err)
	}

	entryType, _ := entry["type"].(string)
	switch entryType {
	case "system":
		subtype, _ := entry["subtype"].(string)
		if subtype != "init" {
			return nil, nil
		}
		sessionID, _ := entry["session_id"].(string)
		if sessionID == "" {
			return nil, nil
		}
		return []event.AgentEvent{{Type: event.AgentEventSessionInit, SessionID: sessionID}}, nil

	case "assistant":
		return decodeClaudeAssistant(entry)

	case "user":
		return decodeClaudeToolResults(entry)

	case "result":
		return decodeClaudeResult(entry)

	default:
		return nil, nil
	}
}

func decodeClaudeAssistant(entry map[string]any) ([]event.AgentEvent, error) {
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return nil, nil
	}
	content, _ := message["content"].([]any)
	var events []event.AgentEvent
	for _, b := range content {
		block, _ := b.(map[string]any)
		if block == nil {
			continue
		}
		switch block["type"] {
		case "text":
			text, _ := block["text"].(string)
			if text == "" {
				continue
			}
			events = append(events, event.AgentEvent{
				Type: event.AgentEventAssistantMsg, Text: text, IsFinal: false,
			})
		case "tool_use":
			id, _ := block["id"].(string)
			name, _ := block["name"].(string)
			input, _ := block["input"].(map[string]any)
			raw, _ := json.Marshal(input)
			events = append(events, event.AgentEvent{
				Type: event.AgentEventToolStarted, ToolID: id,
				ToolName: toolname.Canonical(name), Arguments: string(raw),
			})
		}
	}
	return events, nil
}

func decodeClaudeToolResults(entry map[string]any) ([]event.AgentEvent, error) {
	message, _ := entry["message"].(map[string]any)
	if message == nil {
		return nil, nil
	}
	content, _ := message["content"].([]any)
	var events []event.AgentEvent
	for _, b := range content {
		block, _ := b.(map[string]any)
		if block == nil || block["type"] != "tool_result" {
			continue
		}
		toolUseID, _ := block["tool_use_id"].(string)
		isError, _ := block["is_error"].(bool)
		result := stringifyContent(block["content"])
		events = append(events, event.AgentEvent{
			Type: event.AgentEventToolCompleted, ToolID: toolUseID,
			Success: !isError, Result: result, HasResult: true,
		})
	}
	return events, nil
}

func decodeClaudeResult(entry map[string]any) ([]event.AgentEvent, error) {
	subtype, _ := entry["subtype"].(string)
	usage := event.Usage{}
	if u, _ := entry["usage"].(map[string]any); u != nil {
		if v, ok := u["input_tokens"].(float64); ok {
			usage.InputTokens = int64(v)
		}
		if v, ok := u["output_tokens"].(float64); ok {
			usage.OutputTokens = int64(v)
		}
	}
	if subtype == "success" {
		return []event.AgentEvent{{Type: event.AgentEventTurnCompleted, Usage: usage}}, nil
	}
	errMsg, _ := entry["result"].(string)
	if errMsg == "" {
		errMsg = "agent turn failed"
	}
	return []event.AgentEvent{{Type: event.AgentEventTurnFailed, ErrorMessage: errMsg}}, nil
}

func stringifyContent(v any) string {
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
