package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/history/codex"
	"github.com/jrcrittenden/conduit/internal/runner"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

// Codex implements runner.Adapter for the Codex CLI's `codex exec --json`
// rollout-style event stream — the same record shapes
// internal/history/codex decodes from disk, consumed live instead.
type Codex struct {
	BinaryOverride string
}

func (c Codex) Binary() string {
	if c.BinaryOverride != "" {
		return c.BinaryOverride
	}
	return "codex"
}

func (Codex) SpawnArgs(cfg runner.Config) []string {
	args := []string{"exec", "--json", cfg.Prompt, "--cd", cfg.WorkingDir}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.ResumeSessionID != "" {
		args = append(args, "resume", cfg.ResumeSessionID)
	}
	return args
}

func (Codex) InterruptSignal() string { return "SIGINT" }

func (Codex) EncodeInput(text string) ([]byte, error) {
	return json.Marshal(map[string]any{"type": "user_input", "text": text})
}

func (Codex) Decode(line []byte) ([]event.AgentEvent, error) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("codex: invalid json line: %w", err)
	}

	entryType, _ := entry["type"].(string)
	switch entryType {
	case "session_configured":
		sessionID, _ := entry["session_id"].(string)
		if sessionID == "" {
			return nil, nil
		}
		return []event.AgentEvent{{Type: event.AgentEventSessionInit, SessionID: sessionID}}, nil

	case "turn.started":
		return []event.AgentEvent{{Type: event.AgentEventTurnStarted}}, nil

	case "turn.completed":
		usage := event.Usage{}
		if u, _ := entry["usage"].(map[string]any); u != nil {
			if v, ok := u["input_tokens"].(float64); ok {
				usage.InputTokens = int64(v)
			}
			if v, ok := u["output_tokens"].(float64); ok {
				usage.OutputTokens = int64(v)
			}
		}
		return []event.AgentEvent{{Type: event.AgentEventTurnCompleted, Usage: usage}}, nil

	case "turn.failed":
		msg, _ := entry["error"].(string)
		if msg == "" {
			msg = "agent turn failed"
		}
		return []event.AgentEvent{{Type: event.AgentEventTurnFailed, ErrorMessage: msg}}, nil

	case "event_msg":
		return decodeCodexEventMsg(entry)

	case "response_item":
		return decodeCodexResponseItem(entry)

	default:
		return nil, nil
	}
}

func decodeCodexEventMsg(entry map[string]any) ([]event.AgentEvent, error) {
	payload, _ := entry["payload"].(map[string]any)
	if payload == nil {
		return nil, nil
	}
	payloadType, _ := payload["type"].(string)
	switch payloadType {
	case "agent_message":
		text, _ := payload["message"].(string)
		if text == "" {
			return nil, nil
		}
		return []event.AgentEvent{{Type: event.AgentEventAssistantMsg, Text: text, IsFinal: true}}, nil
	default:
		return nil, nil
	}
}

func decodeCodexResponseItem(entry map[string]any) ([]event.AgentEvent, error) {
	payload, _ := entry["payload"].(map[string]any)
	if payload == nil {
		return nil, nil
	}
	payloadType, _ := payload["type"].(string)
	switch payloadType {
	case "function_call":
		callID, _ := payload["call_id"].(string)
		name, _ := payload["name"].(string)
		argsStr, _ := payload["arguments"].(string)
		return []event.AgentEvent{{
			Type: event.AgentEventToolStarted, ToolID: callID,
			ToolName: toolname.Canonical(name), Arguments: argsStr,
		}}, nil

	case "function_call_output":
		callID, _ := payload["call_id"].(string)
		rawOutput, _ := payload["output"].(string)
		output, exitCode := codex.ParseToolOutput(rawOutput)
		success := exitCode == nil || *exitCode == 0
		return []event.AgentEvent{{
			Type: event.AgentEventToolCompleted, ToolID: callID,
			Success: success, Result: output, HasResult: true, ExitCode: exitCode,
		}}, nil

	default:
		return nil, nil
	}
}
