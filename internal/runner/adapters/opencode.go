package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/runner"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

// OpenCode implements runner.Adapter for the OpenCode CLI's event stream —
// one JSON record per line describing session lifecycle and message parts,
// mirroring the part shapes internal/history/opencode replays from disk.
type OpenCode struct {
	BinaryOverride string
}

func (o OpenCode) Binary() string {
	if o.BinaryOverride != "" {
		return o.BinaryOverride
	}
	return "opencode"
}

func (OpenCode) SpawnArgs(cfg runner.Config) []string {
	args := []string{"run", "--print-logs", "--format", "json", cfg.Prompt, "--cwd", cfg.WorkingDir}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if cfg.ResumeSessionID != "" {
		args = append(args, "--session", cfg.ResumeSessionID)
	}
	return args
}

func (OpenCode) InterruptSignal() string { return "SIGINT" }

func (OpenCode) EncodeInput(text string) ([]byte, error) {
	return json.Marshal(map[string]any{"type": "prompt", "text": text})
}

func (OpenCode) Decode(line []byte) ([]event.AgentEvent, error) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("opencode: invalid json line: %w", err)
	}

	entryType, _ := entry["type"].(string)
	switch entryType {
	case "session.init":
		sessionID, _ := entry["session_id"].(string)
		if sessionID == "" {
			return nil, nil
		}
		return []event.AgentEvent{{Type: event.AgentEventSessionInit, SessionID: sessionID}}, nil

	case "message.part":
		part, _ := entry["part"].(map[string]any)
		return decodeOpenCodePart(part)

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

	default:
		return nil, nil
	}
}

func decodeOpenCodePart(part map[string]any) ([]event.AgentEvent, error) {
	if part == nil {
		return nil, nil
	}
	partType, _ := part["type"].(string)
	switch partType {
	case "text":
		text, _ := part["text"].(string)
		if text == "" {
			return nil, nil
		}
		return []event.AgentEvent{{Type: event.AgentEventAssistantMsg, Text: text, IsFinal: false}}, nil

	case "tool":
		tool, _ := part["tool"].(string)
		state, _ := part["state"].(map[string]any)
		status, _ := state["status"].(string)
		id, _ := part["id"].(string)

		if status == "running" || status == "" {
			raw, _ := json.Marshal(state["input"])
			return []event.AgentEvent{{
				Type: event.AgentEventToolStarted, ToolID: id,
				ToolName: toolname.CanonicalOrGeneric(tool), Arguments: string(raw),
			}}, nil
		}

		output, _ := state["output"].(string)
		success := status != "error"
		return []event.AgentEvent{{
			Type: event.AgentEventToolCompleted, ToolID: id,
			Success: success, Result: output, HasResult: true,
		}}, nil

	default:
		return nil, nil
	}
}
