// Package opencode decodes OpenCode's on-disk storage layout
// (<storage>/message/<session_id>/*.json plus <storage>/part/<message_id>/*.json)
// into the normalized event.Message sequence.
//
// Grounded on original_source/src/agent/history.rs's OpenCode-side functions
// (opencode_parts_for_message, opencode_text_from_parts,
// opencode_tool_message_from_part, load_opencode_history_from_storage).
package opencode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/history"
	"github.com/jrcrittenden/conduit/internal/toolname"
)

type messageInfo struct {
	ID      string
	Role    string
	Summary bool
	Error   *struct {
		Message string
	}
	Created int64
	raw     map[string]any
}

// Decode reads session message/part files under storageDir for sessionID and
// returns the replayed chat plus a per-record debug log.
func Decode(storageDir, sessionID string) ([]event.Message, []history.DebugEntry, error) {
	messageDir := filepath.Join(storageDir, "message", sessionID)
	if _, err := os.Stat(messageDir); err != nil {
		return nil, nil, fmt.Errorf("opencode message dir for session %s: %w", sessionID, err)
	}

	files, err := listSortedJSON(messageDir)
	if err != nil {
		return nil, nil, err
	}

	type record struct {
		created int64
		info    messageInfo
		parts   []map[string]any
	}
	var records []record

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read opencode message file %s: %w", path, err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, nil, fmt.Errorf("parse opencode message file %s: %w", path, err)
		}
		info := parseMessageInfo(m)
		parts, err := partsForMessage(storageDir, info.ID)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record{created: info.Created, info: info, parts: parts})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].created != records[j].created {
			return records[i].created < records[j].created
		}
		return records[i].info.ID < records[j].info.ID
	})

	var messages []event.Message
	var debugEntries []history.DebugEntry

	for idx, rec := range records {
		status := history.StatusInclude
		reason := fmt.Sprintf("role=%s", rec.info.Role)

		switch rec.info.Role {
		case "user":
			text, _ := textFromParts(rec.parts, false)
			if strings.TrimSpace(text) == "" {
				status, reason = history.StatusSkip, "user message empty"
			} else {
				messages = append(messages, event.NewUser(text))
			}
		case "assistant":
			if rec.info.Summary {
				status, reason = history.StatusSkip, "assistant summary"
			} else {
				added, errReason := convertAssistant(&messages, rec.parts, rec.info)
				if !added {
					status, reason = history.StatusSkip, "assistant message empty"
					if errReason != "" {
						reason = errReason
					}
				} else if errReason != "" {
					reason = errReason
				}
			}
		default:
			status, reason = history.StatusSkip, "unsupported role"
		}

		rawJSON, _ := json.Marshal(map[string]any{"info": rec.info.raw, "parts": rec.parts})
		debugEntries = append(debugEntries, history.DebugEntry{
			LineNumber: idx,
			EntryType:  "opencode_message",
			Status:     status,
			Reason:     reason,
			RawJSON:    rawJSON,
		})
	}

	return messages, debugEntries, nil
}

func parseMessageInfo(m map[string]any) messageInfo {
	info := messageInfo{raw: m}
	info.ID, _ = m["id"].(string)
	info.Role, _ = m["role"].(string)
	info.Summary, _ = m["summary"].(bool)
	if t, _ := m["time"].(map[string]any); t != nil {
		if c, ok := t["created"].(float64); ok {
			info.Created = int64(c)
		}
	}
	if e, _ := m["error"].(map[string]any); e != nil {
		if msg, ok := e["message"].(string); ok {
			info.Error = &struct{ Message string }{Message: msg}
		}
	}
	return info
}

func listSortedJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func partsForMessage(storageDir, messageID string) ([]map[string]any, error) {
	partsDir := filepath.Join(storageDir, "part", messageID)
	if _, err := os.Stat(partsDir); err != nil {
		return nil, nil
	}
	files, err := listSortedJSON(partsDir)
	if err != nil {
		return nil, err
	}
	var parts []map[string]any
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read opencode part file %s: %w", path, err)
		}
		var p map[string]any
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse opencode part file %s: %w", path, err)
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func textFromParts(parts []map[string]any, includeReasoning bool) (text, reasoning string) {
	var textBuf, reasoningBuf strings.Builder
	for _, part := range parts {
		partType, _ := part["type"].(string)
		if partType == "reasoning" && !includeReasoning {
			continue
		}
		if partType != "text" && partType != "reasoning" {
			continue
		}
		if ignored, _ := part["ignored"].(bool); ignored {
			continue
		}
		if synthetic, _ := part["synthetic"].(bool); synthetic {
			continue
		}
		chunk, _ := part["text"].(string)
		if chunk == "" {
			continue
		}
		if partType == "reasoning" {
			reasoningBuf.WriteString(chunk)
			reasoningBuf.WriteByte('\n')
		} else {
			textBuf.WriteString(chunk)
			textBuf.WriteByte('\n')
		}
	}
	text = strings.TrimSuffix(textBuf.String(), "\n")
	reasoning = strings.TrimSuffix(reasoningBuf.String(), "\n")
	return text, reasoning
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

func pushAssistant(messages *[]event.Message, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	*messages = append(*messages, event.NewAssistant(text, false))
	return true
}

func convertAssistant(messages *[]event.Message, parts []map[string]any, info messageInfo) (added bool, reason string) {
	var pendingText, pendingReasoning strings.Builder
	var hasTool, hasText bool

	flushReasoning := func() {
		if strings.TrimSpace(pendingReasoning.String()) != "" {
			*messages = append(*messages, event.NewReasoning(pendingReasoning.String()))
			hasText = true
			pendingReasoning.Reset()
		}
	}

	for _, part := range parts {
		partType, _ := part["type"].(string)
		switch partType {
		case "reasoning":
			if ignored, _ := part["ignored"].(bool); ignored {
				continue
			}
			if synthetic, _ := part["synthetic"].(bool); synthetic {
				continue
			}
			chunk, _ := part["text"].(string)
			if chunk == "" {
				continue
			}
			s := pendingReasoning.String()
			appendOutput(&s, chunk)
			pendingReasoning.Reset()
			pendingReasoning.WriteString(s)
		case "text":
			flushReasoning()
			if ignored, _ := part["ignored"].(bool); ignored {
				continue
			}
			if synthetic, _ := part["synthetic"].(bool); synthetic {
				continue
			}
			chunk, _ := part["text"].(string)
			if chunk == "" {
				continue
			}
			s := pendingText.String()
			appendOutput(&s, chunk)
			pendingText.Reset()
			pendingText.WriteString(s)
		case "tool":
			flushReasoning()
			if pushAssistant(messages, pendingText.String()) {
				hasText = true
			}
			pendingText.Reset()
			if toolMsg, ok := toolMessageFromPart(part); ok {
				*messages = append(*messages, toolMsg)
				hasTool = true
			}
		}
	}

	flushReasoning()
	if pushAssistant(messages, pendingText.String()) {
		hasText = true
	}

	if !hasText && !hasTool {
		if info.Error != nil && info.Error.Message != "" {
			*messages = append(*messages, event.NewError(info.Error.Message))
			return true, "assistant error"
		}
		return false, ""
	}
	return true, ""
}

func toolMessageFromPart(part map[string]any) (event.Message, bool) {
	tool, _ := part["tool"].(string)
	if tool == "" {
		return event.Message{}, false
	}
	state, _ := part["state"].(map[string]any)
	status, _ := state["status"].(string)

	output := toolOutputFromState(state)
	if strings.TrimSpace(output) == "" {
		if errStr, _ := state["error"].(string); errStr != "" {
			output = errStr
		}
	}
	if strings.TrimSpace(output) == "" && status != "" {
		output = "status: " + status
	}

	args := toolArgsFromState(state)

	var exitCode *int
	if metadata, _ := state["metadata"].(map[string]any); metadata != nil {
		if exit, ok := metadata["exit"].(float64); ok {
			v := int(exit)
			exitCode = &v
		}
	}
	if exitCode == nil && status == "error" {
		v := 1
		exitCode = &v
	}

	msg := event.NewTool(toolname.CanonicalOrGeneric(tool), args, output, exitCode)
	return msg, true
}

func toolOutputFromState(state map[string]any) string {
	if state == nil {
		return ""
	}
	if out, _ := state["output"].(string); strings.TrimSpace(out) != "" {
		return out
	}
	if metadata, _ := state["metadata"].(map[string]any); metadata != nil {
		if out, _ := metadata["output"].(string); strings.TrimSpace(out) != "" {
			return out
		}
		if preview, _ := metadata["preview"].(string); strings.TrimSpace(preview) != "" {
			return preview
		}
	}
	return ""
}

func toolArgsFromState(state map[string]any) string {
	if state == nil {
		return ""
	}
	input, ok := state["input"].(map[string]any)
	if !ok || len(input) == 0 {
		return ""
	}
	if command, _ := input["command"].(string); command != "" {
		return command
	}
	if filePath, _ := input["filePath"].(string); filePath != "" {
		args := filePath
		offset, hasOffset := input["offset"].(float64)
		limit, hasLimit := input["limit"].(float64)
		if hasOffset || hasLimit {
			if hasLimit {
				args += fmt.Sprintf(" (offset %d, limit %d)", int64(offset), int64(limit))
			} else {
				args += fmt.Sprintf(" (offset %d)", int64(offset))
			}
		}
		return args
	}
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}
