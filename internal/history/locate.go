package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors surfaced by the locate helpers. Callers match on these with
// errors.Is, not on string content.
var (
	ErrHistoryDirMissing = errors.New("history: agent directory not present")
	ErrSessionNotFound   = errors.New("history: session not found")
	ErrStorageNotFound   = errors.New("history: opencode storage not found")
)

// LocateClaudeSession searches ~/.claude/projects/*/<session_id>.jsonl.
func LocateClaudeSession(home, sessionID string) (string, error) {
	projectsDir := filepath.Join(home, ".claude", "projects")
	if _, err := os.Stat(projectsDir); err != nil {
		return "", fmt.Errorf("%w: %s", ErrHistoryDirMissing, projectsDir)
	}

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return "", fmt.Errorf("read claude projects dir: %w", err)
	}
	filename := sessionID + ".jsonl"
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(projectsDir, e.Name(), filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: claude session %s", ErrSessionNotFound, sessionID)
}

// LocateCodexSession searches ~/.codex/sessions/YYYY/MM/DD/*<session_id>*.jsonl.
func LocateCodexSession(home, sessionID string) (string, error) {
	sessionsDir := filepath.Join(home, ".codex", "sessions")
	if _, err := os.Stat(sessionsDir); err != nil {
		return "", fmt.Errorf("%w: %s", ErrHistoryDirMissing, sessionsDir)
	}

	var found string
	err := filepath.WalkDir(sessionsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if filepath.Ext(name) == ".jsonl" && strings.Contains(name, sessionID) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk codex sessions dir: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: codex session %s", ErrSessionNotFound, sessionID)
	}
	return found, nil
}

// OpenCodeStorageDirCandidates returns, in priority order, the directories
// OpenCode may have written its storage tree to.
func OpenCodeStorageDirCandidates(home string, xdgDataHome string, osDataDir string) []string {
	var candidates []string
	if xdgDataHome != "" {
		candidates = append(candidates, filepath.Join(xdgDataHome, "opencode", "storage"))
	}
	if osDataDir != "" {
		candidates = append(candidates, filepath.Join(osDataDir, "opencode", "storage"))
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".local", "share", "opencode", "storage"))
	}
	return candidates
}

// LocateOpenCodeStorage finds the storage directory and session file for
// sessionID among the given candidate storage directories.
func LocateOpenCodeStorage(candidates []string, sessionID string) (storageDir, sessionFile string, err error) {
	var hasStorage bool
	for _, dir := range candidates {
		if _, statErr := os.Stat(dir); statErr != nil {
			continue
		}
		hasStorage = true
		if file, findErr := findOpenCodeSessionFile(dir, sessionID); findErr == nil && file != "" {
			return dir, file, nil
		}
	}
	if !hasStorage {
		return "", "", ErrStorageNotFound
	}
	return "", "", fmt.Errorf("%w: opencode session %s", ErrSessionNotFound, sessionID)
}

func findOpenCodeSessionFile(storageDir, sessionID string) (string, error) {
	sessionsDir := filepath.Join(storageDir, "session")
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return "", fmt.Errorf("read opencode sessions dir: %w", err)
	}
	filename := sessionID + ".json"
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(sessionsDir, e.Name(), filename)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// FindOpenCodeSessionForDir scans all project session files under storageDir
// and returns the id of the most recently updated session whose recorded
// working directory matches workingDir.
func FindOpenCodeSessionForDir(storageDir, workingDir string) (sessionID string, sessionFile string, found bool, err error) {
	sessionsDir := filepath.Join(storageDir, "session")
	projectEntries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return "", "", false, fmt.Errorf("read opencode sessions dir: %w", err)
	}

	workingNorm := normalizePath(workingDir)
	var bestID, bestFile string
	var bestUpdated int64
	haveBest := false

	for _, projectEntry := range projectEntries {
		if !projectEntry.IsDir() {
			continue
		}
		projectPath := filepath.Join(sessionsDir, projectEntry.Name())
		files, listErr := listSortedJSON(projectPath)
		if listErr != nil {
			return "", "", false, listErr
		}
		for _, sessionPath := range files {
			info, readErr := readOpenCodeSessionInfo(sessionPath)
			if readErr != nil {
				return "", "", false, readErr
			}
			if info.directory == "" || normalizePath(info.directory) != workingNorm {
				continue
			}
			if !haveBest || info.updated > bestUpdated {
				bestID, bestFile, bestUpdated, haveBest = info.id, sessionPath, info.updated, true
			}
		}
	}
	return bestID, bestFile, haveBest, nil
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			return resolved
		}
		return abs
	}
	return path
}

type openCodeSessionInfo struct {
	id        string
	directory string
	updated   int64
}

func readOpenCodeSessionInfo(path string) (openCodeSessionInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openCodeSessionInfo{}, fmt.Errorf("read opencode session file %s: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return openCodeSessionInfo{}, fmt.Errorf("parse opencode session file %s: %w", path, err)
	}
	info := openCodeSessionInfo{}
	info.id, _ = m["id"].(string)
	info.directory, _ = m["directory"].(string)
	if t, _ := m["time"].(map[string]any); t != nil {
		if updated, ok := t["updated"].(float64); ok {
			info.updated = int64(updated)
		} else if created, ok := t["created"].(float64); ok {
			info.updated = int64(created)
		}
	}
	return info, nil
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
