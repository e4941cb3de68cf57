package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateClaudeSession_FindsAcrossProjectDirs(t *testing.T) {
	home := t.TempDir()
	projectDir := filepath.Join(home, ".claude", "projects", "-root-myrepo")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	sessionPath := filepath.Join(projectDir, "sess-123.jsonl")
	require.NoError(t, os.WriteFile(sessionPath, []byte("{}\n"), 0o644))

	found, err := LocateClaudeSession(home, "sess-123")
	require.NoError(t, err)
	assert.Equal(t, sessionPath, found)
}

func TestLocateClaudeSession_MissingDir(t *testing.T) {
	home := t.TempDir()
	_, err := LocateClaudeSession(home, "sess-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHistoryDirMissing)
}

func TestLocateCodexSession_FindsByRecursiveWalk(t *testing.T) {
	home := t.TempDir()
	dayDir := filepath.Join(home, ".codex", "sessions", "2026", "01", "15")
	require.NoError(t, os.MkdirAll(dayDir, 0o755))
	sessionPath := filepath.Join(dayDir, "rollout-2026-01-15-sess-456.jsonl")
	require.NoError(t, os.WriteFile(sessionPath, []byte("{}\n"), 0o644))

	found, err := LocateCodexSession(home, "sess-456")
	require.NoError(t, err)
	assert.Equal(t, sessionPath, found)
}

func TestLocateOpenCodeStorage_NoCandidatesExist(t *testing.T) {
	_, _, err := LocateOpenCodeStorage([]string{"/nonexistent/one", "/nonexistent/two"}, "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageNotFound)
}

func TestLocateOpenCodeStorage_FindsSessionFile(t *testing.T) {
	storage := t.TempDir()
	sessionDir := filepath.Join(storage, "session", "proj1")
	require.NoError(t, os.MkdirAll(sessionDir, 0o755))
	sessionPath := filepath.Join(sessionDir, "ses_789.json")
	require.NoError(t, os.WriteFile(sessionPath, []byte(`{"id":"ses_789"}`), 0o644))

	dir, file, err := LocateOpenCodeStorage([]string{storage}, "ses_789")
	require.NoError(t, err)
	assert.Equal(t, storage, dir)
	assert.Equal(t, sessionPath, file)
}
