package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RunsMigrationsOnFreshDatabase(t *testing.T) {
	s := newTestStore(t)

	var count int
	err := s.db.Get(&count, `SELECT count(*) FROM schema_migrations`)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), count)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conduit.db")
	s1, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	require.NoError(t, s2.db.Get(&count, `SELECT count(*) FROM schema_migrations`))
	assert.Equal(t, len(migrations), count)
}

func TestRepositoryCRUD(t *testing.T) {
	s := newTestStore(t)

	r := &Repository{Name: "conduit", URL: "https://example.com/conduit.git", LocalPath: "/tmp/conduit"}
	require.NoError(t, s.CreateRepository(r))
	assert.NotEmpty(t, r.ID)

	fetched, err := s.GetRepository(r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Name, fetched.Name)

	list, err := s.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetRepository("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkspaceCRUD(t *testing.T) {
	s := newTestStore(t)

	r := &Repository{Name: "conduit", URL: "https://example.com/conduit.git", LocalPath: "/tmp/conduit"}
	require.NoError(t, s.CreateRepository(r))

	w := &Workspace{RepositoryID: r.ID, Name: "feature-x", Path: "/tmp/conduit/feature-x"}
	require.NoError(t, s.CreateWorkspace(w))
	assert.NotEmpty(t, w.LastAccessed)

	got, err := s.GetWorkspace(w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Path, got.Path)

	list, err := s.ListWorkspacesByRepository(r.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteWorkspace(w.ID))
	_, err = s.GetWorkspace(w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionTabSaveLoadAndDeletePerWorkspace(t *testing.T) {
	// Each tab lives in its own workspace, mirroring cmd/conduit's one
	// workspace-per-tab wiring: idx_session_tabs_open_workspace allows at
	// most one open tab per workspace.
	s := newTestStore(t)
	r := &Repository{Name: "conduit", URL: "https://example.com/a.git", LocalPath: "/tmp/a"}
	require.NoError(t, s.CreateRepository(r))
	w1 := &Workspace{RepositoryID: r.ID, Name: "w1", Path: "/tmp/a/w1"}
	require.NoError(t, s.CreateWorkspace(w1))
	w2 := &Workspace{RepositoryID: r.ID, Name: "w2", Path: "/tmp/a/w2"}
	require.NoError(t, s.CreateWorkspace(w2))

	second := &SessionTab{WorkspaceID: &w2.ID, AgentType: "claude", Position: 1}
	first := &SessionTab{WorkspaceID: &w1.ID, AgentType: "codex", Position: 0}
	require.NoError(t, s.SaveTab(second))
	require.NoError(t, s.SaveTab(first))
	assert.True(t, first.IsOpen)
	assert.True(t, second.IsOpen)

	firstLoaded, err := s.LoadTabs(w1.ID)
	require.NoError(t, err)
	require.Len(t, firstLoaded, 1)
	assert.Equal(t, first.ID, firstLoaded[0].ID)

	secondLoaded, err := s.LoadTabs(w2.ID)
	require.NoError(t, err)
	require.Len(t, secondLoaded, 1)
	assert.Equal(t, second.ID, secondLoaded[0].ID)

	first.NeedsAttention = true
	require.NoError(t, s.SaveTab(first))
	reloaded, err := s.LoadTabs(w1.ID)
	require.NoError(t, err)
	assert.True(t, reloaded[0].NeedsAttention)

	require.NoError(t, s.DeleteTab(first.ID))
	remaining, err := s.LoadTabs(w1.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 0)
}

// TestSessionTabUniqueOpenPerWorkspace verifies the "at most one open tab
// per workspace" invariant: a second tab inserted against a workspace that
// already has an open one is rejected by idx_session_tabs_open_workspace.
func TestSessionTabUniqueOpenPerWorkspace(t *testing.T) {
	s := newTestStore(t)
	r := &Repository{Name: "conduit", URL: "https://example.com/c.git", LocalPath: "/tmp/c"}
	require.NoError(t, s.CreateRepository(r))
	w := &Workspace{RepositoryID: r.ID, Name: "w", Path: "/tmp/c/w"}
	require.NoError(t, s.CreateWorkspace(w))

	first := &SessionTab{WorkspaceID: &w.ID, AgentType: "claude", Position: 0}
	require.NoError(t, s.SaveTab(first))

	second := &SessionTab{WorkspaceID: &w.ID, AgentType: "codex", Position: 1}
	err := s.SaveTab(second)
	assert.Error(t, err)

	require.NoError(t, s.DeleteTab(first.ID))
	require.NoError(t, s.SaveTab(second))
}

func TestForkSeedDedupesByPromptHash(t *testing.T) {
	s := newTestStore(t)
	r := &Repository{Name: "conduit", URL: "https://example.com/b.git", LocalPath: "/tmp/b"}
	require.NoError(t, s.CreateRepository(r))
	w := &Workspace{RepositoryID: r.ID, Name: "w", Path: "/tmp/b/w"}
	require.NoError(t, s.CreateWorkspace(w))

	seed1, err := s.GetOrCreateForkSeed("claude", "build the login flow", nil, &w.ID, 200000)
	require.NoError(t, err)
	assert.False(t, seed1.SeedAckFiltered)
	assert.Greater(t, seed1.TokenEstimate, int64(0))

	seed2, err := s.GetOrCreateForkSeed("claude", "build the login flow", nil, &w.ID, 200000)
	require.NoError(t, err)
	assert.Equal(t, seed1.ID, seed2.ID)

	seed3, err := s.GetOrCreateForkSeed("claude", "build the logout flow", nil, &w.ID, 200000)
	require.NoError(t, err)
	assert.NotEqual(t, seed1.ID, seed3.ID)
}

// TestForkSeedTruncatesToContextWindow verifies the chars-per-token sizing
// logic: a transcript that would overflow a tiny context window is
// truncated and seed_ack_filtered is set.
func TestForkSeedTruncatesToContextWindow(t *testing.T) {
	s := newTestStore(t)
	r := &Repository{Name: "conduit", URL: "https://example.com/d.git", LocalPath: "/tmp/d"}
	require.NoError(t, s.CreateRepository(r))
	w := &Workspace{RepositoryID: r.ID, Name: "w", Path: "/tmp/d/w"}
	require.NoError(t, s.CreateWorkspace(w))

	var transcript string
	for i := 0; i < 10000; i++ {
		transcript += "the quick brown fox jumps over the lazy dog. "
	}

	untruncated, untruncatedEstimate, _ := buildForkSeedPrompt(transcript, 0)

	seed, err := s.GetOrCreateForkSeed("claude", transcript, nil, &w.ID, 50)
	require.NoError(t, err)
	assert.True(t, seed.SeedAckFiltered)
	assert.Less(t, len(seed.SeedPrompt), len(untruncated))
	assert.Less(t, seed.TokenEstimate, untruncatedEstimate)
}

func TestAppStateGetSet(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAppState("last_workspace")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetAppState("last_workspace", "ws-123"))
	v, err := s.GetAppState("last_workspace")
	require.NoError(t, err)
	assert.Equal(t, "ws-123", v)

	require.NoError(t, s.SetAppState("last_workspace", "ws-456"))
	v, err = s.GetAppState("last_workspace")
	require.NoError(t, err)
	assert.Equal(t, "ws-456", v)
}
