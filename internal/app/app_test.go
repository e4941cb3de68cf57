package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/session"
	"github.com/jrcrittenden/conduit/internal/store"
	"github.com/jrcrittenden/conduit/internal/tabs"
)

func newTestApp(t *testing.T, tm *tabs.Manager) *App {
	t.Helper()
	return New(Config{
		Tabs:   tm,
		NewTab: func() *session.Session { return session.New(session.Config{ID: "new"}) },
		Stdin:  strings.NewReader(""),
	})
}

func TestHandleAction_CharAndBackspaceEditPendingInput(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionChar, Rune: 'h'})
	a.handleAction(context.Background(), Action{Kind: ActionChar, Rune: 'i'})
	assert.Equal(t, "hi", s.PendingInput())

	a.handleAction(context.Background(), Action{Kind: ActionBackspace})
	assert.Equal(t, "h", s.PendingInput())
}

func TestHandleAction_SubmitClearsPendingInputAndRecordsHistory(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	s.SetPendingInput("hello there")
	a.handleAction(context.Background(), Action{Kind: ActionSubmit})

	assert.Empty(t, s.PendingInput())
	assert.Equal(t, []string{"hello there"}, s.CommandHistory())
}

func TestHandleAction_SubmitIsNoopOnEmptyInput(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionSubmit})
	assert.Empty(t, s.CommandHistory())
}

func TestHandleAction_NewTabRefusesPastMax(t *testing.T) {
	tm := tabs.NewManager(1)
	tm.NewTab(session.New(session.Config{ID: "first"}))
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionNewTab})
	assert.Equal(t, 1, tm.Len())
}

func TestHandleAction_NewTabAddsAndActivates(t *testing.T) {
	tm := tabs.NewManager(10)
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionNewTab})
	require.Equal(t, 1, tm.Len())
	assert.Equal(t, 0, tm.ActiveIndex())
}

func TestHandleAction_CloseTabClosesSessionAndShrinksManager(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionCloseTab})
	assert.Equal(t, session.StateClosed, s.State())
	assert.True(t, tm.IsEmpty())
}

func TestHandleAction_SwitchTabActivatesByIndex(t *testing.T) {
	tm := tabs.NewManager(10)
	tm.NewTab(session.New(session.Config{ID: "a"}))
	tm.NewTab(session.New(session.Config{ID: "b"}))
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionSwitchTab, Index: 0})
	assert.Equal(t, 0, tm.ActiveIndex())
}

func TestHandleAction_QuitSetsFlag(t *testing.T) {
	tm := tabs.NewManager(10)
	a := newTestApp(t, tm)

	a.handleAction(context.Background(), Action{Kind: ActionQuit})
	assert.True(t, a.quit)
}

func TestDispatchAgentEvent_DroppedForClosedTab(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	tm.CloseTab(0)
	a.dispatchAgentEvent(taggedEvent{session: s, event: event.AgentEvent{Type: event.AgentEventTurnStarted}})
	assert.Equal(t, session.StateIdle, s.State())
}

func TestDispatchAgentEvent_RoutesToOwningSession(t *testing.T) {
	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "a"})
	tm.NewTab(s)
	a := newTestApp(t, tm)

	a.dispatchAgentEvent(taggedEvent{session: s, event: event.AgentEvent{Type: event.AgentEventTurnStarted}})
	assert.Equal(t, session.StateProcessing, s.State())
}

func TestDrainQuit_PersistsTabsWhenStoreProvided(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "conduit.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	repo := &store.Repository{Name: "conduit", URL: "https://example.com/x.git", LocalPath: "/tmp/x"}
	require.NoError(t, st.CreateRepository(repo))
	ws := &store.Workspace{RepositoryID: repo.ID, Name: "w", Path: "/tmp/x/w"}
	require.NoError(t, st.CreateWorkspace(ws))

	tm := tabs.NewManager(10)
	s := session.New(session.Config{ID: "tab-1", WorkspaceID: ws.ID, AgentKind: session.AgentClaude})
	tm.NewTab(s)

	a := New(Config{Tabs: tm, Store: st, Stdin: strings.NewReader("")})
	require.NoError(t, a.drainQuit())

	loaded, err := st.LoadTabs(ws.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "claude", loaded[0].AgentType)
	assert.Equal(t, session.StateClosed, s.State())
}
