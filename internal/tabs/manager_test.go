package tabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/session"
)

func newTestSession(id string) *session.Session {
	return session.New(session.Config{ID: id})
}

// TestManager_ClosingSequence exercises repeated close_tab calls: tabs
// [A,B,C], active=2; close_tab(1) -> [A,C] active=1; close_tab(1) again ->
// [A] active=0; close_tab(0) -> [] active=0.
func TestManager_ClosingSequence(t *testing.T) {
	m := NewManager(10)
	a, b, c := newTestSession("A"), newTestSession("B"), newTestSession("C")
	_, _ = m.NewTab(a)
	_, _ = m.NewTab(b)
	_, _ = m.NewTab(c)
	require.Equal(t, 2, m.ActiveIndex())

	require.True(t, m.CloseTab(1))
	require.Equal(t, 2, m.Len())
	assert.Equal(t, a, m.Sessions()[0])
	assert.Equal(t, c, m.Sessions()[1])
	assert.Equal(t, 1, m.ActiveIndex())

	require.True(t, m.CloseTab(1))
	require.Equal(t, 1, m.Len())
	assert.Equal(t, 0, m.ActiveIndex())

	require.True(t, m.CloseTab(0))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.ActiveIndex())
	assert.True(t, m.IsEmpty())
}

func TestManager_NewTabRefusesAtMaxTabs(t *testing.T) {
	m := NewManager(1)
	_, ok := m.NewTab(newTestSession("A"))
	require.True(t, ok)
	_, ok = m.NewTab(newTestSession("B"))
	assert.False(t, ok)
	assert.False(t, m.CanAddTab())
}

func TestManager_SwitchToClearsAttentionOnIncoming(t *testing.T) {
	m := NewManager(10)
	a, b := newTestSession("A"), newTestSession("B")
	_, _ = m.NewTab(a)
	_, _ = m.NewTab(b)

	b.SetActive(false) // simulate background attention
	b.HandleEvent(event.AgentEvent{Type: event.AgentEventAssistantMsg, Text: "hi", IsFinal: true})
	require.True(t, b.NeedsAttention())
	assert.True(t, m.SwitchTo(1))
	assert.Equal(t, 1, m.ActiveIndex())
	assert.False(t, b.NeedsAttention())
}

func TestManager_NextPrevWrapAround(t *testing.T) {
	m := NewManager(10)
	_, _ = m.NewTab(newTestSession("A"))
	_, _ = m.NewTab(newTestSession("B"))
	_, _ = m.NewTab(newTestSession("C"))
	m.SwitchTo(0)

	m.PrevTab()
	assert.Equal(t, 2, m.ActiveIndex())

	m.NextTab()
	assert.Equal(t, 0, m.ActiveIndex())
}

func TestManager_ActiveSessionNilWhenEmpty(t *testing.T) {
	m := NewManager(10)
	assert.Nil(t, m.ActiveSession())
}

func TestManager_SessionOutOfRangeErrors(t *testing.T) {
	m := NewManager(10)
	_, _ = m.NewTab(newTestSession("A"))
	_, err := m.Session(5)
	assert.Error(t, err)
}

func TestManager_CloseTabOutOfRangeReturnsFalse(t *testing.T) {
	m := NewManager(10)
	assert.False(t, m.CloseTab(0))
}

func TestManager_IndexOfFindsSession(t *testing.T) {
	m := NewManager(10)
	a := newTestSession("A")
	_, _ = m.NewTab(a)
	assert.Equal(t, 0, m.IndexOf(a))
	assert.Equal(t, -1, m.IndexOf(newTestSession("B")))
}
