// Package tabs implements the Tab Manager (C5): a bounded, ordered
// collection of sessions with a single active index. Restated in Go from
// original_source/src/ui/tab_manager.rs's TabManager, whose close/switch/
// next/prev active-index bookkeeping is restated here verbatim.
package tabs

import (
	"fmt"

	"github.com/jrcrittenden/conduit/internal/session"
)

// Manager is a bounded ordered collection of *session.Session with a
// single active index. Invariants: 0 <= active < len when non-empty;
// closing adjusts active to remain valid; switching clears the incoming
// tab's needs_attention flag.
type Manager struct {
	sessions []*session.Session
	active   int
	maxTabs  int
}

// NewManager builds an empty Manager bounded to maxTabs tabs.
func NewManager(maxTabs int) *Manager {
	return &Manager{maxTabs: maxTabs}
}

// NewTab appends a new session and makes it active, refusing when the
// manager is already at maxTabs.
func (m *Manager) NewTab(s *session.Session) (int, bool) {
	if len(m.sessions) >= m.maxTabs {
		return 0, false
	}
	m.sessions = append(m.sessions, s)
	m.active = len(m.sessions) - 1
	return m.active, true
}

// AddSession appends an already-constructed session (used when restoring
// tabs from the persistent store) without changing the active index,
// unless this is the first tab.
func (m *Manager) AddSession(s *session.Session) (int, bool) {
	if len(m.sessions) >= m.maxTabs {
		return 0, false
	}
	m.sessions = append(m.sessions, s)
	idx := len(m.sessions) - 1
	if idx == 0 {
		m.active = 0
	}
	return idx, true
}

// CloseTab removes the session at index, adjusting the active index to
// remain valid: active is decremented (never below 0) if the removed index
// was <= active, otherwise clamped to len-1.
func (m *Manager) CloseTab(index int) bool {
	if index < 0 || index >= len(m.sessions) {
		return false
	}
	m.sessions = append(m.sessions[:index], m.sessions[index+1:]...)

	switch {
	case len(m.sessions) == 0:
		m.active = 0
	case index <= m.active && m.active > 0:
		m.active--
	case m.active >= len(m.sessions):
		m.active = len(m.sessions) - 1
	}
	return true
}

// SwitchTo activates the tab at index and clears its attention flag.
func (m *Manager) SwitchTo(index int) bool {
	if index < 0 || index >= len(m.sessions) {
		return false
	}
	if m.active != index {
		if prev := m.sessions[m.active]; prev != nil {
			prev.SetActive(false)
		}
	}
	m.active = index
	m.sessions[index].SetActive(true)
	return true
}

// NextTab wraps forward to the next tab, clearing its attention flag.
func (m *Manager) NextTab() {
	if len(m.sessions) == 0 {
		return
	}
	m.SwitchTo((m.active + 1) % len(m.sessions))
}

// PrevTab wraps backward to the previous tab, clearing its attention flag.
func (m *Manager) PrevTab() {
	if len(m.sessions) == 0 {
		return
	}
	if m.active == 0 {
		m.SwitchTo(len(m.sessions) - 1)
		return
	}
	m.SwitchTo(m.active - 1)
}

// ActiveIndex returns the currently active tab index.
func (m *Manager) ActiveIndex() int { return m.active }

// Len returns the number of open tabs.
func (m *Manager) Len() int { return len(m.sessions) }

// IsEmpty reports whether there are no tabs.
func (m *Manager) IsEmpty() bool { return len(m.sessions) == 0 }

// CanAddTab reports whether another tab may be opened.
func (m *Manager) CanAddTab() bool { return len(m.sessions) < m.maxTabs }

// ActiveSession returns the active session, or nil if there are no tabs.
func (m *Manager) ActiveSession() *session.Session {
	if m.IsEmpty() {
		return nil
	}
	return m.sessions[m.active]
}

// Session returns the session at index, or an error if out of range.
func (m *Manager) Session(index int) (*session.Session, error) {
	if index < 0 || index >= len(m.sessions) {
		return nil, fmt.Errorf("tabs: index %d out of range (len=%d)", index, len(m.sessions))
	}
	return m.sessions[index], nil
}

// Sessions returns the underlying slice for iteration. Callers must not
// retain it across a CloseTab/NewTab call.
func (m *Manager) Sessions() []*session.Session {
	return m.sessions
}

// IndexOf returns the tab index owning s, or -1 if not present.
func (m *Manager) IndexOf(s *session.Session) int {
	for i, cur := range m.sessions {
		if cur == s {
			return i
		}
	}
	return -1
}
