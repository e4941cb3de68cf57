package app

import (
	"bufio"
	"io"
)

// ActionKind enumerates the decoded user intents the reducer understands.
// Everything about interpreting a keystroke into layout/widget behavior
// (cursor movement inside multi-line input, scrollback, mouse) is out of
// scope here; this is deliberately the minimal vocabulary needed to drive
// C4 (Session) and C5 (Tab Manager).
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionChar
	ActionBackspace
	ActionSubmit
	ActionInterrupt
	ActionNewTab
	ActionCloseTab
	ActionNextTab
	ActionPrevTab
	ActionSwitchTab
	ActionPopQueued
	ActionQuit
)

// Action is one decoded unit of user input.
type Action struct {
	Kind  ActionKind
	Rune  rune
	Index int
}

const (
	ctrlC = 0x03
	ctrlD = 0x04
	ctrlN = 0x0e
	ctrlP = 0x10
	ctrlQ = 0x11
	ctrlU = 0x15
	ctrlW = 0x17
	tab   = 0x09
	esc   = 0x1b
	bs1   = 0x08
	del   = 0x7f
	cr    = '\r'
	lf    = '\n'
)

// decodeKeys reads raw bytes from r and emits decoded Actions on actions
// until r returns an error (typically when the terminal is closed or the
// reader is interrupted by ctx cancellation upstream). It is run in its own
// goroutine started by New; the reducer goroutine only ever reads from actions.
func decodeKeys(r io.Reader, actions chan<- Action) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			close(actions)
			return
		}

		switch b {
		case ctrlC:
			actions <- Action{Kind: ActionInterrupt}
		case ctrlQ, ctrlD:
			actions <- Action{Kind: ActionQuit}
		case ctrlN:
			actions <- Action{Kind: ActionNewTab}
		case ctrlW:
			actions <- Action{Kind: ActionCloseTab}
		case ctrlU:
			actions <- Action{Kind: ActionPopQueued}
		case tab:
			actions <- Action{Kind: ActionNextTab}
		case ctrlP:
			actions <- Action{Kind: ActionPrevTab}
		case cr, lf:
			actions <- Action{Kind: ActionSubmit}
		case bs1, del:
			actions <- Action{Kind: ActionBackspace}
		case esc:
			// Alt+digit: ESC followed immediately by '1'-'9' switches to
			// that tab (0-indexed). Any other byte after ESC is dropped —
			// full escape-sequence parsing (arrow keys, etc.) belongs to
			// the out-of-scope rendering layer.
			next, err := br.ReadByte()
			if err != nil {
				close(actions)
				return
			}
			if next >= '1' && next <= '9' {
				actions <- Action{Kind: ActionSwitchTab, Index: int(next - '1')}
			}
		default:
			if b >= 0x20 {
				actions <- Action{Kind: ActionChar, Rune: rune(b)}
			}
		}
	}
}
