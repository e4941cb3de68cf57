// Package app implements the App Event Loop (C6): a single-threaded
// reducer that merges terminal input, a periodic tick, and per-tab agent
// events, dispatching each to the owning session.Session without ever
// running two handlers concurrently.
//
// Grounded on original_source/src/ui/app.rs's App::run, whose
// tokio::select! merge of input/tick/event_rx is restated here as a Go
// select over channels (Go has no async runtime to borrow), and on the
// teacher's channel-based stream reducer in
// internal/agentctl/client/workspace_stream.go (readLoop/writeLoop pair
// feeding a single consumer over channels).
package app

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/logging"
	"github.com/jrcrittenden/conduit/internal/session"
	"github.com/jrcrittenden/conduit/internal/store"
	"github.com/jrcrittenden/conduit/internal/tabs"
)

const tickInterval = 16 * time.Millisecond

// taggedEvent carries one agent event alongside the session it belongs to,
// the way C3 tags events with a tab index at the point they leave the
// runner. The session pointer itself is the tag here: tabs are looked up
// by identity, not by a numeric index that could have shifted by the time
// the event is handled.
type taggedEvent struct {
	session *session.Session
	event   event.AgentEvent
}

// NewSessionFunc builds a fresh, not-yet-started session for a new tab —
// supplied by cmd/conduit, which knows the default agent kind, workspace,
// and working directory to seed it with.
type NewSessionFunc func() *session.Session

// App owns the Tab Manager and drives its single reducer loop.
type App struct {
	tabs    *tabs.Manager
	store   *store.Store
	logger  *logging.Logger
	newTab  NewSessionFunc
	onTick  func()

	actions chan Action
	inbound chan taggedEvent

	forwarding map[*session.Session]bool
	quit       bool
}

// Config seeds a new App.
type Config struct {
	Tabs    *tabs.Manager
	Store   *store.Store
	Logger  *logging.Logger
	NewTab  NewSessionFunc
	OnTick  func()
	Stdin   io.Reader
}

// New builds an App and starts the background key-decoding goroutine
// reading from cfg.Stdin.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	a := &App{
		tabs:       cfg.Tabs,
		store:      cfg.Store,
		logger:     logger.With(zap.String("component", "app")),
		newTab:     cfg.NewTab,
		onTick:     cfg.OnTick,
		actions:    make(chan Action, 64),
		inbound:    make(chan taggedEvent, 256),
		forwarding: make(map[*session.Session]bool),
	}
	go decodeKeys(cfg.Stdin, a.actions)
	for _, s := range a.tabs.Sessions() {
		a.ensureForwarder(s)
	}
	return a
}

// Run is the single-threaded reducer loop. It returns when the user quits
// or ctx is cancelled, having already drained (persisted tabs, closed
// runners) before returning.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for !a.quit {
		select {
		case <-ctx.Done():
			a.quit = true

		case act, ok := <-a.actions:
			if !ok {
				a.quit = true
				break
			}
			a.handleAction(ctx, act)

		case <-ticker.C:
			if a.onTick != nil {
				a.onTick()
			}

		case te, ok := <-a.inbound:
			if ok {
				a.dispatchAgentEvent(te)
			}
		}
	}

	return a.drainQuit()
}

// ensureForwarder starts, at most once per session, a goroutine copying
// that session's runner events onto the shared inbound channel. It is only
// ever called from the reducer goroutine (at App construction, right after
// a Submit that may have just started the runner, and after a new tab is
// opened), so the forwarding
// map needs no lock of its own.
func (a *App) ensureForwarder(s *session.Session) {
	if a.forwarding[s] {
		return
	}
	ch := s.Events()
	if ch == nil {
		return
	}
	a.forwarding[s] = true
	go func() {
		for ev := range ch {
			a.inbound <- taggedEvent{session: s, event: ev}
		}
	}()
}

func (a *App) handleAction(ctx context.Context, act Action) {
	switch act.Kind {
	case ActionChar:
		if s := a.tabs.ActiveSession(); s != nil {
			s.SetPendingInput(s.PendingInput() + string(act.Rune))
		}

	case ActionBackspace:
		if s := a.tabs.ActiveSession(); s != nil {
			buf := []rune(s.PendingInput())
			if len(buf) > 0 {
				s.SetPendingInput(string(buf[:len(buf)-1]))
			}
		}

	case ActionSubmit:
		s := a.tabs.ActiveSession()
		if s == nil {
			return
		}
		text := s.PendingInput()
		if text == "" {
			return
		}
		s.SetPendingInput("")
		s.RecordCommand(text)
		if err := s.Submit(ctx, text); err != nil {
			a.logger.Warn("submit failed", zap.Error(err))
		}
		a.ensureForwarder(s)

	case ActionPopQueued:
		if s := a.tabs.ActiveSession(); s != nil {
			if prompt, ok := s.PopQueuedTail(); ok {
				s.SetPendingInput(prompt)
			}
		}

	case ActionInterrupt:
		// Ctrl-C on the active tab only interrupts its runner; it never
		// quits the app.
		if s := a.tabs.ActiveSession(); s != nil {
			if err := s.Interrupt(ctx); err != nil {
				a.logger.Warn("interrupt failed", zap.Error(err))
			}
		}

	case ActionNewTab:
		if a.newTab == nil || !a.tabs.CanAddTab() {
			return
		}
		s := a.newTab()
		if s == nil {
			return
		}
		if _, ok := a.tabs.NewTab(s); ok {
			a.ensureForwarder(s)
		}

	case ActionCloseTab:
		idx := a.tabs.ActiveIndex()
		s, err := a.tabs.Session(idx)
		if err != nil {
			return
		}
		if err := s.Close(ctx); err != nil {
			a.logger.Warn("close runner failed", zap.Error(err))
		}
		if a.store != nil {
			if err := a.store.DeleteTab(s.ID); err != nil {
				a.logger.Warn("delete persisted tab failed", zap.Error(err))
			}
		}
		a.tabs.CloseTab(idx)

	case ActionNextTab:
		a.tabs.NextTab()

	case ActionPrevTab:
		a.tabs.PrevTab()

	case ActionSwitchTab:
		a.tabs.SwitchTo(act.Index)

	case ActionQuit:
		a.quit = true
	}
}

// dispatchAgentEvent routes one event to its owning session, unless that
// session's tab has since been closed — events destined for closed tab
// indices are dropped.
func (a *App) dispatchAgentEvent(te taggedEvent) {
	if a.tabs.IndexOf(te.session) == -1 {
		return
	}
	te.session.HandleEvent(te.event)
}

// drainQuit persists all tab state, then closes every runner. Closing is
// fanned out with errgroup since each Handle.Close can block up to
// interruptGrace waiting for its subprocess to exit — doing N of them
// concurrently instead of serially bounds total quit latency to the
// slowest one instead of their sum.
func (a *App) drainQuit() error {
	if a.store != nil {
		for idx, s := range a.tabs.Sessions() {
			if err := a.persistTab(idx, s); err != nil {
				a.logger.Warn("persist tab on quit failed", zap.Error(err))
			}
		}
	}

	// Closing uses its own background context rather than the (possibly
	// already-cancelled) run context, so a quit triggered by ctx
	// cancellation still gives each subprocess its full interruptGrace to
	// exit cooperatively instead of forceKilling immediately.
	g, gctx := errgroup.WithContext(context.Background())
	for _, s := range a.tabs.Sessions() {
		s := s
		g.Go(func() error {
			if err := s.Close(gctx); err != nil {
				a.logger.Warn("close runner on quit failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *App) persistTab(position int, s *session.Session) error {
	usageJSON, err := json.Marshal(s.TotalUsage())
	if err != nil {
		return err
	}
	usage := string(usageJSON)

	queuedJSON, err := json.Marshal(s.QueuedMessages())
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(s.CommandHistory())
	if err != nil {
		return err
	}

	agentSessionID := s.AgentSessionID()
	var agentSessionIDPtr *string
	if agentSessionID != "" {
		agentSessionIDPtr = &agentSessionID
	}

	return a.store.SaveTab(&store.SessionTab{
		ID:             s.ID,
		WorkspaceID:    nonEmptyPtr(s.WorkspaceID),
		AgentType:      string(s.AgentKind),
		Position:       position,
		Model:          nonEmptyPtr(s.Model),
		WorkingDir:     nonEmptyPtr(s.WorkingDir),
		AgentSessionID: agentSessionIDPtr,
		IsActive:       a.tabs.ActiveIndex() == position,
		NeedsAttention: s.NeedsAttention(),
		TotalUsageJSON: &usage,
		AgentMode:      "build",
		QueuedMessages: string(queuedJSON),
		InputHistory:   string(historyJSON),
	})
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
