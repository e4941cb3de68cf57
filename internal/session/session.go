// Package session implements the per-tab state machine (C4):
// Idle/Processing/Interrupting/Closed, the queued-message FIFO, the
// streaming-assistant buffer, the attention flag, and usage accumulation.
// A Session owns at most one live runner.Handle at a time.
//
// Restated from internal/agent/lifecycle.SessionManager (the
// prompt-dispatch / waitForPromptDone shape) as an explicit state machine
// over plain struct fields, and from the AgentStatus enum in
// pkg/api/v1/agent.go (Pending/Running/Ready/Completed/Failed), narrowed
// here to four states.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/logging"
	"github.com/jrcrittenden/conduit/internal/runner"
)

// State is one of the four states a Session's agent subprocess can be in.
type State string

const (
	StateIdle         State = "idle"
	StateProcessing   State = "processing"
	StateInterrupting State = "interrupting"
	StateClosed       State = "closed"
)

// AgentKind identifies which coding-agent CLI a session talks to.
type AgentKind string

const (
	AgentClaude   AgentKind = "claude"
	AgentCodex    AgentKind = "codex"
	AgentOpenCode AgentKind = "opencode"
)

// Starter abstracts runner.Start so tests can substitute a fake without
// spawning a real subprocess.
type Starter interface {
	Start(ctx context.Context, cfg runner.Config) (*runner.Handle, error)
}

// Session is a single tab's conversation with one agent subprocess: its
// chat history, in-flight streaming buffer, queued prompts, and usage
// totals. Exactly one Session owns a given runner.Handle.
type Session struct {
	mu sync.Mutex

	ID          string
	AgentKind   AgentKind
	Model       string
	WorkspaceID string
	WorkingDir  string

	state State

	chat            []event.Message
	streamingBuffer string
	streamingActive bool

	rawEvents []event.AgentEvent

	pendingInput   string
	commandHistory []string
	queued         []string

	handle          *runner.Handle
	starter         Starter
	agentSessionID  string
	resumeSessionID string

	totalUsage event.Usage
	turnCount  int

	needsAttention bool
	active         bool

	logger *logging.Logger
}

// Config seeds a new Session.
type Config struct {
	ID              string
	AgentKind       AgentKind
	Model           string
	WorkspaceID     string
	WorkingDir      string
	ResumeSessionID string
	Starter         Starter
	Logger          *logging.Logger
}

// New builds an idle Session. If cfg.ResumeSessionID is set, the caller is
// expected to have already rehydrated Chat from history (C2) before the
// first prompt is submitted — New never touches history itself.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		ID:              cfg.ID,
		AgentKind:       cfg.AgentKind,
		Model:           cfg.Model,
		WorkspaceID:     cfg.WorkspaceID,
		WorkingDir:      cfg.WorkingDir,
		resumeSessionID: cfg.ResumeSessionID,
		starter:         cfg.Starter,
		state:           StateIdle,
		logger:          logger.With(zap.String("component", "session")),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Chat returns a copy of the finalized message sequence, including the
// live streaming tail (if any) as a trailing streaming Assistant message.
func (s *Session) Chat() []event.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Message, len(s.chat))
	copy(out, s.chat)
	if s.streamingActive {
		out = append(out, event.NewAssistant(s.streamingBuffer, true))
	}
	return out
}

// SetChat replaces the finalized message sequence — used once at startup to
// rehydrate a restored session from the history replayer (C2).
func (s *Session) SetChat(messages []event.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = append([]event.Message(nil), messages...)
}

// IsProcessing reports whether the session currently owns a live turn.
func (s *Session) IsProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateProcessing || s.state == StateInterrupting
}

// NeedsAttention reports the attention flag.
func (s *Session) NeedsAttention() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsAttention
}

// SetActive marks whether this session's tab is the currently active one.
// Activating clears needs_attention.
func (s *Session) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
	if active {
		s.needsAttention = false
	}
}

// TotalUsage returns the accumulated token usage across completed turns.
func (s *Session) TotalUsage() event.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUsage
}

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// QueuedMessages returns a copy of the FIFO of prompts queued while
// processing.
func (s *Session) QueuedMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queued))
	copy(out, s.queued)
	return out
}

// SetQueuedMessages seeds the queued-prompt FIFO — used once at startup to
// restore a tab's pending queue from its persisted session_tabs row.
func (s *Session) SetQueuedMessages(queued []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append([]string(nil), queued...)
}

// PopQueuedTail removes and returns the most recently queued prompt,
// restoring it to the input buffer as an "undo-queue" action. Returns
// ok=false if the queue is empty.
func (s *Session) PopQueuedTail() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) == 0 {
		return "", false
	}
	last := s.queued[len(s.queued)-1]
	s.queued = s.queued[:len(s.queued)-1]
	return last, true
}

// errNotStarted is returned by Submit when no runner.Handle is live and no
// Starter was configured to create one.
var errNotStarted = fmt.Errorf("session: no starter configured")

// Submit delivers a user prompt. If the session is idle, it starts (or
// resumes) the runner and transitions to Processing. If already
// processing, the prompt is appended to queued_messages instead of being
// sent immediately.
func (s *Session) Submit(ctx context.Context, prompt string) error {
	if prompt == "" {
		return nil
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("session: closed")
	}
	if s.state == StateProcessing || s.state == StateInterrupting {
		s.queued = append(s.queued, prompt)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.pushUser(prompt)
	return s.startTurn(ctx, prompt)
}

func (s *Session) startTurn(ctx context.Context, prompt string) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()

	if handle == nil {
		if s.starter == nil {
			s.pushError(fmt.Sprintf("failed to start agent: %v", errNotStarted))
			return errNotStarted
		}
		resumeID := s.resumeSessionID
		h, err := s.starter.Start(ctx, runner.Config{
			Prompt:          prompt,
			WorkingDir:      s.WorkingDir,
			Model:           s.Model,
			ResumeSessionID: resumeID,
		})
		if err != nil {
			s.pushError(fmt.Sprintf("failed to start agent: %v", err))
			return err
		}
		s.mu.Lock()
		s.handle = h
		s.state = StateProcessing
		s.mu.Unlock()
		return nil
	}

	if err := handle.Send(prompt); err != nil {
		s.pushError(fmt.Sprintf("failed to send prompt: %v", err))
		return err
	}
	s.mu.Lock()
	s.state = StateProcessing
	s.mu.Unlock()
	return nil
}

// HandleEvent applies one normalized agent event, driving the session's
// state machine transitions. It holds s.mu for the whole call, so calls are
// serialized against each other and against the accessor methods above; the
// C6 reducer delivers each session's events from a single goroutine.
func (s *Session) HandleEvent(ev event.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rawEvents = append(s.rawEvents, ev)

	if !s.active && isAttentionEvent(ev) {
		s.needsAttention = true
	}

	switch ev.Type {
	case event.AgentEventSessionInit:
		s.agentSessionID = ev.SessionID

	case event.AgentEventTurnStarted:
		s.state = StateProcessing

	case event.AgentEventAssistantMsg:
		s.applyAssistantLocked(ev)

	case event.AgentEventToolStarted:
		s.finalizeStreamingLocked()
		msg := event.NewTool(ev.ToolName, ev.Arguments, "", nil)
		s.chat = append(s.chat, msg)

	case event.AgentEventToolCompleted:
		s.applyToolCompletedLocked(ev)

	case event.AgentEventCommandOutput:
		s.chat = append(s.chat, event.NewTool(ev.Command, ev.Command, ev.Output, ev.ExitCode))

	case event.AgentEventTurnCompleted:
		s.finalizeStreamingLocked()
		s.totalUsage = s.totalUsage.Add(ev.Usage)
		s.turnCount++
		s.advanceAfterTurnLocked()

	case event.AgentEventTurnFailed:
		s.finalizeStreamingLocked()
		s.chat = append(s.chat, event.NewError(ev.ErrorMessage))
		s.state = StateIdle

	case event.AgentEventError:
		s.finalizeStreamingLocked()
		s.chat = append(s.chat, event.NewError(ev.ErrorMessage))
		if ev.IsFatal {
			s.state = StateIdle
		}

	case event.AgentEventStreamEnded:
		if s.state == StateInterrupting {
			s.state = StateIdle
		}
	}
}

func isAttentionEvent(ev event.AgentEvent) bool {
	return ev.Type == event.AgentEventAssistantMsg || ev.Type == event.AgentEventToolStarted
}

func (s *Session) applyAssistantLocked(ev event.AgentEvent) {
	if ev.IsFinal {
		if s.streamingActive {
			s.streamingBuffer += ev.Text
		} else {
			s.streamingBuffer = ev.Text
		}
		s.chat = append(s.chat, event.NewAssistant(s.streamingBuffer, false))
		s.streamingBuffer = ""
		s.streamingActive = false
		return
	}
	s.streamingBuffer += ev.Text
	s.streamingActive = true
}

func (s *Session) finalizeStreamingLocked() {
	if !s.streamingActive {
		return
	}
	s.chat = append(s.chat, event.NewAssistant(s.streamingBuffer, false))
	s.streamingBuffer = ""
	s.streamingActive = false
}

func (s *Session) applyToolCompletedLocked(ev event.AgentEvent) {
	for i := len(s.chat) - 1; i >= 0; i-- {
		if s.chat[i].Kind != event.KindTool {
			continue
		}
		// The most recent Tool message with empty content is the one
		// ToolStarted just opened; ev.ToolID is not consulted, so the
		// match is by recency only.
		if s.chat[i].Content == "" {
			output := ev.Result
			if !ev.Success {
				output = "Error: " + ev.ToolError
			}
			s.chat[i].Content = output
			return
		}
		break
	}
}

// advanceAfterTurnLocked implements the Processing -> Idle transition on
// TurnCompleted: if queued_messages is non-empty, pop the head and
// re-enter Processing immediately.
func (s *Session) advanceAfterTurnLocked() {
	if len(s.queued) == 0 {
		s.state = StateIdle
		return
	}
	next := s.queued[0]
	s.queued = s.queued[1:]
	s.chat = append(s.chat, event.NewUser(next))
	handle := s.handle
	s.state = StateProcessing
	if handle == nil {
		return
	}
	go func() {
		if err := handle.Send(next); err != nil {
			s.pushError(fmt.Sprintf("failed to send queued prompt: %v", err))
		}
	}()
}

func (s *Session) pushUser(text string) {
	s.mu.Lock()
	s.chat = append(s.chat, event.NewUser(text))
	s.mu.Unlock()
}

func (s *Session) pushError(text string) {
	s.mu.Lock()
	s.chat = append(s.chat, event.NewError(text))
	s.state = StateIdle
	s.mu.Unlock()
}

// Interrupt requests cooperative cancellation of the live turn, pushing a
// System "Interrupted" message. Idempotent if not processing.
func (s *Session) Interrupt(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInterrupting
	handle := s.handle
	s.chat = append(s.chat, event.NewSystem("Interrupted"))
	s.mu.Unlock()

	if handle == nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	return handle.Interrupt(ctx)
}

// Close invokes runner.Close() (if a handle is live) and transitions to
// Closed. Always safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Close(ctx)
}

// Events returns the live handle's event channel, or nil if no runner is
// started yet. The App (C6) forwards it onto its shared inbound channel for
// every started session, active or not.
func (s *Session) Events() <-chan event.AgentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	return s.handle.Events()
}

// AgentSessionID returns the agent's own session id once SessionInit has
// been observed (empty before then).
func (s *Session) AgentSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentSessionID
}

// PendingInput returns the draft input buffer without clearing it — used when
// restoring a tab's in-progress (unsent) keystrokes.
func (s *Session) PendingInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingInput
}

// SetPendingInput stores the draft input buffer.
func (s *Session) SetPendingInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingInput = text
}

// RecordCommand appends to the input-history ring used for up-arrow
// recall, deduping an immediate repeat.
func (s *Session) RecordCommand(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.commandHistory); n > 0 && s.commandHistory[n-1] == text {
		return
	}
	s.commandHistory = append(s.commandHistory, text)
}

// SetCommandHistory seeds the up-arrow recall history — used once at
// startup to restore a tab's input history from its persisted
// session_tabs row.
func (s *Session) SetCommandHistory(history []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandHistory = append([]string(nil), history...)
}

// CommandHistory returns a copy of the recorded input history.
func (s *Session) CommandHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commandHistory))
	copy(out, s.commandHistory)
	return out
}

// RawEvents returns the debug event log: every normalized agent event
// this session has applied, in order.
func (s *Session) RawEvents() []event.AgentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.AgentEvent, len(s.rawEvents))
	copy(out, s.rawEvents)
	return out
}
