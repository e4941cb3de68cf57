package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/logging"
)

// eventsBuffer is the channel capacity between the reader goroutine and the
// App reducer: "unbounded-but-monitored" in practice means a generous
// bounded size, so a stalled reducer degrades into backpressure instead of
// unbounded memory growth.
const eventsBuffer = 256

// interruptGrace is how long interrupt() waits for cooperative exit before
// escalating to a forceful terminate.
const interruptGrace = 5 * time.Second

// Handle is the live-session handle a runner Start returns: an events
// stream plus send/interrupt/close control.
type Handle struct {
	events chan event.AgentEvent

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	adapter     Adapter
	logger      *logging.Logger
	exited      chan struct{}
	closed      bool
	unusable    bool
	resumeID    string
	confirmed   bool
	sawFatalErr bool
	exitErr     error
}

// Events returns the channel of normalized agent events for this session.
// It is closed once AgentStreamEnded has been delivered.
func (h *Handle) Events() <-chan event.AgentEvent {
	return h.events
}

// Start spawns the agent binary described by adapter/cfg and begins
// streaming its stdout. A spawn failure is returned directly — the caller
// (Session) turns it into a fatal Error message; no Handle is created.
func Start(ctx context.Context, adapter Adapter, cfg Config, logger *logging.Logger) (*Handle, error) {
	args := adapter.SpawnArgs(cfg)
	cmd := exec.Command(adapter.Binary(), args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn agent: %w", err)
	}

	h := &Handle{
		events:   make(chan event.AgentEvent, eventsBuffer),
		cmd:      cmd,
		stdin:    stdin,
		adapter:  adapter,
		logger:   logger.With(zap.String("component", "runner"), zap.Int("pid", cmd.Process.Pid)),
		exited:   make(chan struct{}),
		resumeID: cfg.ResumeSessionID,
	}

	go h.readStdout(ctx, stdout)
	go h.pipeStderr(stderr)
	go h.monitorExit()

	return h, nil
}

func (h *Handle) readStdout(ctx context.Context, stdout io.Reader) {
	defer close(h.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+1)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if len(line) > MaxLineBytes {
			h.emit(ctx, event.AgentEvent{
				Type:         event.AgentEventError,
				ErrorMessage: "dropped oversized stdout line",
			})
			continue
		}

		evs, err := h.adapter.Decode(line)
		if err != nil {
			h.logger.Debug("decode error", zap.Error(err))
			h.emit(ctx, event.AgentEvent{
				Type:         event.AgentEventError,
				ErrorMessage: err.Error(),
			})
			continue
		}

		for _, ev := range evs {
			if ev.Type == event.AgentEventSessionInit {
				if h.resumeID != "" && !h.confirmed {
					if ev.SessionID != h.resumeID {
						continue
					}
					h.confirmed = true
				}
			}
			if ev.Type == event.AgentEventError && ev.IsFatal {
				h.mu.Lock()
				h.sawFatalErr = true
				h.mu.Unlock()
			}
			if !h.emit(ctx, ev) {
				h.terminate()
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("stdout scan error", zap.Error(err))
	}

	// stdout EOF precedes process exit notification by at most the OS pipe
	// teardown; wait for the exit status so a non-zero exit with no prior
	// fatal Error can be synthesized before the stream ends ("process exit"
	// error kind).
	<-h.exited

	h.mu.Lock()
	exitErr, sawFatal := h.exitErr, h.sawFatalErr
	closing := h.closed
	h.mu.Unlock()

	if exitErr != nil && !sawFatal && !closing {
		h.emit(ctx, event.AgentEvent{
			Type:         event.AgentEventError,
			ErrorMessage: exitErr.Error(),
			IsFatal:      true,
		})
	}
	h.emit(ctx, event.AgentEvent{Type: event.AgentEventStreamEnded})
}

// emit sends ev on the events channel, returning false if the caller should
// stop reading because the consumer side went away.
func (h *Handle) emit(ctx context.Context, ev event.AgentEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handle) pipeStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+1)
	for scanner.Scan() {
		h.logger.Warn(scanner.Text(), zap.String("stream", "stderr"))
	}
}

func (h *Handle) monitorExit() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.exitErr = err
	closing := h.closed
	h.mu.Unlock()
	close(h.exited)

	if err != nil && !closing {
		h.logger.Warn("agent exited non-zero", zap.Error(err))
	}
}

// Send injects a subsequent user prompt into an already-running session.
func (h *Handle) Send(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unusable {
		return fmt.Errorf("runner: handle unusable after prior stdin failure")
	}
	line, err := h.adapter.EncodeInput(text)
	if err != nil {
		return fmt.Errorf("encode prompt: %w", err)
	}
	line = append(line, '\n')
	if _, err := h.stdin.Write(line); err != nil {
		h.unusable = true
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Interrupt sends the agent's cooperative cancellation signal and escalates
// to a forceful kill if the process does not exit within the grace period.
func (h *Handle) Interrupt(ctx context.Context) error {
	h.mu.Lock()
	proc := h.cmd.Process
	h.mu.Unlock()
	if proc == nil {
		return nil
	}

	if err := h.signal(proc); err != nil {
		h.logger.Warn("interrupt signal failed, escalating to kill", zap.Error(err))
		return h.forceKill()
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		return h.forceKill()
	case <-time.After(interruptGrace):
		return h.forceKill()
	}
}

// Close closes stdin, signals the process, and force-kills it if it has not
// exited within interruptGrace or before ctx is done. Later calls return nil.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	proc := h.cmd.Process
	h.mu.Unlock()

	_ = h.stdin.Close()
	if proc == nil {
		return nil
	}

	if err := h.signal(proc); err != nil {
		return h.forceKill()
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		return h.forceKill()
	case <-time.After(interruptGrace):
		return h.forceKill()
	}
}

func (h *Handle) terminate() {
	_ = h.forceKill()
}

func (h *Handle) forceKill() error {
	h.mu.Lock()
	proc := h.cmd.Process
	h.mu.Unlock()
	if proc == nil {
		return nil
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill agent process: %w", err)
	}
	return nil
}
