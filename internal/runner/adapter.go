// Package runner spawns and supervises one coding-agent subprocess per live
// session, decodes its line-delimited JSON stdout into normalized
// event.AgentEvent values, and exposes a Handle the session state machine
// drives.
//
// Restated from the transport.Adapter family
// (internal/agentctl/server/adapter/transport/{streamjson,codex,opencode})
// for the decode-one-line contract, and from
// internal/agentctl/client/launcher/launcher.go for the spawn/pipe/signal
// pattern.
package runner

import "github.com/jrcrittenden/conduit/internal/event"

// Config describes how to start one agent session.
type Config struct {
	Prompt          string
	WorkingDir      string
	AllowedTools    []string
	Model           string
	ResumeSessionID string
}

// Adapter is the only place that knows an agent's on-wire shape. The Runner
// is otherwise adapter-agnostic: it only spawns a binary and shuttles lines.
type Adapter interface {
	// Binary returns the executable name to spawn (resolved via PATH).
	Binary() string

	// SpawnArgs returns the command-line arguments for cfg.
	SpawnArgs(cfg Config) []string

	// Decode turns one stdout line into zero or more normalized events.
	// An error here is a non-fatal decode error; the runner reports it as
	// Error{is_fatal=false} and keeps reading.
	Decode(line []byte) ([]event.AgentEvent, error)

	// InterruptSignal identifies the OS signal used for cooperative
	// cancellation (SIGINT for all three supported agent CLIs).
	InterruptSignal() string

	// EncodeInput formats a user prompt as the line written to the agent's
	// stdin to inject it into an already-running session.
	EncodeInput(text string) ([]byte, error)
}

// MaxLineBytes bounds a single stdout record; lines longer than this are
// dropped with a non-fatal Error event rather than grown unbounded.
const MaxLineBytes = 1 << 20 // 1 MiB
