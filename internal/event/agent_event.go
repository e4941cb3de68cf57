package event

// AgentEventType tags the variant of an AgentEvent.
type AgentEventType string

const (
	AgentEventSessionInit    AgentEventType = "session_init"
	AgentEventTurnStarted    AgentEventType = "turn_started"
	AgentEventTurnCompleted  AgentEventType = "turn_completed"
	AgentEventTurnFailed     AgentEventType = "turn_failed"
	AgentEventAssistantMsg   AgentEventType = "assistant_message"
	AgentEventToolStarted    AgentEventType = "tool_started"
	AgentEventToolCompleted  AgentEventType = "tool_completed"
	AgentEventCommandOutput  AgentEventType = "command_output"
	AgentEventError          AgentEventType = "error"
	AgentEventStreamEnded    AgentEventType = "stream_ended"
)

// Usage is accumulated token usage for a turn or session.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Add returns the element-wise sum of two Usage values.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// AgentEvent is the normalized vocabulary the Runner (C3) emits toward the
// Session (C4) via the App reducer (C6). It is a tagged union: Type
// determines which fields are meaningful.
type AgentEvent struct {
	Type AgentEventType

	// SessionInit
	SessionID string

	// TurnCompleted
	Usage Usage

	// TurnFailed / Error
	ErrorMessage string
	IsFatal      bool

	// AssistantMessage
	Text    string
	IsFinal bool

	// ToolStarted / ToolCompleted
	ToolID     string
	ToolName   string
	Arguments  string
	Success    bool
	Result     string
	ToolError  string
	HasResult  bool

	// CommandOutput
	Command  string
	Output   string
	ExitCode *int
}
