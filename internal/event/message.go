// Package event defines the normalized Message and AgentEvent vocabulary
// shared by the live agent runner and the history replayer. These are the
// only types the rest of the system (session state machine, reducer, view
// model) ever sees; nothing downstream knows about any agent's wire format.
package event

// Kind identifies the role of a Message in a chat transcript.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindTool      Kind = "tool"
	KindSystem    Kind = "system"
	KindError     Kind = "error"
	KindReasoning Kind = "reasoning"
	KindSummary   Kind = "summary"
)

// TurnSummary is the structured content of a Summary message.
type TurnSummary struct {
	DurationSecs float64  `json:"duration_secs"`
	InputTokens  int64    `json:"input_tokens"`
	OutputTokens int64    `json:"output_tokens"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

// Message is the single normalized chat-line type produced by both the
// live runner (C3) and the history replayer (C2).
type Message struct {
	Kind Kind `json:"kind"`

	// Content is the message text. Empty for Summary messages (use Summary
	// instead), and may be empty for Tool messages with no output yet.
	Content string `json:"content,omitempty"`

	// Tool fields, populated when Kind == KindTool.
	ToolName  string `json:"tool_name,omitempty"`
	ToolArgs  string `json:"tool_args,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	FileSize  *int64 `json:"file_size,omitempty"`

	// IsStreaming is true only for the live tail of an in-progress
	// Assistant turn; set false once finalized. Only meaningful for
	// Kind == KindAssistant.
	IsStreaming bool `json:"is_streaming,omitempty"`

	// Summary is populated when Kind == KindSummary.
	Summary *TurnSummary `json:"summary,omitempty"`
}

// NewUser builds a User message.
func NewUser(content string) Message {
	return Message{Kind: KindUser, Content: content}
}

// NewAssistant builds an Assistant message. isStreaming marks an
// in-progress live tail; callers finalize by pushing a non-streaming copy.
func NewAssistant(content string, isStreaming bool) Message {
	return Message{Kind: KindAssistant, Content: content, IsStreaming: isStreaming}
}

// NewSystem builds a System message (e.g. "Interrupted").
func NewSystem(content string) Message {
	return Message{Kind: KindSystem, Content: content}
}

// NewError builds an Error message.
func NewError(content string) Message {
	return Message{Kind: KindError, Content: content}
}

// NewReasoning builds a Reasoning message.
func NewReasoning(content string) Message {
	return Message{Kind: KindReasoning, Content: content}
}

// NewTool builds a Tool message.
func NewTool(toolName, toolArgs, output string, exitCode *int) Message {
	return Message{
		Kind:     KindTool,
		Content:  output,
		ToolName: toolName,
		ToolArgs: toolArgs,
		ExitCode: exitCode,
	}
}

// NewSummary builds a Summary message from a TurnSummary.
func NewSummary(s TurnSummary) Message {
	return Message{Kind: KindSummary, Summary: &s}
}
