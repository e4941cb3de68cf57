// Package toolname canonicalizes the many on-wire spellings different coding
// agents use for the same conceptual tool (a shell exec, a file read, ...)
// into a fixed vocabulary for the Tool message's tool_name field.
//
// The alias table is explicit and case-sensitive, restated from
// DetectStreamJSONToolType / tool-name constant tables.
package toolname

const (
	Bash         = "Bash"
	Read         = "Read"
	Write        = "Write"
	Edit         = "Edit"
	Glob         = "Glob"
	Grep         = "Grep"
	LS           = "LS"
	Task         = "Task"
	TodoWrite    = "TodoWrite"
	Generic      = "Tool"
)

// aliases maps every recognized on-wire spelling to its canonical name.
var aliases = map[string]string{
	"exec_command":       Bash,
	"shell":              Bash,
	"shell_command":      Bash,
	"local_shell_call":   Bash,
	"command_execution":  Bash,
	"Bash":               Bash,

	"read_file": Read,
	"Read":      Read,

	"write_file": Write,
	"Write":      Write,

	"list_directory": LS,
	"LS":             LS,

	"Glob":      Glob,
	"Grep":      Grep,
	"Edit":      Edit,
	"TodoWrite": TodoWrite,
	"Task":      Task,
}

// Canonical maps a raw tool name to its canonical spelling. Unknown names
// pass through unchanged, preserving whatever the agent reported.
func Canonical(raw string) string {
	if canon, ok := aliases[raw]; ok {
		return canon
	}
	return raw
}

// CanonicalOrGeneric maps a raw tool name to its canonical spelling,
// collapsing unknown names to "Tool", for callers that cannot retain an
// arbitrary tool name.
func CanonicalOrGeneric(raw string) string {
	if canon, ok := aliases[raw]; ok {
		return canon
	}
	return Generic
}
