package codex

import (
	"fmt"
	"strings"
)

// ParseToolOutput parses Codex's metadata-wrapped tool output, returning the
// clean output and the exit code found in the envelope, if any. If no
// envelope is present the raw output is returned unchanged with a nil
// exit code. Grounded on MessageDisplay::parse_codex_tool_output.
func ParseToolOutput(raw string) (output string, exitCode *int) {
	return parseCodexToolOutput(raw)
}

// SerializeToolOutput builds a Codex-style metadata envelope around output
// and exitCode, the inverse of ParseToolOutput for the subset of fields the
// runtime actually produces.
func SerializeToolOutput(output string, exitCode *int) string {
	var b strings.Builder
	if exitCode != nil {
		fmt.Fprintf(&b, "Process exited with code %d\n", *exitCode)
	}
	b.WriteString("Output:\n")
	b.WriteString(output)
	return b.String()
}
