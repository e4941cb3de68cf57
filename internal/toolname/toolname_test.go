package toolname

import "testing"

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"exec_command":     Bash,
		"shell":             Bash,
		"local_shell_call":  Bash,
		"read_file":         Read,
		"write_file":        Write,
		"list_directory":    LS,
		"Glob":              Glob,
		"Grep":              Grep,
		"unknown_tool_xyz":  "unknown_tool_xyz",
	}
	for raw, want := range cases {
		if got := Canonical(raw); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCanonicalOrGeneric(t *testing.T) {
	if got := CanonicalOrGeneric("totally_unknown"); got != Generic {
		t.Errorf("CanonicalOrGeneric(unknown) = %q, want %q", got, Generic)
	}
	if got := CanonicalOrGeneric("exec_command"); got != Bash {
		t.Errorf("CanonicalOrGeneric(exec_command) = %q, want %q", got, Bash)
	}
}
