package adapters

import "github.com/jrcrittenden/conduit/internal/runner"

func runnerConfigFixture() runner.Config {
	return runner.Config{
		Prompt:          "summarize the diff",
		WorkingDir:      "/workspace/repo",
		AllowedTools:    []string{"Bash", "Read"},
		Model:           "claude-test",
		ResumeSessionID: "sess-1",
	}
}
