// Package history reconstructs normalized chat transcripts from each coding
// agent's on-disk session format. Per-agent adapters produce output
// identical in shape to what the live runner (internal/runner) would have
// emitted for the same session.
package history

import "encoding/json"

// DebugEntry records the disposition of one raw transcript record — an
// observable, tested artifact of the decode pass.
type DebugEntry struct {
	LineNumber int             `json:"line_number"`
	EntryType  string          `json:"entry_type"`
	Status     string          `json:"status"` // INCLUDE, SKIP, ERROR
	Reason     string          `json:"reason"`
	RawJSON    json.RawMessage `json:"raw_json"`
}

const (
	StatusInclude = "INCLUDE"
	StatusSkip    = "SKIP"
	StatusError   = "ERROR"
)
