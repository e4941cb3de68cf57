package store

// Repository is a cloned git repository conduit knows how to spin
// workspaces from, along with the default workspace-provisioning policy
// applied to new workspaces checked out from it.
type Repository struct {
	ID                  string  `db:"id"`
	Name                string  `db:"name"`
	URL                 string  `db:"url"`
	LocalPath           string  `db:"local_path"`
	WorkspaceMode       *string `db:"workspace_mode"`
	ArchiveDeleteBranch *bool   `db:"archive_delete_branch"`
	ArchiveRemotePrompt *bool   `db:"archive_remote_prompt"`
	CreatedAt           string  `db:"created_at"`
}

// Workspace is a working directory (worktree or plain clone) checked out
// from a Repository.
type Workspace struct {
	ID                string  `db:"id"`
	RepositoryID      string  `db:"repository_id"`
	Name              string  `db:"name"`
	Path              string  `db:"path"`
	Branch            *string `db:"branch"`
	LastAccessed      string  `db:"last_accessed"`
	IsDefault         bool    `db:"is_default"`
	ArchivedAt        *string `db:"archived_at"`
	ArchivedCommitSHA *string `db:"archived_commit_sha"`
	CreatedAt         string  `db:"created_at"`
}

// SessionTab is the persisted form of a tabs.Manager entry: enough to
// reconstruct a session.Session and resume its underlying agent process
// across a restart. IsOpen is true for exactly as long as the row exists
// (SaveTab always sets it; DeleteTab drops the row on close), and
// idx_session_tabs_open_workspace enforces "at most one open tab per
// workspace" over it. WorkspaceID is nullable: deleting a workspace
// detaches rather than deletes its tabs, so a stray tab can still be
// inspected or reassigned.
type SessionTab struct {
	ID                 string  `db:"id"`
	WorkspaceID        *string `db:"workspace_id"`
	AgentType          string  `db:"agent_type"`
	Title              *string `db:"title"`
	Position           int     `db:"position"`
	Model              *string `db:"model"`
	WorkingDir         *string `db:"working_dir"`
	AgentSessionID     *string `db:"agent_session_id"`
	ResumeSessionID    *string `db:"resume_session_id"`
	IsActive           bool    `db:"is_active"`
	NeedsAttention     bool    `db:"needs_attention"`
	ForkSeedID         *string `db:"fork_seed_id"`
	TotalUsageJSON     *string `db:"total_usage_json"`
	ModelInvalid       bool    `db:"model_invalid"`
	IsOpen             bool    `db:"is_open"`
	PRNumber           *int    `db:"pr_number"`
	PendingUserMessage *string `db:"pending_user_message"`
	AgentMode          string  `db:"agent_mode"`
	TitleGenerated     bool    `db:"title_generated"`
	QueuedMessages     string  `db:"queued_messages"`
	InputHistory       string  `db:"input_history"`
	CreatedAt          string  `db:"created_at"`
}

// ForkSeed is a content-addressed snapshot of a prompt used to seed a
// forked tab, deduplicated per workspace by the sha256 of its prompt text
// (seed_prompt_hash). TokenEstimate and ContextWindow record the sizing
// decision GetOrCreateForkSeed made when building SeedPrompt; SeedAckFiltered
// is set when the prompt was truncated and conduit appended the
// ready-acknowledgement instruction so the receiving agent doesn't act on a
// half-seen prompt.
type ForkSeed struct {
	ID                string  `db:"id"`
	AgentType         string  `db:"agent_type"`
	ParentSessionID   *string `db:"parent_session_id"`
	ParentWorkspaceID *string `db:"parent_workspace_id"`
	SeedPromptHash    string  `db:"seed_prompt_hash"`
	SeedPrompt        string  `db:"seed_prompt"`
	SeedPromptPath    *string `db:"seed_prompt_path"`
	TokenEstimate     int64   `db:"token_estimate"`
	ContextWindow     int64   `db:"context_window"`
	SeedAckFiltered   bool    `db:"seed_ack_filtered"`
	CreatedAt         string  `db:"created_at"`
}

// AppState is a single key/value row of app-wide state (e.g. last active
// workspace, window geometry) that does not warrant its own table.
type AppState struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}
