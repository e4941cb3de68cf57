// Migration engine restated from original_source/src/data/migrations.rs:
// a versioned list of forward-only SQL migrations applied inside a single
// transaction, plus a bootstrap path that probes an existing database's
// schema (columns/tables/indexes) to backfill the migrations ledger for a
// database that predates it.
package store

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration is one forward-only schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered, append-only list of schema changes. Versions
// must be contiguous starting at 1; never edit a migration once released,
// add a new one instead.
var migrations = []Migration{
	{1, "create_repositories_table", `
CREATE TABLE repositories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    local_path TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(url)
)`},
	{2, "create_workspaces_table", `
CREATE TABLE workspaces (
    id TEXT PRIMARY KEY,
    repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    branch TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
)`},
	{3, "create_app_state_table", `
CREATE TABLE app_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
)`},
	{4, "create_session_tabs_table", `
CREATE TABLE session_tabs (
    id TEXT PRIMARY KEY,
    workspace_id TEXT REFERENCES workspaces(id) ON DELETE SET NULL,
    agent_type TEXT NOT NULL,
    title TEXT,
    position INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
)`},
	{5, "add_session_tabs_model", `ALTER TABLE session_tabs ADD COLUMN model TEXT`},
	{6, "add_session_tabs_working_dir", `ALTER TABLE session_tabs ADD COLUMN working_dir TEXT`},
	{7, "add_session_tabs_agent_session_id", `ALTER TABLE session_tabs ADD COLUMN agent_session_id TEXT`},
	{8, "add_session_tabs_resume_session_id", `ALTER TABLE session_tabs ADD COLUMN resume_session_id TEXT`},
	{9, "add_session_tabs_is_active", `ALTER TABLE session_tabs ADD COLUMN is_active INTEGER NOT NULL DEFAULT 0`},
	{10, "add_session_tabs_needs_attention", `ALTER TABLE session_tabs ADD COLUMN needs_attention INTEGER NOT NULL DEFAULT 0`},
	{11, "add_repositories_workspace_settings", `
ALTER TABLE repositories ADD COLUMN workspace_mode TEXT;
ALTER TABLE repositories ADD COLUMN archive_delete_branch INTEGER;
ALTER TABLE repositories ADD COLUMN archive_remote_prompt INTEGER`},
	{12, "add_workspaces_archive_fields", `
ALTER TABLE workspaces ADD COLUMN archived_at TEXT;
ALTER TABLE workspaces ADD COLUMN archived_commit_sha TEXT;
ALTER TABLE workspaces ADD COLUMN last_accessed TEXT NOT NULL DEFAULT (datetime('now'));
ALTER TABLE workspaces ADD COLUMN is_default INTEGER NOT NULL DEFAULT 0`},
	{13, "create_fork_seeds_table", `
CREATE TABLE fork_seeds (
    id TEXT PRIMARY KEY,
    agent_type TEXT NOT NULL,
    parent_session_id TEXT REFERENCES session_tabs(id) ON DELETE SET NULL,
    parent_workspace_id TEXT REFERENCES workspaces(id) ON DELETE SET NULL,
    seed_prompt_hash TEXT NOT NULL,
    seed_prompt TEXT NOT NULL,
    seed_prompt_path TEXT,
    token_estimate INTEGER NOT NULL DEFAULT 0,
    context_window INTEGER NOT NULL DEFAULT 0,
    seed_ack_filtered INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE(parent_workspace_id, seed_prompt_hash)
)`},
	{14, "add_session_tabs_fork_seed_id", `ALTER TABLE session_tabs ADD COLUMN fork_seed_id TEXT REFERENCES fork_seeds(id) ON DELETE SET NULL`},
	{15, "add_session_tabs_total_usage", `ALTER TABLE session_tabs ADD COLUMN total_usage_json TEXT`},
	{16, "create_session_tabs_position_unique_index", `
UPDATE session_tabs SET position = position + 1000000 WHERE id NOT IN (
    SELECT MIN(id) FROM session_tabs GROUP BY workspace_id, position
);
CREATE UNIQUE INDEX idx_session_tabs_workspace_position ON session_tabs(workspace_id, position)`},
	{17, "add_session_tabs_model_invalid", `ALTER TABLE session_tabs ADD COLUMN model_invalid INTEGER NOT NULL DEFAULT 0`},
	{18, "add_session_tabs_is_open", `ALTER TABLE session_tabs ADD COLUMN is_open INTEGER NOT NULL DEFAULT 1`},
	{19, "create_session_tabs_open_workspace_unique_index", `
CREATE UNIQUE INDEX idx_session_tabs_open_workspace ON session_tabs(workspace_id) WHERE is_open = 1 AND workspace_id IS NOT NULL`},
	{20, "add_session_tabs_pr_number", `ALTER TABLE session_tabs ADD COLUMN pr_number INTEGER`},
	{21, "add_session_tabs_pending_user_message", `ALTER TABLE session_tabs ADD COLUMN pending_user_message TEXT`},
	{22, "add_session_tabs_agent_mode", `ALTER TABLE session_tabs ADD COLUMN agent_mode TEXT NOT NULL DEFAULT 'build'`},
	{23, "add_session_tabs_title_generated", `ALTER TABLE session_tabs ADD COLUMN title_generated INTEGER NOT NULL DEFAULT 0`},
	{24, "add_session_tabs_queued_messages", `ALTER TABLE session_tabs ADD COLUMN queued_messages TEXT NOT NULL DEFAULT '[]'`},
	{25, "add_session_tabs_input_history", `ALTER TABLE session_tabs ADD COLUMN input_history TEXT NOT NULL DEFAULT '[]'`},
}

func ensureMigrationsTable(tx *sqlx.Tx) error {
	_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`)
	return err
}

func getAppliedVersions(tx *sqlx.Tx) (map[int]bool, error) {
	applied := make(map[int]bool)
	rows, err := tx.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func tableExists(tx *sqlx.Tx, name string) (bool, error) {
	var count int
	err := tx.Get(&count, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name)
	return count > 0, err
}

func columnExists(tx *sqlx.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func indexExists(tx *sqlx.Tx, name string) (bool, error) {
	var count int
	err := tx.Get(&count, `SELECT count(*) FROM sqlite_master WHERE type='index' AND name=?`, name)
	return count > 0, err
}

// bootstrapExistingDatabase marks migrations as already applied when their
// effect is already present in the schema, so a database created before
// the migrations ledger existed does not re-run (and fail on) DDL it
// already has.
func bootstrapExistingDatabase(tx *sqlx.Tx) error {
	hasRepositories, err := tableExists(tx, "repositories")
	if err != nil {
		return err
	}
	if !hasRepositories {
		// A genuinely fresh database: nothing to bootstrap, every
		// migration runs from version 1.
		return nil
	}

	probe := func(version int) (bool, error) {
		switch version {
		case 1:
			return tableExists(tx, "repositories")
		case 2:
			return tableExists(tx, "workspaces")
		case 3:
			return tableExists(tx, "app_state")
		case 4:
			return tableExists(tx, "session_tabs")
		case 5:
			return columnExists(tx, "session_tabs", "model")
		case 6:
			return columnExists(tx, "session_tabs", "working_dir")
		case 7:
			return columnExists(tx, "session_tabs", "agent_session_id")
		case 8:
			return columnExists(tx, "session_tabs", "resume_session_id")
		case 9:
			return columnExists(tx, "session_tabs", "is_active")
		case 10:
			return columnExists(tx, "session_tabs", "needs_attention")
		case 11:
			return columnExists(tx, "repositories", "workspace_mode")
		case 12:
			return columnExists(tx, "workspaces", "archived_at")
		case 13:
			return tableExists(tx, "fork_seeds")
		case 14:
			return columnExists(tx, "session_tabs", "fork_seed_id")
		case 15:
			return columnExists(tx, "session_tabs", "total_usage_json")
		case 16:
			return indexExists(tx, "idx_session_tabs_workspace_position")
		case 17:
			return columnExists(tx, "session_tabs", "model_invalid")
		case 18:
			return columnExists(tx, "session_tabs", "is_open")
		case 19:
			return indexExists(tx, "idx_session_tabs_open_workspace")
		case 20:
			return columnExists(tx, "session_tabs", "pr_number")
		case 21:
			return columnExists(tx, "session_tabs", "pending_user_message")
		case 22:
			return columnExists(tx, "session_tabs", "agent_mode")
		case 23:
			return columnExists(tx, "session_tabs", "title_generated")
		case 24:
			return columnExists(tx, "session_tabs", "queued_messages")
		case 25:
			return columnExists(tx, "session_tabs", "input_history")
		default:
			return false, nil
		}
	}

	for _, m := range migrations {
		present, err := probe(m.Version)
		if err != nil {
			return fmt.Errorf("bootstrap probe for migration %d (%s): %w", m.Version, m.Name, err)
		}
		if !present {
			// Once a gap is found, every later migration must run
			// for real: stop bootstrapping.
			break
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record bootstrap migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// runMigrations applies every migration not yet recorded in
// schema_migrations, inside a single transaction, bootstrapping an
// existing pre-ledger database first.
func runMigrations(db *sqlx.DB) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureMigrationsTable(tx); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := getAppliedVersions(tx)
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	if len(applied) == 0 {
		if err := bootstrapExistingDatabase(tx); err != nil {
			return err
		}
		applied, err = getAppliedVersions(tx)
		if err != nil {
			return fmt.Errorf("read applied migrations after bootstrap: %w", err)
		}
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	return tx.Commit()
}
