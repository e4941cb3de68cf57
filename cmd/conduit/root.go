package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	conduitapp "github.com/jrcrittenden/conduit/internal/app"
	"github.com/jrcrittenden/conduit/internal/config"
	"github.com/jrcrittenden/conduit/internal/logging"
	"github.com/jrcrittenden/conduit/internal/runner"
	"github.com/jrcrittenden/conduit/internal/runner/adapters"
	"github.com/jrcrittenden/conduit/internal/session"
	"github.com/jrcrittenden/conduit/internal/store"
	"github.com/jrcrittenden/conduit/internal/tabs"
)

// Version is set at build time via -ldflags
// "-X main.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile   string
	workspace string
	agentKind string
	model     string
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit — a terminal multiplexer for coding-agent sessions",
	Long:  "Conduit multiplexes long-lived conversations with external coding-agent processes (Claude Code, Codex CLI, OpenCode) across many git workspaces, one tab per session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config directory to search first (default: $HOME/.conduit)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "working directory for the first tab (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&agentKind, "agent", "claude", "default agent kind for new tabs: claude, codex, or opencode")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "default model override passed to the agent CLI")

	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("conduit %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithPath(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetDefault(logger)
	defer logger.Sync()

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	workdir := workspace
	if workdir == "" {
		workdir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	}
	workdir, err = filepath.Abs(workdir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	repo, err := findOrCreateRepository(st, workdir)
	if err != nil {
		return fmt.Errorf("resolve repository: %w", err)
	}

	tm := tabs.NewManager(cfg.Tabs.MaxTabs)
	if err := restoreTabs(tm, st, repo, cfg, logger); err != nil {
		logger.Warn("failed to restore persisted tabs", zap.Error(err))
	}
	if tm.IsEmpty() {
		ws, err := newWorkspaceForDir(st, repo, workdir)
		if err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		s := newSession(session.Config{
			ID:          uuid.NewString(),
			AgentKind:   session.AgentKind(agentKind),
			Model:       model,
			WorkspaceID: ws.ID,
			WorkingDir:  workdir,
		}, cfg, logger)
		tm.NewTab(s)
	}

	oldState, err := makeStdinRaw()
	if err == nil {
		defer func() {
			if restoreErr := term.Restore(int(os.Stdin.Fd()), oldState); restoreErr != nil {
				logger.Warn("failed to restore terminal state", zap.Error(restoreErr))
			}
		}()
	} else {
		logger.Debug("stdin is not a terminal, running without raw mode", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := conduitapp.New(conduitapp.Config{
		Tabs:   tm,
		Store:  st,
		Logger: logger,
		Stdin:  os.Stdin,
		NewTab: func() *session.Session {
			// Every tab gets its own Workspace row: idx_session_tabs_open_workspace
			// permits at most one open tab per workspace, since two agent
			// subprocesses should never mutate the same checked-out directory
			// concurrently. Discovering/creating a dedicated git worktree per tab
			// is filesystem discovery left to an external collaborator; this
			// minimal CLI entrypoint instead points every new tab's Workspace row
			// at the same on-disk directory it started in.
			ws, err := newWorkspaceForDir(st, repo, workdir)
			if err != nil {
				logger.Warn("failed to create workspace for new tab", zap.Error(err))
				return nil
			}
			return newSession(session.Config{
				ID:          uuid.NewString(),
				AgentKind:   session.AgentKind(agentKind),
				Model:       model,
				WorkspaceID: ws.ID,
				WorkingDir:  workdir,
			}, cfg, logger)
		},
	})

	return a.Run(ctx)
}

// makeStdinRaw puts the controlling terminal into raw mode so C6 can read
// keystrokes one byte at a time instead of line-buffered. Returns an error
// (and leaves the terminal untouched) when stdin is not a TTY, e.g. under
// a test harness or when piped.
func makeStdinRaw() (*term.State, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}
	return term.MakeRaw(fd)
}

func newSession(cfg session.Config, appCfg *config.Config, logger *logging.Logger) *session.Session {
	cfg.Starter = runner.AdapterStarter{Adapter: adapterFor(cfg.AgentKind, appCfg), Logger: logger}
	cfg.Logger = logger
	return session.New(cfg)
}

func adapterFor(kind session.AgentKind, cfg *config.Config) runner.Adapter {
	switch kind {
	case session.AgentCodex:
		return adapters.Codex{BinaryOverride: cfg.Agents.CodexBinary}
	case session.AgentOpenCode:
		return adapters.OpenCode{BinaryOverride: cfg.Agents.OpenCodeBinary}
	default:
		return adapters.Claude{BinaryOverride: cfg.Agents.ClaudeBinary}
	}
}

// findOrCreateRepository resolves the Repository row anchoring every
// Workspace this invocation will create, auto-creating it on first use.
// Git discovery proper (detecting an actual repository root, remotes,
// etc.) is a product concern left out of scope for the core; this is the
// minimal persistence anchor C7's workspaces foreign key requires.
func findOrCreateRepository(st *store.Store, workdir string) (*store.Repository, error) {
	repos, err := st.ListRepositories()
	if err != nil {
		return nil, err
	}
	for _, r := range repos {
		if r.LocalPath == workdir {
			return &r, nil
		}
	}

	repo := &store.Repository{
		Name:      filepath.Base(workdir),
		URL:       "file://" + workdir,
		LocalPath: workdir,
	}
	if err := st.CreateRepository(repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// newWorkspaceForDir always inserts a fresh Workspace row under repo,
// anchored at workdir. Every tab gets its own Workspace so that
// idx_session_tabs_open_workspace never has to refuse a second concurrent
// tab in the same on-disk directory.
func newWorkspaceForDir(st *store.Store, repo *store.Repository, workdir string) (*store.Workspace, error) {
	ws := &store.Workspace{
		RepositoryID: repo.ID,
		Name:         filepath.Base(workdir),
		Path:         workdir,
	}
	if err := st.CreateWorkspace(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// restoreTabs loads every persisted session tab across all of repo's
// workspaces and reconstructs a not-yet-started Session for each, in their
// saved position order. is_processing stays false and no runner is
// spawned until the first Submit; the agent's own session id is handed
// back as resume_session_id then.
func restoreTabs(tm *tabs.Manager, st *store.Store, repo *store.Repository, cfg *config.Config, logger *logging.Logger) error {
	workspaces, err := st.ListWorkspacesByRepository(repo.ID)
	if err != nil {
		return err
	}

	var all []workspaceTab
	for _, ws := range workspaces {
		savedTabs, err := st.LoadTabs(ws.ID)
		if err != nil {
			return err
		}
		for _, t := range savedTabs {
			all = append(all, workspaceTab{ws: ws, tab: t})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].tab.Position < all[j].tab.Position })

	for _, wt := range all {
		t, ws := wt.tab, wt.ws
		tabModel := ""
		if t.Model != nil {
			tabModel = *t.Model
		}
		workingDir := ws.Path
		if t.WorkingDir != nil {
			workingDir = *t.WorkingDir
		}
		resumeID := ""
		if t.AgentSessionID != nil {
			resumeID = *t.AgentSessionID
		}

		s := newSession(session.Config{
			ID:              t.ID,
			AgentKind:       session.AgentKind(t.AgentType),
			Model:           tabModel,
			WorkspaceID:     ws.ID,
			WorkingDir:      workingDir,
			ResumeSessionID: resumeID,
		}, cfg, logger)
		rehydrateChat(s, session.AgentKind(t.AgentType), resumeID, workingDir, logger)
		restoreQueueAndHistory(s, t, logger)

		if _, ok := tm.AddSession(s); !ok {
			logger.Warn("dropped persisted tab past maxTabs", zap.String("tab_id", t.ID))
			continue
		}
		if t.IsActive {
			tm.SwitchTo(tm.IndexOf(s))
		}
	}
	return nil
}

// restoreQueueAndHistory decodes a persisted tab's queued_messages and
// input_history JSON columns back into the reconstructed Session, so a
// restart does not silently drop prompts queued while an agent was mid-turn
// or the up-arrow recall history.
func restoreQueueAndHistory(s *session.Session, t store.SessionTab, logger *logging.Logger) {
	var queued []string
	if err := json.Unmarshal([]byte(t.QueuedMessages), &queued); err != nil {
		logger.Warn("failed to decode persisted queued messages", zap.String("tab_id", t.ID), zap.Error(err))
	} else {
		s.SetQueuedMessages(queued)
	}

	var history []string
	if err := json.Unmarshal([]byte(t.InputHistory), &history); err != nil {
		logger.Warn("failed to decode persisted input history", zap.String("tab_id", t.ID), zap.Error(err))
	} else {
		s.SetCommandHistory(history)
	}
}

// workspaceTab pairs a persisted SessionTab with the Workspace row it
// belongs to, so restoreTabs can sort tabs from different workspaces into
// one global tab order before reconstructing sessions.
type workspaceTab struct {
	ws  store.Workspace
	tab store.SessionTab
}
