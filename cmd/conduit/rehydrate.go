package main

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/jrcrittenden/conduit/internal/event"
	"github.com/jrcrittenden/conduit/internal/history"
	"github.com/jrcrittenden/conduit/internal/history/claude"
	"github.com/jrcrittenden/conduit/internal/history/codex"
	"github.com/jrcrittenden/conduit/internal/history/opencode"
	"github.com/jrcrittenden/conduit/internal/logging"
	"github.com/jrcrittenden/conduit/internal/session"
)

// rehydrateChat loads s's chat from its agent's on-disk transcript before
// any runner is started, per spec.md §4.3: "On restore from C7, a
// session's chat is rehydrated via C2 before the runner is started;
// resume_session_id is handed to the runner on first prompt." A missing
// transcript (history-dir-missing or session-not-found) is not fatal — the
// tab just opens with an empty chat and the resume id still gets handed to
// the runner on first submit.
func rehydrateChat(s *session.Session, agentKind session.AgentKind, resumeSessionID, workingDir string, logger *logging.Logger) {
	if resumeSessionID == "" {
		return
	}

	messages, err := decodeHistory(agentKind, resumeSessionID, workingDir)
	if err != nil {
		if errors.Is(err, history.ErrHistoryDirMissing) || errors.Is(err, history.ErrSessionNotFound) || errors.Is(err, history.ErrStorageNotFound) {
			logger.Debug("no on-disk transcript to rehydrate from",
				zap.String("agent_kind", string(agentKind)), zap.String("session_id", resumeSessionID), zap.Error(err))
			return
		}
		logger.Warn("failed to rehydrate session history",
			zap.String("agent_kind", string(agentKind)), zap.String("session_id", resumeSessionID), zap.Error(err))
		return
	}
	s.SetChat(messages)
}

func decodeHistory(agentKind session.AgentKind, sessionID, workingDir string) ([]event.Message, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	switch agentKind {
	case session.AgentCodex:
		path, err := history.LocateCodexSession(home, sessionID)
		if err != nil {
			return nil, err
		}
		messages, _, err := codex.Decode(path)
		return messages, err

	case session.AgentOpenCode:
		xdgDataHome := os.Getenv("XDG_DATA_HOME")
		candidates := history.OpenCodeStorageDirCandidates(home, xdgDataHome, "")
		storageDir, _, err := history.LocateOpenCodeStorage(candidates, sessionID)
		if err != nil {
			return nil, err
		}
		messages, _, err := opencode.Decode(storageDir, sessionID)
		return messages, err

	default:
		path, err := history.LocateClaudeSession(home, sessionID)
		if err != nil {
			return nil, err
		}
		messages, _, err := claude.Decode(path)
		return messages, err
	}
}
