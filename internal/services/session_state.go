package services

import (
	"fmt"
	"time"

	"github.com/luminachat/lumina-backend/internal/data/repos"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// ComputeProgress maps a session's message count onto a saturating percent
// of the program duration. A heuristic, not an analytics metric: ten
// exchanged messages per program day counts as full engagement.
func ComputeProgress(totalMessages, durationDays int) int {
	if totalMessages <= 0 || durationDays <= 0 {
		return 0
	}
	p := totalMessages * 100 / (durationDays * 10)
	if p > 100 {
		return 100
	}
	return p
}

// SessionStateUpdater does the post-message bookkeeping: last interaction,
// message counter, progress.
type SessionStateUpdater interface {
	RecordExchange(dbc dbctx.Context, session *types.Session, window *types.SessionAccessWindow, durationDays int) error
}

type sessionStateUpdater struct {
	log      *logger.Logger
	sessions repos.SessionRepo
	windows  repos.AccessWindowRepo
}

func NewSessionStateUpdater(baseLog *logger.Logger, sessionRepo repos.SessionRepo, windowRepo repos.AccessWindowRepo) SessionStateUpdater {
	return &sessionStateUpdater{
		log:      baseLog.With("service", "SessionStateUpdater"),
		sessions: sessionRepo,
		windows:  windowRepo,
	}
}

func (u *sessionStateUpdater) RecordExchange(dbc dbctx.Context, session *types.Session, window *types.SessionAccessWindow, durationDays int) error {
	if session == nil || window == nil {
		return fmt.Errorf("session and access window required")
	}

	now := time.Now().UTC()
	total := session.TotalMessages + 2

	// Progress never moves backwards, only saturates upward.
	progress := ComputeProgress(total, durationDays)
	if progress < window.Progress {
		progress = window.Progress
	}

	if err := u.sessions.UpdateFields(dbc, session.ID, map[string]interface{}{
		"last_interaction_at": now,
		"total_messages":      total,
	}); err != nil {
		return err
	}
	if err := u.windows.UpdateFields(dbc, window.ID, map[string]interface{}{
		"progress": progress,
	}); err != nil {
		return err
	}

	session.LastInteractionAt = now
	session.TotalMessages = total
	window.Progress = progress
	return nil
}
