package services

import (
	"fmt"
	"time"

	"github.com/luminachat/lumina-backend/internal/data/repos"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// AccessGuard checks the access window on every processed message, so a
// session can expire mid-conversation.
type AccessGuard interface {
	ValidateAccess(dbc dbctx.Context, session *types.Session, window *types.SessionAccessWindow) error
}

type accessGuard struct {
	log      *logger.Logger
	sessions repos.SessionRepo
}

func NewAccessGuard(baseLog *logger.Logger, sessionRepo repos.SessionRepo) AccessGuard {
	return &accessGuard{
		log:      baseLog.With("service", "AccessGuard"),
		sessions: sessionRepo,
	}
}

func (g *accessGuard) ValidateAccess(dbc dbctx.Context, session *types.Session, window *types.SessionAccessWindow) error {
	if session == nil || window == nil {
		return fmt.Errorf("session and access window required")
	}

	if !time.Now().UTC().After(window.AccessEndAt) {
		return nil
	}

	// Re-expiring an already-expired session is a no-op, not an error.
	if session.Status != types.SessionStatusExpired {
		if err := g.sessions.UpdateFields(dbc, session.ID, map[string]interface{}{
			"status": types.SessionStatusExpired,
		}); err != nil {
			return err
		}
		session.Status = types.SessionStatusExpired
		g.log.Info("Session expired",
			"session_id", session.ID,
			"access_end_at", window.AccessEndAt,
		)
	}
	return fmt.Errorf("session %s: %w", session.ID, ErrAccessExpired)
}
