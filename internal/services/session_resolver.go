package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminachat/lumina-backend/internal/data/repos"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"github.com/luminachat/lumina-backend/internal/pkg/pointers"
)

// SessionContext is the resolved session plus its access window.
type SessionContext struct {
	Session      *types.Session
	AccessWindow *types.SessionAccessWindow
}

type SessionResolver interface {
	// GetOrCreateSessionContext finds the active session for the pair,
	// reactivates the most recent inactive one, or creates a fresh
	// session+window. A reactivated session keeps its original window; the
	// supplied duration only applies to brand-new sessions. An inactive
	// session whose window has passed is flipped to expired and the call
	// fails with ErrAccessExpired.
	GetOrCreateSessionContext(dbc dbctx.Context, userID, programID uuid.UUID, durationDays int) (*SessionContext, error)

	// EnsureThreadExists creates and persists the external thread id when
	// the session has none. Idempotent.
	EnsureThreadExists(dbc dbctx.Context, session *types.Session) error
}

type sessionResolver struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	windows  repos.AccessWindowRepo
	runner   AssistantRunCoordinator
}

func NewSessionResolver(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessionRepo repos.SessionRepo,
	windowRepo repos.AccessWindowRepo,
	runner AssistantRunCoordinator,
) SessionResolver {
	return &sessionResolver{
		db:       db,
		log:      baseLog.With("service", "SessionResolver"),
		sessions: sessionRepo,
		windows:  windowRepo,
		runner:   runner,
	}
}

func (s *sessionResolver) GetOrCreateSessionContext(dbc dbctx.Context, userID, programID uuid.UUID, durationDays int) (*SessionContext, error) {
	if userID == uuid.Nil || programID == uuid.Nil {
		return nil, fmt.Errorf("user_id and program_id required: %w", pkgerrors.ErrInvalidArgument)
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("duration_days must be positive: %w", pkgerrors.ErrInvalidArgument)
	}

	active, err := s.sessions.GetActiveByUserAndProgram(dbc, userID, programID)
	if err == nil {
		return s.withWindow(dbc, active)
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	latest, err := s.sessions.GetLatestByUserAndProgram(dbc, userID, programID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return s.createSessionContext(dbc, userID, programID, durationDays)
	}
	if err != nil {
		return nil, err
	}

	window, err := s.windows.GetBySessionID(dbc, latest.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if now.After(window.AccessEndAt) {
		if latest.Status != types.SessionStatusExpired {
			if err := s.sessions.UpdateFields(dbc, latest.ID, map[string]interface{}{
				"status": types.SessionStatusExpired,
			}); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("session %s: %w", latest.ID, ErrAccessExpired)
	}

	// Reactivation keeps the original window untouched; durationDays is
	// intentionally ignored here (access is fixed at first grant).
	if err := s.sessions.UpdateFields(dbc, latest.ID, map[string]interface{}{
		"status": types.SessionStatusActive,
	}); err != nil {
		return nil, err
	}
	latest.Status = types.SessionStatusActive

	s.log.Info("Reactivated session",
		"session_id", latest.ID,
		"user_id", userID,
		"program_id", programID,
	)
	return &SessionContext{Session: latest, AccessWindow: window}, nil
}

func (s *sessionResolver) createSessionContext(dbc dbctx.Context, userID, programID uuid.UUID, durationDays int) (*SessionContext, error) {
	now := time.Now().UTC()
	session := &types.Session{
		ID:                uuid.New(),
		UserID:            userID,
		ProgramID:         programID,
		AIProvider:        "openai",
		Status:            types.SessionStatusActive,
		LastInteractionAt: now,
	}

	created, err := s.sessions.Create(dbc, []*types.Session{session})
	if errors.Is(err, pkgerrors.ErrConflict) {
		// Lost the create race; the partial unique index rejected the
		// duplicate. Use the session the winner created.
		s.log.Warn("Session create conflict; reusing concurrent session",
			"user_id", userID,
			"program_id", programID,
		)
		winner, getErr := s.sessions.GetActiveByUserAndProgram(dbc, userID, programID)
		if getErr != nil {
			return nil, fmt.Errorf("session create conflict but no active session found: %w", getErr)
		}
		return s.withWindow(dbc, winner)
	}
	if err != nil {
		return nil, err
	}
	session = created[0]

	window := &types.SessionAccessWindow{
		ID:            uuid.New(),
		SessionID:     session.ID,
		AccessStartAt: now,
		AccessEndAt:   now.AddDate(0, 0, durationDays),
		Progress:      0,
	}
	if _, err := s.windows.Create(dbc, []*types.SessionAccessWindow{window}); err != nil {
		// The session row is already committed; a failure here leaves an
		// orphan session for the next resolution to pick up.
		return nil, fmt.Errorf("create access window for session %s: %w", session.ID, err)
	}

	s.log.Info("Created session",
		"session_id", session.ID,
		"user_id", userID,
		"program_id", programID,
		"access_end_at", window.AccessEndAt,
	)
	return &SessionContext{Session: session, AccessWindow: window}, nil
}

func (s *sessionResolver) withWindow(dbc dbctx.Context, session *types.Session) (*SessionContext, error) {
	window, err := s.windows.GetBySessionID(dbc, session.ID)
	if err != nil {
		return nil, err
	}
	return &SessionContext{Session: session, AccessWindow: window}, nil
}

func (s *sessionResolver) EnsureThreadExists(dbc dbctx.Context, session *types.Session) error {
	if session == nil {
		return fmt.Errorf("session required")
	}
	if session.ThreadID != nil && *session.ThreadID != "" {
		return nil
	}

	threadID, err := s.runner.CreateThread(dbc.Ctx)
	if err != nil {
		return fmt.Errorf("create thread for session %s: %w", session.ID, err)
	}
	if err := s.sessions.UpdateFields(dbc, session.ID, map[string]interface{}{
		"thread_id": threadID,
	}); err != nil {
		return err
	}
	session.ThreadID = pointers.String(threadID)

	s.log.Info("Created conversation thread",
		"session_id", session.ID,
		"thread_id", threadID,
	)
	return nil
}
