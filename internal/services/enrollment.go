package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luminachat/lumina-backend/internal/data/repos"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"github.com/luminachat/lumina-backend/internal/webhook"
)

// EnrollmentResult reports how an enrollment ended up.
type EnrollmentResult struct {
	UserID    uuid.UUID
	ProgramID uuid.UUID
	Delivered bool
}

// EnrollmentService registers a phone number into a program and kicks off
// the welcome conversation.
type EnrollmentService interface {
	Enroll(dbc dbctx.Context, phone string, programID uuid.UUID, displayName string) (*EnrollmentResult, error)
}

type enrollmentService struct {
	db  *gorm.DB
	log *logger.Logger

	users        repos.UserRepo
	programs     repos.ProgramRepo
	sessions     repos.SessionRepo
	orchestrator ConversationOrchestrator
}

func NewEnrollmentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	programRepo repos.ProgramRepo,
	sessionRepo repos.SessionRepo,
	orchestrator ConversationOrchestrator,
) EnrollmentService {
	return &enrollmentService{
		db:           db,
		log:          baseLog.With("service", "EnrollmentService"),
		users:        userRepo,
		programs:     programRepo,
		sessions:     sessionRepo,
		orchestrator: orchestrator,
	}
}

func (s *enrollmentService) Enroll(dbc dbctx.Context, phone string, programID uuid.UUID, displayName string) (*EnrollmentResult, error) {
	phone = webhook.ExtractPhone(phone)
	if phone == "" {
		return nil, fmt.Errorf("phone required: %w", pkgerrors.ErrInvalidArgument)
	}

	prog, err := s.programs.GetByID(dbc, programID)
	if err != nil {
		return nil, err
	}
	if !prog.Active {
		return nil, fmt.Errorf("program %s is not accepting enrollments: %w", prog.ID, pkgerrors.ErrInvalidArgument)
	}

	// Reject double enrollment up front so the caller gets a clean
	// conflict instead of a duplicated welcome.
	if usr, err := s.users.GetByPhone(dbc, phone); err == nil {
		if _, err := s.sessions.GetActiveByUserAndProgram(dbc, usr.ID, prog.ID); err == nil {
			return nil, fmt.Errorf("user %s already enrolled in program %s: %w", usr.ID, prog.ID, pkgerrors.ErrConflict)
		} else if !errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	delivered, err := s.orchestrator.SendWelcomeMessage(dbc, phone, prog.ID, displayName)
	if err != nil {
		return nil, err
	}

	usr, err := s.users.GetByPhone(dbc, phone)
	if err != nil {
		return nil, err
	}

	s.log.Info("Enrollment completed",
		"user_id", usr.ID,
		"program_id", prog.ID,
		"delivered", delivered,
	)
	return &EnrollmentResult{UserID: usr.ID, ProgramID: prog.ID, Delivered: delivered}, nil
}
