package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/luminachat/lumina-backend/internal/data/repos"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// Fixed user-facing replies. Both access-expired detection points converge
// on the same text.
const (
	ReplyCouldNotUnderstand = "Sorry, I couldn't understand that message. Please send me a text message so we can continue."
	ReplyAccessExpired      = "Your access to this program has ended. Thank you for walking this journey with us!"
)

const placeholderDisplayName = "New Member"

// ProcessResult carries the assistant reply plus the program the caller
// uses to pick a delivery channel.
type ProcessResult struct {
	ReplyText string
	Program   *types.Program
}

// ConversationOrchestrator is the per-message state machine: resolve user
// and program, resolve session, enforce the access window, run the
// assistant, persist the transcript, update bookkeeping.
type ConversationOrchestrator interface {
	ProcessMessage(dbc dbctx.Context, phone string, text string, programID uuid.UUID) (*ProcessResult, error)

	// SendWelcomeMessage runs the welcome flow for a fresh enrollment. The
	// returned bool is the delivery outcome; delivery failure does not fail
	// the flow. Idempotent: a session that already has an assistant
	// transcript entry is not welcomed twice.
	SendWelcomeMessage(dbc dbctx.Context, phone string, programID uuid.UUID, displayName string) (bool, error)
}

type conversationOrchestrator struct {
	db  *gorm.DB
	log *logger.Logger

	users       repos.UserRepo
	programs    repos.ProgramRepo
	transcripts repos.TranscriptRepo

	resolver SessionResolver
	guard    AccessGuard
	runner   AssistantRunCoordinator
	state    SessionStateUpdater
	delivery *DeliveryTable
}

func NewConversationOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo repos.UserRepo,
	programRepo repos.ProgramRepo,
	transcriptRepo repos.TranscriptRepo,
	resolver SessionResolver,
	guard AccessGuard,
	runner AssistantRunCoordinator,
	state SessionStateUpdater,
	delivery *DeliveryTable,
) ConversationOrchestrator {
	return &conversationOrchestrator{
		db:          db,
		log:         baseLog.With("service", "ConversationOrchestrator"),
		users:       userRepo,
		programs:    programRepo,
		transcripts: transcriptRepo,
		resolver:    resolver,
		guard:       guard,
		runner:      runner,
		state:       state,
		delivery:    delivery,
	}
}

func (o *conversationOrchestrator) ProcessMessage(dbc dbctx.Context, phone string, text string, programID uuid.UUID) (*ProcessResult, error) {
	prog, err := o.programs.GetByID(dbc, programID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return &ProcessResult{ReplyText: ReplyCouldNotUnderstand, Program: prog}, nil
	}

	usr, err := o.getOrCreateUser(dbc, phone, placeholderDisplayName)
	if err != nil {
		return nil, err
	}

	sctx, err := o.resolver.GetOrCreateSessionContext(dbc, usr.ID, prog.ID, prog.DurationDays)
	if errors.Is(err, ErrAccessExpired) {
		return &ProcessResult{ReplyText: ReplyAccessExpired, Program: prog}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := o.guard.ValidateAccess(dbc, sctx.Session, sctx.AccessWindow); err != nil {
		if errors.Is(err, ErrAccessExpired) {
			return &ProcessResult{ReplyText: ReplyAccessExpired, Program: prog}, nil
		}
		return nil, err
	}

	if err := o.resolver.EnsureThreadExists(dbc, sctx.Session); err != nil {
		return nil, err
	}
	threadID := *sctx.Session.ThreadID

	if err := o.runner.AddUserMessage(dbc.Ctx, threadID, text); err != nil {
		return nil, err
	}
	reply, err := o.runner.RunAssistant(dbc.Ctx, threadID, prog.AssistantID)
	if err != nil {
		return nil, err
	}

	if err := o.appendExchange(dbc, sctx.Session.ID, text, reply); err != nil {
		return nil, err
	}

	if err := o.state.RecordExchange(dbc, sctx.Session, sctx.AccessWindow, prog.DurationDays); err != nil {
		return nil, err
	}

	return &ProcessResult{ReplyText: reply, Program: prog}, nil
}

func (o *conversationOrchestrator) SendWelcomeMessage(dbc dbctx.Context, phone string, programID uuid.UUID, displayName string) (bool, error) {
	prog, err := o.programs.GetByID(dbc, programID)
	if err != nil {
		return false, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = placeholderDisplayName
	}
	usr, err := o.getOrCreateUser(dbc, phone, displayName)
	if err != nil {
		return false, err
	}

	sctx, err := o.resolver.GetOrCreateSessionContext(dbc, usr.ID, prog.ID, prog.DurationDays)
	if err != nil {
		return false, err
	}

	welcomed, err := o.transcripts.HasEntryWithRole(dbc, sctx.Session.ID, types.TranscriptRoleAssistant)
	if err != nil {
		return false, err
	}
	if welcomed {
		o.log.Info("Welcome already sent; skipping",
			"session_id", sctx.Session.ID,
		)
		return true, nil
	}

	if err := o.resolver.EnsureThreadExists(dbc, sctx.Session); err != nil {
		return false, err
	}
	threadID := *sctx.Session.ThreadID

	prompt := welcomePrompt(displayName, prog.Name)
	if err := o.runner.AddUserMessage(dbc.Ctx, threadID, prompt); err != nil {
		return false, err
	}
	reply, err := o.runner.RunAssistant(dbc.Ctx, threadID, prog.AssistantID)
	if err != nil {
		return false, err
	}

	if err := o.appendExchange(dbc, sctx.Session.ID, prompt, reply); err != nil {
		return false, err
	}

	delivered := o.delivery.SendMessage(dbc.Ctx, phone, reply, prog)
	if !delivered {
		o.log.Warn("Welcome delivery failed; enrollment continues",
			"session_id", sctx.Session.ID,
			"phone", phone,
		)
	}
	return delivered, nil
}

func (o *conversationOrchestrator) getOrCreateUser(dbc dbctx.Context, phone string, displayName string) (*types.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("phone required: %w", pkgerrors.ErrInvalidArgument)
	}

	usr, err := o.users.GetByPhone(dbc, phone)
	if err == nil {
		return usr, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	created, createErr := o.users.Create(dbc, []*types.User{{
		ID:          uuid.New(),
		Phone:       phone,
		DisplayName: displayName,
	}})
	if createErr != nil {
		// Most likely a concurrent create on the unique phone; re-read
		// before giving up.
		if usr, getErr := o.users.GetByPhone(dbc, phone); getErr == nil {
			return usr, nil
		}
		return nil, createErr
	}
	return created[0], nil
}

// appendExchange writes the user and assistant transcript entries. The two
// writes are unordered relative to each other but both must land before
// the request completes. A gorm transaction is not safe for concurrent
// use, so when a caller supplies one the writes run serially on it; only
// the Tx-less path fans out.
func (o *conversationOrchestrator) appendExchange(dbc dbctx.Context, sessionID uuid.UUID, userText, assistantText string) error {
	userEntry := &types.TranscriptEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      types.TranscriptRoleUser,
		Text:      userText,
	}
	assistantEntry := &types.TranscriptEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      types.TranscriptRoleAssistant,
		Text:      assistantText,
	}

	if dbc.Tx != nil {
		_, err := o.transcripts.Append(dbc, []*types.TranscriptEntry{userEntry, assistantEntry})
		return err
	}

	g, gctx := errgroup.WithContext(dbc.Ctx)
	g.Go(func() error {
		_, err := o.transcripts.Append(dbctx.Context{Ctx: gctx}, []*types.TranscriptEntry{userEntry})
		return err
	})
	g.Go(func() error {
		_, err := o.transcripts.Append(dbctx.Context{Ctx: gctx}, []*types.TranscriptEntry{assistantEntry})
		return err
	})
	return g.Wait()
}

func welcomePrompt(displayName, programName string) string {
	return fmt.Sprintf(
		"%s has just enrolled in the %s program. Greet them warmly by name, introduce yourself, and explain briefly how the conversations will work.",
		displayName, programName,
	)
}
