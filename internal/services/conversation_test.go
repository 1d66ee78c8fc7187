package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
)

type orchestratorFixture struct {
	users       *fakeUserRepo
	programs    *fakeProgramRepo
	sessions    *fakeSessionRepo
	windows     *fakeWindowRepo
	transcripts *fakeTranscriptRepo
	runner      *fakeRunner
	sender      *fakeSender
	program     *types.Program
	orch        ConversationOrchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	log := testLogger(t)

	f := &orchestratorFixture{
		users:       newFakeUserRepo(),
		sessions:    newFakeSessionRepo(),
		windows:     newFakeWindowRepo(),
		transcripts: newFakeTranscriptRepo(),
		runner:      &fakeRunner{reply: "assistant reply"},
		sender:      &fakeSender{},
	}
	f.program = &types.Program{
		ID:           uuid.New(),
		Name:         "Mindful Mornings",
		AssistantID:  "asst_test",
		DurationDays: 30,
		Provider:     types.ProviderEvolution,
		Active:       true,
	}
	f.programs = newFakeProgramRepo(f.program)

	resolver := NewSessionResolver(nil, log, f.sessions, f.windows, f.runner)
	guard := NewAccessGuard(log, f.sessions)
	state := NewSessionStateUpdater(log, f.sessions, f.windows)
	delivery := NewDeliveryTable(log, map[string]Sender{
		types.ProviderEvolution: f.sender,
	})
	f.orch = NewConversationOrchestrator(
		nil, log,
		f.users, f.programs, f.transcripts,
		resolver, guard, f.runner, state, delivery,
	)
	return f
}

func TestProcessMessageTransactionalAppend(t *testing.T) {
	// With a caller-supplied transaction the two transcript writes must
	// stay on it, as one serial batch instead of concurrent goroutines.
	f := newOrchestratorFixture(t)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: &gorm.DB{}}

	if _, err := f.orch.ProcessMessage(dbc, "5511999887766", "I want to start", f.program.ID); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if f.transcripts.appendCalls != 1 || f.transcripts.txAppends != 1 {
		t.Fatalf("expected 1 tx-bound append batch, got %d calls (%d on tx)",
			f.transcripts.appendCalls, f.transcripts.txAppends)
	}
	if len(f.transcripts.entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(f.transcripts.entries))
	}
}

func TestProcessMessageNewUser(t *testing.T) {
	f := newOrchestratorFixture(t)
	dbc := dbctx.New(context.Background())

	result, err := f.orch.ProcessMessage(dbc, "5511999887766", "I want to start", f.program.ID)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if result.ReplyText != "assistant reply" {
		t.Fatalf("unexpected reply %q", result.ReplyText)
	}
	if result.Program.ID != f.program.ID {
		t.Fatalf("result carries wrong program")
	}

	usr, err := f.users.GetByPhone(dbc, "5511999887766")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if usr.DisplayName != "New Member" {
		t.Fatalf("unexpected display name %q", usr.DisplayName)
	}

	session, err := f.sessions.GetActiveByUserAndProgram(dbc, usr.ID, f.program.ID)
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if session.ThreadID == nil || *session.ThreadID == "" {
		t.Fatalf("thread not created")
	}
	if session.TotalMessages != 2 {
		t.Fatalf("expected total 2 after one exchange, got %d", session.TotalMessages)
	}
	if f.runner.runsStarted != 1 {
		t.Fatalf("expected 1 assistant run, got %d", f.runner.runsStarted)
	}

	entries, _ := f.transcripts.ListBySession(dbc, session.ID, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(entries))
	}
	roles := map[string]bool{}
	for _, e := range entries {
		roles[e.Role] = true
	}
	if !roles[types.TranscriptRoleUser] || !roles[types.TranscriptRoleAssistant] {
		t.Fatalf("transcript missing a role: %v", roles)
	}
}

func TestProcessMessageBlankText(t *testing.T) {
	f := newOrchestratorFixture(t)

	result, err := f.orch.ProcessMessage(dbctx.New(context.Background()), "5511999887766", "   ", f.program.ID)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if result.ReplyText != ReplyCouldNotUnderstand {
		t.Fatalf("unexpected reply %q", result.ReplyText)
	}
	if f.users.creates != 0 {
		t.Fatalf("blank text must not create a user")
	}
	if f.runner.runsStarted != 0 {
		t.Fatalf("blank text must not reach the assistant")
	}
}

func TestProcessMessageExpiredAccess(t *testing.T) {
	f := newOrchestratorFixture(t)
	dbc := dbctx.New(context.Background())

	usr := &types.User{ID: uuid.New(), Phone: "5511999887766", DisplayName: "Ana"}
	f.users.byPhone[usr.Phone] = usr
	session := &types.Session{
		ID: uuid.New(), UserID: usr.ID, ProgramID: f.program.ID,
		Status: types.SessionStatusPaused,
	}
	window := &types.SessionAccessWindow{
		ID: uuid.New(), SessionID: session.ID,
		AccessEndAt: time.Now().UTC().Add(-time.Hour),
	}
	f.sessions.byID[session.ID] = session
	f.sessions.order = append(f.sessions.order, session.ID)
	f.windows.bySession[session.ID] = window

	result, err := f.orch.ProcessMessage(dbc, usr.Phone, "hello again", f.program.ID)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if result.ReplyText != ReplyAccessExpired {
		t.Fatalf("unexpected reply %q", result.ReplyText)
	}
	if f.runner.runsStarted != 0 {
		t.Fatalf("expired session must not reach the assistant")
	}
	if session.Status != types.SessionStatusExpired {
		t.Fatalf("session not marked expired")
	}
}

func TestProcessMessageSecondExchangeAccumulates(t *testing.T) {
	f := newOrchestratorFixture(t)
	dbc := dbctx.New(context.Background())

	if _, err := f.orch.ProcessMessage(dbc, "5511999887766", "first", f.program.ID); err != nil {
		t.Fatalf("first ProcessMessage: %v", err)
	}
	if _, err := f.orch.ProcessMessage(dbc, "5511999887766", "second", f.program.ID); err != nil {
		t.Fatalf("second ProcessMessage: %v", err)
	}

	if f.users.creates != 1 {
		t.Fatalf("expected 1 user create, got %d", f.users.creates)
	}
	if f.sessions.creates != 1 {
		t.Fatalf("expected 1 session create, got %d", f.sessions.creates)
	}
	if f.runner.threadsCreated != 1 {
		t.Fatalf("expected 1 thread, got %d", f.runner.threadsCreated)
	}

	usr, _ := f.users.GetByPhone(dbc, "5511999887766")
	session, _ := f.sessions.GetActiveByUserAndProgram(dbc, usr.ID, f.program.ID)
	if session.TotalMessages != 4 {
		t.Fatalf("expected total 4 after two exchanges, got %d", session.TotalMessages)
	}
}

func TestSendWelcomeMessage(t *testing.T) {
	f := newOrchestratorFixture(t)
	dbc := dbctx.New(context.Background())

	delivered, err := f.orch.SendWelcomeMessage(dbc, "5511999887766", f.program.ID, "Ana")
	if err != nil {
		t.Fatalf("SendWelcomeMessage: %v", err)
	}
	if !delivered {
		t.Fatalf("expected delivery")
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "assistant reply" {
		t.Fatalf("unexpected outbound messages: %v", f.sender.sent)
	}

	usr, err := f.users.GetByPhone(dbc, "5511999887766")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if usr.DisplayName != "Ana" {
		t.Fatalf("display name not applied: %q", usr.DisplayName)
	}
}

func TestSendWelcomeMessageIdempotent(t *testing.T) {
	f := newOrchestratorFixture(t)
	dbc := dbctx.New(context.Background())

	if _, err := f.orch.SendWelcomeMessage(dbc, "5511999887766", f.program.ID, "Ana"); err != nil {
		t.Fatalf("first SendWelcomeMessage: %v", err)
	}
	delivered, err := f.orch.SendWelcomeMessage(dbc, "5511999887766", f.program.ID, "Ana")
	if err != nil {
		t.Fatalf("second SendWelcomeMessage: %v", err)
	}
	if !delivered {
		t.Fatalf("repeat welcome should report success")
	}

	if f.runner.runsStarted != 1 {
		t.Fatalf("assistant contacted %d times, want 1", f.runner.runsStarted)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("welcome sent %d times, want 1", len(f.sender.sent))
	}
}

func TestSendWelcomeMessageDeliveryFailureNonFatal(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.sender.sendErr = contextDeadlineErr{}

	delivered, err := f.orch.SendWelcomeMessage(dbctx.New(context.Background()), "5511999887766", f.program.ID, "Ana")
	if err != nil {
		t.Fatalf("delivery failure must not fail the flow: %v", err)
	}
	if delivered {
		t.Fatalf("expected delivered=false")
	}
}

type contextDeadlineErr struct{}

func (contextDeadlineErr) Error() string { return "deadline exceeded" }
