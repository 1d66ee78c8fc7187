package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
)

func newTestResolver(t *testing.T, sessions *fakeSessionRepo, windows *fakeWindowRepo) SessionResolver {
	t.Helper()
	return NewSessionResolver(nil, testLogger(t), sessions, windows, &fakeRunner{})
}

func TestGetOrCreateSessionContextCreatesNew(t *testing.T) {
	sessions := newFakeSessionRepo()
	windows := newFakeWindowRepo()
	r := newTestResolver(t, sessions, windows)

	userID, programID := uuid.New(), uuid.New()
	sctx, err := r.GetOrCreateSessionContext(dbctx.New(context.Background()), userID, programID, 30)
	if err != nil {
		t.Fatalf("GetOrCreateSessionContext: %v", err)
	}

	if sctx.Session.Status != types.SessionStatusActive {
		t.Fatalf("expected active session, got %s", sctx.Session.Status)
	}
	if sctx.Session.TotalMessages != 0 {
		t.Fatalf("fresh session should have 0 messages")
	}
	wantEnd := sctx.AccessWindow.AccessStartAt.AddDate(0, 0, 30)
	if !sctx.AccessWindow.AccessEndAt.Equal(wantEnd) {
		t.Fatalf("window end %v, want %v", sctx.AccessWindow.AccessEndAt, wantEnd)
	}
	if sessions.creates != 1 {
		t.Fatalf("expected 1 session create, got %d", sessions.creates)
	}
}

func TestGetOrCreateSessionContextReturnsExistingActive(t *testing.T) {
	userID, programID := uuid.New(), uuid.New()
	existing := &types.Session{
		ID: uuid.New(), UserID: userID, ProgramID: programID,
		Status: types.SessionStatusActive,
	}
	window := &types.SessionAccessWindow{
		ID: uuid.New(), SessionID: existing.ID,
		AccessEndAt: time.Now().UTC().AddDate(0, 0, 5),
	}
	sessions := newFakeSessionRepo(existing)
	windows := newFakeWindowRepo(window)
	r := newTestResolver(t, sessions, windows)

	sctx, err := r.GetOrCreateSessionContext(dbctx.New(context.Background()), userID, programID, 30)
	if err != nil {
		t.Fatalf("GetOrCreateSessionContext: %v", err)
	}
	if sctx.Session.ID != existing.ID {
		t.Fatalf("expected existing session back")
	}
	if sessions.creates != 0 {
		t.Fatalf("no create expected, got %d", sessions.creates)
	}
}

func TestGetOrCreateSessionContextReactivatesKeepingWindow(t *testing.T) {
	userID, programID := uuid.New(), uuid.New()
	paused := &types.Session{
		ID: uuid.New(), UserID: userID, ProgramID: programID,
		Status: types.SessionStatusPaused,
	}
	originalEnd := time.Now().UTC().AddDate(0, 0, 3)
	window := &types.SessionAccessWindow{
		ID: uuid.New(), SessionID: paused.ID,
		AccessEndAt: originalEnd,
	}
	sessions := newFakeSessionRepo(paused)
	windows := newFakeWindowRepo(window)
	r := newTestResolver(t, sessions, windows)

	// A much longer duration must not extend the original window.
	sctx, err := r.GetOrCreateSessionContext(dbctx.New(context.Background()), userID, programID, 365)
	if err != nil {
		t.Fatalf("GetOrCreateSessionContext: %v", err)
	}
	if sctx.Session.Status != types.SessionStatusActive {
		t.Fatalf("expected reactivated session, got %s", sctx.Session.Status)
	}
	if !sctx.AccessWindow.AccessEndAt.Equal(originalEnd) {
		t.Fatalf("window end changed on reactivation: %v != %v", sctx.AccessWindow.AccessEndAt, originalEnd)
	}
	if sessions.creates != 0 {
		t.Fatalf("reactivation must not create a session")
	}
}

func TestGetOrCreateSessionContextExpiredWindow(t *testing.T) {
	userID, programID := uuid.New(), uuid.New()
	paused := &types.Session{
		ID: uuid.New(), UserID: userID, ProgramID: programID,
		Status: types.SessionStatusPaused,
	}
	window := &types.SessionAccessWindow{
		ID: uuid.New(), SessionID: paused.ID,
		AccessEndAt: time.Now().UTC().AddDate(0, 0, -1),
	}
	sessions := newFakeSessionRepo(paused)
	windows := newFakeWindowRepo(window)
	r := newTestResolver(t, sessions, windows)

	_, err := r.GetOrCreateSessionContext(dbctx.New(context.Background()), userID, programID, 30)
	if !errors.Is(err, ErrAccessExpired) {
		t.Fatalf("expected ErrAccessExpired, got %v", err)
	}
	if paused.Status != types.SessionStatusExpired {
		t.Fatalf("session not flipped to expired: %s", paused.Status)
	}
}

func TestGetOrCreateSessionContextCreateConflict(t *testing.T) {
	userID, programID := uuid.New(), uuid.New()
	winner := &types.Session{
		ID: uuid.New(), UserID: userID, ProgramID: programID,
		Status: types.SessionStatusActive,
	}
	winnerWindow := &types.SessionAccessWindow{
		ID: uuid.New(), SessionID: winner.ID,
		AccessEndAt: time.Now().UTC().AddDate(0, 0, 30),
	}
	sessions := newFakeSessionRepo()
	sessions.conflictNext = true
	sessions.conflictSession = winner
	windows := newFakeWindowRepo(winnerWindow)
	r := newTestResolver(t, sessions, windows)

	sctx, err := r.GetOrCreateSessionContext(dbctx.New(context.Background()), userID, programID, 30)
	if err != nil {
		t.Fatalf("GetOrCreateSessionContext: %v", err)
	}
	if sctx.Session.ID != winner.ID {
		t.Fatalf("expected concurrent winner's session")
	}
}

func TestEnsureThreadExists(t *testing.T) {
	session := &types.Session{ID: uuid.New(), Status: types.SessionStatusActive}
	sessions := newFakeSessionRepo(session)
	runner := &fakeRunner{}
	r := NewSessionResolver(nil, testLogger(t), sessions, newFakeWindowRepo(), runner)

	if err := r.EnsureThreadExists(dbctx.New(context.Background()), session); err != nil {
		t.Fatalf("EnsureThreadExists: %v", err)
	}
	if session.ThreadID == nil || *session.ThreadID == "" {
		t.Fatalf("thread id not set")
	}

	// Second call is a no-op.
	if err := r.EnsureThreadExists(dbctx.New(context.Background()), session); err != nil {
		t.Fatalf("EnsureThreadExists (second): %v", err)
	}
	if runner.threadsCreated != 1 {
		t.Fatalf("expected 1 thread create, got %d", runner.threadsCreated)
	}
}
