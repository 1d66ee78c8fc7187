package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type fakeUserRepo struct {
	byPhone   map[string]*types.User
	createErr error
	creates   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byPhone: map[string]*types.User{}}
}

func (f *fakeUserRepo) Create(dbc dbctx.Context, rows []*types.User) ([]*types.User, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, u := range rows {
		f.byPhone[u.Phone] = u
	}
	return rows, nil
}

func (f *fakeUserRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	for _, u := range f.byPhone {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", id, pkgerrors.ErrNotFound)
}

func (f *fakeUserRepo) GetByPhone(dbc dbctx.Context, phone string) (*types.User, error) {
	if u, ok := f.byPhone[phone]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user phone %s: %w", phone, pkgerrors.ErrNotFound)
}

func (f *fakeUserRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

type fakeProgramRepo struct {
	byID map[uuid.UUID]*types.Program
}

func newFakeProgramRepo(progs ...*types.Program) *fakeProgramRepo {
	f := &fakeProgramRepo{byID: map[uuid.UUID]*types.Program{}}
	for _, p := range progs {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakeProgramRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Program, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("program %s: %w", id, pkgerrors.ErrNotFound)
}

func (f *fakeProgramRepo) ListActive(dbc dbctx.Context, limit int) ([]*types.Program, error) {
	out := []*types.Program{}
	for _, p := range f.byID {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSessionRepo struct {
	byID    map[uuid.UUID]*types.Session
	order   []uuid.UUID
	creates int

	// conflictNext makes the next Create fail with ErrConflict, simulating
	// the partial unique index rejecting a concurrent duplicate.
	conflictNext bool
	// conflictSession is registered as the winner before the conflict fires.
	conflictSession *types.Session
}

func newFakeSessionRepo(sessions ...*types.Session) *fakeSessionRepo {
	f := &fakeSessionRepo{byID: map[uuid.UUID]*types.Session{}}
	for _, s := range sessions {
		f.byID[s.ID] = s
		f.order = append(f.order, s.ID)
	}
	return f
}

func (f *fakeSessionRepo) Create(dbc dbctx.Context, rows []*types.Session) ([]*types.Session, error) {
	f.creates++
	if f.conflictNext {
		f.conflictNext = false
		if f.conflictSession != nil {
			f.byID[f.conflictSession.ID] = f.conflictSession
			f.order = append(f.order, f.conflictSession.ID)
		}
		return nil, fmt.Errorf("session insert: %w", pkgerrors.ErrConflict)
	}
	for _, s := range rows {
		f.byID[s.ID] = s
		f.order = append(f.order, s.ID)
	}
	return rows, nil
}

func (f *fakeSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
}

func (f *fakeSessionRepo) GetActiveByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error) {
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.byID[f.order[i]]
		if s.UserID == userID && s.ProgramID == programID && s.Status == types.SessionStatusActive {
			return s, nil
		}
	}
	return nil, fmt.Errorf("active session: %w", pkgerrors.ErrNotFound)
}

func (f *fakeSessionRepo) GetLatestByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error) {
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.byID[f.order[i]]
		if s.UserID == userID && s.ProgramID == programID {
			return s, nil
		}
	}
	return nil, fmt.Errorf("latest session: %w", pkgerrors.ErrNotFound)
}

func (f *fakeSessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	s, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
	}
	if v, ok := updates["status"]; ok {
		s.Status = v.(string)
	}
	if v, ok := updates["thread_id"]; ok {
		tid := v.(string)
		s.ThreadID = &tid
	}
	if v, ok := updates["total_messages"]; ok {
		s.TotalMessages = v.(int)
	}
	if v, ok := updates["last_interaction_at"]; ok {
		s.LastInteractionAt = v.(time.Time)
	}
	return nil
}

type fakeWindowRepo struct {
	bySession map[uuid.UUID]*types.SessionAccessWindow
}

func newFakeWindowRepo(windows ...*types.SessionAccessWindow) *fakeWindowRepo {
	f := &fakeWindowRepo{bySession: map[uuid.UUID]*types.SessionAccessWindow{}}
	for _, w := range windows {
		f.bySession[w.SessionID] = w
	}
	return f
}

func (f *fakeWindowRepo) Create(dbc dbctx.Context, rows []*types.SessionAccessWindow) ([]*types.SessionAccessWindow, error) {
	for _, w := range rows {
		f.bySession[w.SessionID] = w
	}
	return rows, nil
}

func (f *fakeWindowRepo) GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (*types.SessionAccessWindow, error) {
	if w, ok := f.bySession[sessionID]; ok {
		return w, nil
	}
	return nil, fmt.Errorf("access window for session %s: %w", sessionID, pkgerrors.ErrNotFound)
}

func (f *fakeWindowRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	for _, w := range f.bySession {
		if w.ID != id {
			continue
		}
		if v, ok := updates["progress"]; ok {
			w.Progress = v.(int)
		}
		return nil
	}
	return fmt.Errorf("access window %s: %w", id, pkgerrors.ErrNotFound)
}

// fakeTranscriptRepo is appended to from concurrent goroutines by the
// orchestrator, so its state is mutex-guarded.
type fakeTranscriptRepo struct {
	mu          sync.Mutex
	entries     []*types.TranscriptEntry
	appendCalls int
	txAppends   int
}

func newFakeTranscriptRepo() *fakeTranscriptRepo { return &fakeTranscriptRepo{} }

func (f *fakeTranscriptRepo) Append(dbc dbctx.Context, rows []*types.TranscriptEntry) ([]*types.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if dbc.Tx != nil {
		f.txAppends++
	}
	f.entries = append(f.entries, rows...)
	return rows, nil
}

func (f *fakeTranscriptRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.TranscriptEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.TranscriptEntry{}
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeTranscriptRepo) HasEntryWithRole(dbc dbctx.Context, sessionID uuid.UUID, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.SessionID == sessionID && e.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// fakeRunner is a canned AssistantRunCoordinator for orchestrator tests.
type fakeRunner struct {
	threadSeq      int
	threadsCreated int
	messagesAdded  []string
	runsStarted    int
	reply          string
	runErr         error
}

func (f *fakeRunner) CreateThread(ctx context.Context) (string, error) {
	f.threadsCreated++
	f.threadSeq++
	return fmt.Sprintf("thread_%d", f.threadSeq), nil
}

func (f *fakeRunner) AddUserMessage(ctx context.Context, threadID string, text string) error {
	f.messagesAdded = append(f.messagesAdded, text)
	return nil
}

func (f *fakeRunner) RunAssistant(ctx context.Context, threadID string, assistantID string) (string, error) {
	f.runsStarted++
	if f.runErr != nil {
		return "", f.runErr
	}
	return f.reply, nil
}

type fakeSender struct {
	sent    []string
	sendErr error
}

func (f *fakeSender) Send(ctx context.Context, phone string, text string, prog *types.Program) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}
