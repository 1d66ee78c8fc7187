package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, phone string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:          uuid.New(),
		Phone:       phone,
		DisplayName: "New Member",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedProgram(tb testing.TB, ctx context.Context, tx *gorm.DB, durationDays int) *types.Program {
	tb.Helper()
	p := &types.Program{
		ID:             uuid.New(),
		Name:           "program",
		AssistantID:    "asst_test",
		DurationDays:   durationDays,
		Provider:       types.ProviderEvolution,
		ProviderConfig: datatypes.JSON([]byte(`{}`)),
		Active:         true,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed program: %v", err)
	}
	return p
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, programID uuid.UUID, status string) *types.Session {
	tb.Helper()
	now := time.Now().UTC()
	s := &types.Session{
		ID:                uuid.New(),
		UserID:            userID,
		ProgramID:         programID,
		AIProvider:        "openai",
		Status:            status,
		LastInteractionAt: now,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedAccessWindow(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, start, end time.Time) *types.SessionAccessWindow {
	tb.Helper()
	w := &types.SessionAccessWindow{
		ID:            uuid.New(),
		SessionID:     sessionID,
		AccessStartAt: start,
		AccessEndAt:   end,
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed access window: %v", err)
	}
	return w
}
