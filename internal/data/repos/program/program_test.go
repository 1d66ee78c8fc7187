package program

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/luminachat/lumina-backend/internal/data/repos/testutil"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
)

func TestProgramRepoListActive(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	repo := NewProgramRepo(db, testutil.Logger(t))

	active := testutil.SeedProgram(t, ctx, tx, 30)
	retired := &types.Program{
		ID:             uuid.New(),
		Name:           "retired program",
		AssistantID:    "asst_retired",
		DurationDays:   30,
		Provider:       types.ProviderEvolution,
		ProviderConfig: datatypes.JSON([]byte(`{}`)),
		Active:         false,
	}
	if err := tx.WithContext(ctx).Create(retired).Error; err != nil {
		t.Fatalf("seed retired program: %v", err)
	}

	listed, err := repo.ListActive(dbc, 50)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	for _, p := range listed {
		if p.ID == retired.ID {
			t.Fatalf("inactive program listed")
		}
	}
	found := false
	for _, p := range listed {
		if p.ID == active.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("active program missing from listing")
	}
}
