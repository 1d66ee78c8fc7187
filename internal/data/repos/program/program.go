package program

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

type ProgramRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Program, error)
	ListActive(dbc dbctx.Context, limit int) ([]*types.Program, error)
}

type programRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramRepo(db *gorm.DB, log *logger.Logger) ProgramRepo {
	return &programRepo{db: db, log: log.With("repo", "ProgramRepo")}
}

func (r *programRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Program, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Program
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("program %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *programRepo) ListActive(dbc dbctx.Context, limit int) ([]*types.Program, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Program
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Program{}).
		Where("active = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
