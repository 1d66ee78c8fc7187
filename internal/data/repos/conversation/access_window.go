package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

type AccessWindowRepo interface {
	Create(dbc dbctx.Context, rows []*types.SessionAccessWindow) ([]*types.SessionAccessWindow, error)
	GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (*types.SessionAccessWindow, error)
	// UpdateFields never touches access_end_at; the window end is fixed at
	// creation.
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type accessWindowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessWindowRepo(db *gorm.DB, log *logger.Logger) AccessWindowRepo {
	return &accessWindowRepo{db: db, log: log.With("repo", "AccessWindowRepo")}
}

func (r *accessWindowRepo) Create(dbc dbctx.Context, rows []*types.SessionAccessWindow) ([]*types.SessionAccessWindow, error) {
	if len(rows) == 0 {
		return []*types.SessionAccessWindow{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *accessWindowRepo) GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (*types.SessionAccessWindow, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.SessionAccessWindow
	if err := txx.WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("access window for session %s: %w", sessionID, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *accessWindowRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	delete(updates, "access_end_at")
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.SessionAccessWindow{}).
		Where("id = ?", id).
		Updates(updates).Error
}
