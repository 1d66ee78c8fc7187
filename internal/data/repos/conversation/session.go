package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, rows []*types.Session) ([]*types.Session, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error)
	GetActiveByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error)
	GetLatestByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, rows []*types.Session) ([]*types.Session, error) {
	if len(rows) == 0 {
		return []*types.Session{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("active session already exists: %w", pkgerrors.ErrConflict)
		}
		return nil, err
	}
	return rows, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Session, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Session
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) GetActiveByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error) {
	if userID == uuid.Nil || programID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or program_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Session
	if err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND program_id = ? AND status = ?", userID, programID, types.SessionStatusActive).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("active session for user %s program %s: %w", userID, programID, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) GetLatestByUserAndProgram(dbc dbctx.Context, userID, programID uuid.UUID) (*types.Session, error) {
	if userID == uuid.Nil || programID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or program_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Session
	if err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND program_id = ?", userID, programID).
		Order("created_at DESC").
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session for user %s program %s: %w", userID, programID, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// isUniqueViolation matches the gorm translated error and falls back to
// message sniffing, since the driver does not translate every violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
