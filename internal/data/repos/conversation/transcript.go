package conversation

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

type TranscriptRepo interface {
	Append(dbc dbctx.Context, rows []*types.TranscriptEntry) ([]*types.TranscriptEntry, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.TranscriptEntry, error)
	HasEntryWithRole(dbc dbctx.Context, sessionID uuid.UUID, role string) (bool, error)
}

type transcriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptRepo(db *gorm.DB, log *logger.Logger) TranscriptRepo {
	return &transcriptRepo{db: db, log: log.With("repo", "TranscriptRepo")}
}

func (r *transcriptRepo) Append(dbc dbctx.Context, rows []*types.TranscriptEntry) ([]*types.TranscriptEntry, error) {
	if len(rows) == 0 {
		return []*types.TranscriptEntry{}, nil
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

func (r *transcriptRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]*types.TranscriptEntry, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TranscriptEntry
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.TranscriptEntry{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transcriptRepo) HasEntryWithRole(dbc dbctx.Context, sessionID uuid.UUID, role string) (bool, error) {
	if sessionID == uuid.Nil {
		return false, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.TranscriptEntry{}).
		Where("session_id = ? AND role = ?", sessionID, role).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
