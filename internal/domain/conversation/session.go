package conversation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusExpired   = "expired"
	SessionStatusCompleted = "completed"
)

// Session is the durable (user, program) conversation record. At most one
// active session may exist per pair; the partial unique index created in
// internal/db enforces it.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_session_user_program" json:"user_id"`
	ProgramID uuid.UUID `gorm:"type:uuid;not null;index:idx_session_user_program" json:"program_id"`

	// AIProvider tags which assistant backend owns ThreadID.
	AIProvider string  `gorm:"not null;default:'openai';column:ai_provider" json:"ai_provider"`
	ThreadID   *string `gorm:"column:thread_id" json:"thread_id,omitempty"`

	Status string `gorm:"not null;default:'active';column:status;index" json:"status"`

	LastInteractionAt time.Time `gorm:"column:last_interaction_at;not null;default:now()" json:"last_interaction_at"`
	TotalMessages     int       `gorm:"column:total_messages;not null;default:0" json:"total_messages"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Session) TableName() string { return "session" }
