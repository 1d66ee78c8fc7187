package conversation

import (
	"time"

	"github.com/google/uuid"
)

// SessionAccessWindow bounds when a session may talk to the assistant.
// AccessEndAt is fixed at creation and never recomputed; Progress only
// moves forward and saturates at 100.
type SessionAccessWindow struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`

	AccessStartAt time.Time `gorm:"column:access_start_at;not null" json:"access_start_at"`
	AccessEndAt   time.Time `gorm:"column:access_end_at;not null" json:"access_end_at"`

	Progress int `gorm:"column:progress;not null;default:0" json:"progress"`

	ReportRequested   bool       `gorm:"column:report_requested;not null;default:false" json:"report_requested"`
	ReportGeneratedAt *time.Time `gorm:"column:report_generated_at" json:"report_generated_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SessionAccessWindow) TableName() string { return "session_access_window" }
