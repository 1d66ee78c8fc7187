package conversation

import (
	"time"

	"github.com/google/uuid"
)

const (
	TranscriptRoleUser      = "user"
	TranscriptRoleAssistant = "assistant"
)

// TranscriptEntry is one line of a session's conversation log. Append-only.
type TranscriptEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`

	Role string `gorm:"not null;column:role" json:"role"`
	Text string `gorm:"type:text;not null;column:text" json:"text"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (TranscriptEntry) TableName() string { return "transcript_entry" }
