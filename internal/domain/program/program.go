package program

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Messenger providers a program can deliver replies through.
const (
	ProviderEvolution = "evolution"
	ProviderTwilio    = "twilio"
)

type Program struct {
	ID   uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name string    `gorm:"not null;column:name" json:"name"`

	// AssistantID is the external assistant this program converses through.
	AssistantID  string `gorm:"not null;column:assistant_id" json:"assistant_id"`
	DurationDays int    `gorm:"not null;column:duration_days" json:"duration_days"`

	Provider       string         `gorm:"not null;default:'evolution';column:provider;index" json:"provider"`
	ProviderConfig datatypes.JSON `gorm:"type:jsonb;column:provider_config;not null;default:'{}'" json:"provider_config,omitempty"`

	Active bool `gorm:"not null;default:true;column:active" json:"active"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Program) TableName() string { return "program" }
