package domain

import (
	"github.com/luminachat/lumina-backend/internal/domain/conversation"
	"github.com/luminachat/lumina-backend/internal/domain/program"
	"github.com/luminachat/lumina-backend/internal/domain/user"
)

// Aggregated aliases so callers can import one types package.

type User = user.User

type Program = program.Program

const (
	ProviderEvolution = program.ProviderEvolution
	ProviderTwilio    = program.ProviderTwilio
)

type Session = conversation.Session

const (
	SessionStatusActive    = conversation.SessionStatusActive
	SessionStatusPaused    = conversation.SessionStatusPaused
	SessionStatusExpired   = conversation.SessionStatusExpired
	SessionStatusCompleted = conversation.SessionStatusCompleted
)

type SessionAccessWindow = conversation.SessionAccessWindow

type TranscriptEntry = conversation.TranscriptEntry

const (
	TranscriptRoleUser      = conversation.TranscriptRoleUser
	TranscriptRoleAssistant = conversation.TranscriptRoleAssistant
)
