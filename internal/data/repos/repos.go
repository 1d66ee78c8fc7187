package repos

import (
	"github.com/luminachat/lumina-backend/internal/data/repos/conversation"
	"github.com/luminachat/lumina-backend/internal/data/repos/program"
	"github.com/luminachat/lumina-backend/internal/data/repos/user"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo
type ProgramRepo = program.ProgramRepo

type SessionRepo = conversation.SessionRepo
type AccessWindowRepo = conversation.AccessWindowRepo
type TranscriptRepo = conversation.TranscriptRepo

// All bundles every repo for wiring in main.
type All struct {
	Users         UserRepo
	Programs      ProgramRepo
	Sessions      SessionRepo
	AccessWindows AccessWindowRepo
	Transcripts   TranscriptRepo
}

func NewAll(db *gorm.DB, log *logger.Logger) All {
	return All{
		Users:         user.NewUserRepo(db, log),
		Programs:      program.NewProgramRepo(db, log),
		Sessions:      conversation.NewSessionRepo(db, log),
		AccessWindows: conversation.NewAccessWindowRepo(db, log),
		Transcripts:   conversation.NewTranscriptRepo(db, log),
	}
}
