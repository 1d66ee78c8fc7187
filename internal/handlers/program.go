package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	programrepo "github.com/luminachat/lumina-backend/internal/data/repos/program"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

type ProgramHandler struct {
	log      *logger.Logger
	programs programrepo.ProgramRepo
}

func NewProgramHandler(log *logger.Logger, programs programrepo.ProgramRepo) *ProgramHandler {
	return &ProgramHandler{
		log:      log.With("Handler", "ProgramHandler"),
		programs: programs,
	}
}

// ListActive returns the programs currently open for enrollment.
func (h *ProgramHandler) ListActive(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	programs, err := h.programs.ListActive(dbctx.New(c.Request.Context()), limit)
	if err != nil {
		h.log.Error("Program listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"programs": programs})
}
