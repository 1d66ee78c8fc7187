package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"github.com/luminachat/lumina-backend/internal/services"
)

type EnrollmentHandler struct {
	log         *logger.Logger
	enrollments services.EnrollmentService
}

func NewEnrollmentHandler(log *logger.Logger, enrollments services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{
		log:         log.With("Handler", "EnrollmentHandler"),
		enrollments: enrollments,
	}
}

type enrollRequest struct {
	Phone       string `json:"phone" binding:"required"`
	DisplayName string `json:"display_name"`
}

func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("program_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid program id"})
		return
	}

	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.enrollments.Enroll(dbctx.New(c.Request.Context()), req.Phone, programID, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
		case errors.Is(err, pkgerrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "already enrolled"})
		case errors.Is(err, pkgerrors.ErrInvalidArgument):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("Enrollment failed",
				"program_id", programID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":    result.UserID,
		"program_id": result.ProgramID,
		"delivered":  result.Delivered,
	})
}
