package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	rediscli "github.com/luminachat/lumina-backend/internal/clients/redis"
	"github.com/luminachat/lumina-backend/internal/pkg/dbctx"
	pkgerrors "github.com/luminachat/lumina-backend/internal/pkg/errors"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"github.com/luminachat/lumina-backend/internal/services"
	"github.com/luminachat/lumina-backend/internal/webhook"
)

type WebhookHandler struct {
	log          *logger.Logger
	registry     *webhook.Registry
	orchestrator services.ConversationOrchestrator
	delivery     *services.DeliveryTable
	deduper      rediscli.Deduper
}

func NewWebhookHandler(
	log *logger.Logger,
	registry *webhook.Registry,
	orchestrator services.ConversationOrchestrator,
	delivery *services.DeliveryTable,
	deduper rediscli.Deduper,
) *WebhookHandler {
	return &WebhookHandler{
		log:          log.With("Handler", "WebhookHandler"),
		registry:     registry,
		orchestrator: orchestrator,
		delivery:     delivery,
		deduper:      deduper,
	}
}

// ReceiveMessage is the provider-facing entry point. Unusable payloads get
// 200 so providers do not retry them forever; only real processing or
// delivery failures surface as errors.
func (h *WebhookHandler) ReceiveMessage(c *gin.Context) {
	programID, err := uuid.Parse(c.Param("program_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid program id"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	msg, ok := h.registry.Adapt(payload)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	if h.deduper != nil && h.deduper.Seen(ctx, msg.ProviderMessageID) {
		h.log.Info("Duplicate webhook message skipped",
			"provider_message_id", msg.ProviderMessageID,
		)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	result, err := h.orchestrator.ProcessMessage(dbctx.New(ctx), msg.Phone, msg.Text, programID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "program not found"})
			return
		}
		h.log.Error("Message processing failed",
			"program_id", programID,
			"phone", msg.Phone,
			"error", err,
		)
		// Release the dedupe mark so the provider's retry of this same
		// message is processed instead of dropped as a duplicate.
		h.forget(ctx, msg.ProviderMessageID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	if delivered := h.delivery.SendMessage(ctx, msg.Phone, result.ReplyText, result.Program); !delivered {
		h.forget(ctx, msg.ProviderMessageID)
		c.JSON(http.StatusBadGateway, gin.H{"error": "delivery failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *WebhookHandler) forget(ctx context.Context, providerMessageID string) {
	if h.deduper != nil {
		h.deduper.Forget(ctx, providerMessageID)
	}
}
