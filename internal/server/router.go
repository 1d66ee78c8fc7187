package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/luminachat/lumina-backend/internal/handlers"
	"github.com/luminachat/lumina-backend/internal/middleware"
	"github.com/luminachat/lumina-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	ServiceName       string
	AuthMiddleware    *middleware.AuthMiddleware
	WebhookHandler    *handlers.WebhookHandler
	EnrollmentHandler *handlers.EnrollmentHandler
	ProgramHandler    *handlers.ProgramHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Webhook-Secret"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	webhooks := router.Group("/webhooks")
	webhooks.Use(cfg.AuthMiddleware.RequireWebhookSecret())
	webhooks.POST("/:program_id/messages", cfg.WebhookHandler.ReceiveMessage)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAPIToken())
	api.GET("/programs", cfg.ProgramHandler.ListActive)
	api.POST("/programs/:program_id/enrollments", cfg.EnrollmentHandler.Enroll)

	return router
}

func corsOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
