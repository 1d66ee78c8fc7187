package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// AuthMiddleware protects the management API with a shared secret
// (API_AUTH_TOKEN) and, optionally, webhook endpoints with a
// provider-configured secret (WEBHOOK_SECRET).
type AuthMiddleware struct {
	log           *logger.Logger
	apiToken      string
	webhookSecret string
}

func NewAuthMiddleware(log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		log:           log.With("Middleware", "AuthMiddleware"),
		apiToken:      strings.TrimSpace(os.Getenv("API_AUTH_TOKEN")),
		webhookSecret: strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
	}
}

func (am *AuthMiddleware) RequireAPIToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.apiToken == "" {
			am.log.Warn("API_AUTH_TOKEN not set; rejecting request", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "api auth not configured"})
			return
		}
		token := extractBearerToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(am.apiToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Next()
	}
}

// RequireWebhookSecret is a no-op when WEBHOOK_SECRET is unset; some
// providers cannot attach custom headers.
func (am *AuthMiddleware) RequireWebhookSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.webhookSecret == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader("X-Webhook-Secret"))
		if got == "" {
			got = extractBearerToken(c)
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(am.webhookSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
