package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/luminachat/lumina-backend/internal/clients/evolution"
	"github.com/luminachat/lumina-backend/internal/clients/openai"
	rediscli "github.com/luminachat/lumina-backend/internal/clients/redis"
	"github.com/luminachat/lumina-backend/internal/clients/twilio"
	"github.com/luminachat/lumina-backend/internal/data/repos"
	"github.com/luminachat/lumina-backend/internal/db"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/handlers"
	"github.com/luminachat/lumina-backend/internal/middleware"
	"github.com/luminachat/lumina-backend/internal/observability"
	"github.com/luminachat/lumina-backend/internal/pkg/envutil"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
	"github.com/luminachat/lumina-backend/internal/server"
	"github.com/luminachat/lumina-backend/internal/services"
	"github.com/luminachat/lumina-backend/internal/webhook"
)

const serviceName = "lumina-backend"

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	allRepos := repos.NewAll(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	deduper, err := rediscli.NewDeduper(log)
	if err != nil {
		log.Error("Could not init Redis deduper", "error", err)
		os.Exit(1)
	}
	defer deduper.Close()

	senders := map[string]services.Sender{}
	if evoClient, err := evolution.NewFromEnv(log); err != nil {
		log.Warn("Evolution client unavailable", "error", err)
	} else {
		senders[types.ProviderEvolution] = services.NewEvolutionSender(evoClient)
	}
	if twilioClient, err := twilio.NewFromEnv(log); err != nil {
		log.Warn("Twilio client unavailable", "error", err)
	} else {
		senders[types.ProviderTwilio] = services.NewTwilioSender(twilioClient)
	}
	if len(senders) == 0 {
		log.Error("No delivery provider configured; set Evolution or Twilio env vars")
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	runner := services.NewAssistantRunCoordinator(log, openaiClient)
	resolver := services.NewSessionResolver(thePG, log, allRepos.Sessions, allRepos.AccessWindows, runner)
	guard := services.NewAccessGuard(log, allRepos.Sessions)
	state := services.NewSessionStateUpdater(log, allRepos.Sessions, allRepos.AccessWindows)
	delivery := services.NewDeliveryTable(log, senders)
	orchestrator := services.NewConversationOrchestrator(
		thePG,
		log,
		allRepos.Users,
		allRepos.Programs,
		allRepos.Transcripts,
		resolver,
		guard,
		runner,
		state,
		delivery,
	)
	enrollments := services.NewEnrollmentService(thePG, log, allRepos.Users, allRepos.Programs, allRepos.Sessions, orchestrator)

	// Webhook adapters
	registry := webhook.NewRegistry(log,
		webhook.NewEvolutionAdapter(),
		webhook.NewZAPIAdapter(),
	)

	// Handlers
	log.Info("Setting up handlers from main...")
	webhookHandler := handlers.NewWebhookHandler(log, registry, orchestrator, delivery, deduper)
	enrollmentHandler := handlers.NewEnrollmentHandler(log, enrollments)
	programHandler := handlers.NewProgramHandler(log, allRepos.Programs)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:       serviceName,
		AuthMiddleware:    authMiddleware,
		WebhookHandler:    webhookHandler,
		EnrollmentHandler: enrollmentHandler,
		ProgramHandler:    programHandler,
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
