package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/retroflect/backend/config"
	"github.com/retroflect/backend/internal/broadcast"
	"github.com/retroflect/backend/internal/database"
	"github.com/retroflect/backend/internal/database/repository"
	"github.com/retroflect/backend/internal/handlers"
	"github.com/retroflect/backend/internal/identity"
	"github.com/retroflect/backend/internal/middleware"
	"github.com/retroflect/backend/internal/realtime"
	"github.com/retroflect/backend/internal/services"
	"github.com/retroflect/backend/pkg/migration"
)

func main() {
	// Load configuration
	configPath := filepath.Join(".", "config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	migrationsPath := filepath.Join(".", "migrations")
	if err := migration.RunMigrations(db, migrationsPath); err != nil {
		log.Printf("Warning: Failed to run migrations: %v", err)
	}

	// Create app
	app, err := NewApp(db, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Background loops: websocket hub, and the Redis relay when configured
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)
	defer app.Stop()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = fmt.Sprintf("%d", cfg.Port)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: app.Router,
	}

	// Start the server in a goroutine
	go func() {
		log.Printf("Server starting on port %s in %s mode", port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// App represents the application
type App struct {
	Router       *gin.Engine
	Config       *config.Config
	DB           *sqlx.DB
	Repositories *Repositories
	Services     *Services
	Handlers     *Handlers

	hub         *realtime.Hub
	subscriber  *realtime.Subscriber
	broadcaster broadcast.Broadcaster
}

// NewApp creates a new application instance
func NewApp(db *sqlx.DB, cfg *config.Config) (*App, error) {
	app := &App{
		DB:     db,
		Config: cfg,
	}

	// Initialize components
	app.initRepositories()
	if err := app.initBroadcast(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHandlers()
	if err := app.setupRouter(); err != nil {
		return nil, err
	}

	return app, nil
}

// Repositories holds all repository instances
type Repositories struct {
	Board       repository.BoardRepository
	Card        repository.CardRepository
	Reaction    repository.ReactionRepository
	Participant repository.ParticipantRepository
	UnitOfWork  repository.UnitOfWork
}

// Services holds all service instances
type Services struct {
	Board       services.BoardService
	Card        services.CardService
	Reaction    services.ReactionService
	Participant services.ParticipantService
	Cascade     services.CascadeDeleter
}

// Handlers holds all handler instances
type Handlers struct {
	Board       *handlers.BoardHandler
	Card        *handlers.CardHandler
	Reaction    *handlers.ReactionHandler
	Participant *handlers.ParticipantHandler
	Realtime    *realtime.Handler
}

// initRepositories initializes all repositories
func (a *App) initRepositories() {
	a.Repositories = &Repositories{
		Board:       repository.NewBoardRepository(a.DB),
		Card:        repository.NewCardRepository(a.DB),
		Reaction:    repository.NewReactionRepository(a.DB),
		Participant: repository.NewParticipantRepository(a.DB),
		UnitOfWork:  repository.NewUnitOfWork(a.DB),
	}
}

// initBroadcast sets up the websocket hub and picks the broadcaster the
// services publish through. Without Redis the hub is the broadcaster and
// events stay in-process; with Redis events travel through pub/sub and a
// subscriber relays them back into the hub, so every instance sees every
// board's events.
func (a *App) initBroadcast() error {
	a.hub = realtime.NewHub()

	if a.Config.RedisURL == "" {
		a.broadcaster = a.hub
		return nil
	}

	publisher, err := broadcast.NewRedisBroadcaster(a.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect broadcaster to redis: %w", err)
	}

	subscriber, err := realtime.NewSubscriber(a.Config.RedisURL, a.hub)
	if err != nil {
		return fmt.Errorf("failed to connect subscriber to redis: %w", err)
	}

	a.broadcaster = publisher
	a.subscriber = subscriber
	return nil
}

// initServices initializes all services
func (a *App) initServices() error {
	// Closed-board archiving is optional; without a bucket boards simply
	// close without a snapshot
	var archiver services.Archiver
	if a.Config.ArchiveBucket != "" {
		s3Archiver, err := services.NewS3Archiver(a.Config, a.Repositories.Card, a.Repositories.Participant)
		if err != nil {
			return fmt.Errorf("failed to initialize archiver: %w", err)
		}
		archiver = s3Archiver
	}

	a.Services = &Services{}

	// Initialize services in the correct order to handle dependencies
	a.Services.Cascade = services.NewCascadeService(
		a.Repositories.Board,
		a.Repositories.Card,
		a.Repositories.Reaction,
		a.Repositories.Participant,
		a.Repositories.UnitOfWork,
		a.broadcaster,
	)
	a.Services.Board = services.NewBoardService(a.Repositories.Board, a.Services.Cascade, a.broadcaster, archiver)
	a.Services.Card = services.NewCardService(
		a.Repositories.Card,
		a.Repositories.Board,
		a.Repositories.Reaction,
		a.Repositories.UnitOfWork,
		a.broadcaster,
	)
	a.Services.Reaction = services.NewReactionService(
		a.Repositories.Reaction,
		a.Repositories.Card,
		a.Repositories.Board,
		a.Repositories.UnitOfWork,
		a.broadcaster,
	)
	a.Services.Participant = services.NewParticipantService(a.Repositories.Participant, a.Repositories.Board)

	return nil
}

// initHandlers initializes all handlers
func (a *App) initHandlers() {
	a.Handlers = &Handlers{
		Board:       handlers.NewBoardHandler(a.Services.Board),
		Card:        handlers.NewCardHandler(a.Services.Card),
		Reaction:    handlers.NewReactionHandler(a.Services.Reaction),
		Participant: handlers.NewParticipantHandler(a.Services.Participant),
		Realtime:    realtime.NewHandler(a.hub, a.Services.Board, a.Config.AllowedOrigins),
	}
}

// setupRouter configures the HTTP router
func (a *App) setupRouter() error {
	identitySecret := a.Config.IdentitySecret
	if identitySecret == "" {
		if a.Config.Environment == "production" {
			return fmt.Errorf("IDENTITY_SECRET must be set in production")
		}
		identitySecret = "default-secret-change-in-production" // Default for development
	}
	issuer := identity.NewIssuer(identitySecret, a.Config.IdentityTokenDuration)

	router := gin.Default()

	// Set up CORS
	router.Use(middleware.CORS(a.Config.AllowedOrigins))

	// Configure rate limits from config
	rateLimit := a.Config.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100 // Default to 100 requests per minute
	}
	globalRateLimiter := middleware.GlobalRateLimiter(rateLimit)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"version":   a.Config.Version,
			"timestamp": time.Now().UTC(),
		})
	})

	// API routes. Every request carries an identity: minted on first contact,
	// then held in a cookie or presented as a Bearer token.
	api := router.Group("/api/v1")
	api.Use(globalRateLimiter)
	api.Use(middleware.Identity(issuer, a.Config))
	api.Use(middleware.Override(a.Config.AdminSecretHash))

	// Register routes
	a.Handlers.Board.RegisterRoutes(api)
	a.Handlers.Card.RegisterRoutes(api)
	a.Handlers.Reaction.RegisterRoutes(api)
	a.Handlers.Participant.RegisterRoutes(api)
	a.Handlers.Realtime.RegisterRoutes(api)

	a.Router = router
	return nil
}

// Start launches the hub loop and, when Redis is configured, the pub/sub
// relay feeding it
func (a *App) Start(ctx context.Context) {
	go a.hub.Run(ctx)
	if a.subscriber != nil {
		go a.subscriber.Run(ctx)
	}
}

// Stop closes the broadcast connections
func (a *App) Stop() {
	if a.subscriber != nil {
		_ = a.subscriber.Close()
	}
	if closer, ok := a.broadcaster.(*broadcast.RedisBroadcaster); ok {
		_ = closer.Close()
	}
}
