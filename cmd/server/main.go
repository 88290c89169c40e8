package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"
	"github.com/stanstork/alumni-sync/internal/archive"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/config"
	"github.com/stanstork/alumni-sync/internal/handlers"
	"github.com/stanstork/alumni-sync/internal/invite"
	"github.com/stanstork/alumni-sync/internal/middleware"
	"github.com/stanstork/alumni-sync/internal/migration"
	"github.com/stanstork/alumni-sync/internal/notification"
	"github.com/stanstork/alumni-sync/internal/orchestrator"
	"github.com/stanstork/alumni-sync/internal/repository"
	"github.com/stanstork/alumni-sync/internal/routes"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	store  repository.Store
	caps   *capability.Registry
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	log.SetFlags(0)
	log.SetOutput(logger)

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFile != "" {
		logger = logger.Output(zerolog.MultiLevelWriter(consoleWriter, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}))
		log.SetOutput(logger)
	}

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(context.Background(), db, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate database")
	}

	app := &application{
		config: cfg,
		db:     db,
		store:  repository.NewStore(db),
		caps:   capability.NewRegistry(logger),
		logger: logger,
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.Logging(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}),
		h.ExposedHeaders([]string{middleware.RequestIDHeader}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	logger.Info().Msg("Application terminated.")
}

func (app *application) mailer(logger zerolog.Logger) notification.Mailer {
	if strings.TrimSpace(app.config.Email.SMTPHost) == "" {
		logger.Warn().Msg("smtp_host not set, invitations are only logged")
		return notification.NewLogMailer(logger)
	}
	m, err := notification.NewSMTPMailer(app.config.Email)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mailer")
	}
	return m
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	orch := orchestrator.New(app.store, app.caps, logger)
	lifecycle := archive.NewManager(app.store, app.caps, logger)

	tokens, err := invite.NewService(app.store, app.caps, app.config.Invite.TokenSecret, logger, invite.WithTTL(app.config.Invite.TTL))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure invite tokens")
	}
	dispatcher := invite.NewDispatcher(app.mailer(logger), app.config.Invite.BatchSize, app.config.Invite.BatchDelay, logger)
	sender := invite.NewSender(tokens, dispatcher, app.config.Invite.ClaimURLTemplate)

	return routes.NewRouter(routes.Handlers{
		Auth:     handlers.NewAuthHandler(app.config.JWTSecret, logger),
		Invites:  handlers.NewInviteHandler(sender, tokens, logger),
		Contacts: handlers.NewContactHandler(orch, lifecycle, logger),
		Events:   handlers.NewEventHandler(orch, lifecycle, logger),
		Caps:     app.caps,

		ClaimLimiter: rate.NewLimiter(rate.Limit(app.config.Invite.ClaimRate), app.config.Invite.ClaimBurst),
	})
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
