// ClimbLearn - learning flow orchestration API
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semihsipahi/climblearn-api/internal/api"
	"github.com/semihsipahi/climblearn-api/internal/config"
	"github.com/semihsipahi/climblearn-api/internal/flow"
	"github.com/semihsipahi/climblearn-api/internal/interaction"
	"github.com/semihsipahi/climblearn-api/internal/middleware"
	"github.com/semihsipahi/climblearn-api/internal/realtime"
	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreDriver)

	// Initialize dependencies.
	repo, err := openStore(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	gateway := workflow.NewClient(cfg.Workflow.Keys,
		workflow.WithBaseURL(cfg.Workflow.BaseURL),
		workflow.WithTimeout(cfg.Workflow.Timeout),
		workflow.WithLogger(logger),
	)
	if missing := cfg.Workflow.Keys.Missing(); len(missing) > 0 {
		slog.Warn("Workflow keys missing, offline responses will be used", "flows", missing)
	}

	// Real-time fan-out: admin websocket hub, plus NATS when configured.
	hub := realtime.NewHub(cfg.WebSocketOriginPatterns(), logger)
	publishers := realtime.MultiPublisher{hub}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = realtime.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			slog.Warn("Failed to connect to NATS, interaction events stay local", "error", err)
		} else {
			publishers = append(publishers, realtime.NewNATSPublisher(nc, cfg.NATSSubjectPrefix))
			slog.Info("NATS publisher enabled", "url", cfg.NATSURL, "prefix", cfg.NATSSubjectPrefix)
		}
	}

	recorder := interaction.NewRecorder(repo, publishers,
		interaction.WithPublishTimeout(cfg.PublishTimeout),
		interaction.WithLogger(logger),
	)
	orchestrator := flow.New(repo, gateway, recorder,
		flow.WithLogger(logger),
		flow.WithDefaults(cfg.DefaultTopic, cfg.DefaultStudentName),
	)

	// Initialize handlers.
	flowHandler := api.NewFlowHandler(orchestrator)
	logHandler := api.NewLogHandler(recorder)
	healthHandler := api.NewHealthHandler(repo)

	if cfg.ClientAPIKey == "" {
		slog.Warn("CLIENT_API_KEY not set, flow endpoints are unauthenticated")
	}
	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, log endpoints are unauthenticated")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	r.Get("/", api.Root)
	r.Handle("/metrics", promhttp.Handler())
	healthHandler.RegisterHealth(r)

	// Learner-facing routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.ClientAPIKey))
		flowHandler.RegisterRoutes(r)
	})

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.AdminAPIKey))
		logHandler.RegisterRoutes(r)
		r.Get("/ws/admin", hub.ServeHTTP)
	})

	// Create server.
	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Let in-flight publishes finish before their sinks go away.
	recorder.Close()
	hub.Close()
	if nc != nil {
		if err := nc.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", "error", err)
			nc.Close()
		}
	}

	slog.Info("Server stopped successfully")
}
