// Scout - Conversational Research Assistant Server
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

	"github.com/avelev/scout/internal/agent"
	"github.com/avelev/scout/internal/api"
	"github.com/avelev/scout/internal/chatws"
	"github.com/avelev/scout/internal/config"
	"github.com/avelev/scout/internal/convlog"
	"github.com/avelev/scout/internal/identity"
	"github.com/avelev/scout/internal/middleware"
	"github.com/avelev/scout/internal/search"
	"github.com/avelev/scout/internal/session"
	"github.com/avelev/scout/internal/store"
	"github.com/avelev/scout/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
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

	conversationLogger := convlog.New(cfg.ConversationLog, repo)
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Agent collaborators: the web-search tool and the model client.
	searchTool := search.NewTool(search.NewTavilyClient(cfg.TavilyAPIKey))
	tools := []agent.Tool{searchTool}
	model := agent.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.ModelName, cfg.Temperature, tools)
	loop := agent.NewLoop(model, tools, cfg.MaxAgentRounds)
	slog.Info("Agent loop initialized", "model", cfg.ModelName, "max_rounds", cfg.MaxAgentRounds)

	sessions := session.NewManager(loop, cfg.QuestionsAllowed)
	registry := chatws.NewRegistry()

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, sessions, conversationLogger, cfg)
	wsHandler := chatws.NewHandler(sessions, registry, conversationLogger, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// All routes use identity middleware (no auth needed).
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start TTL worker. Evicted sessions get their live connections closed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartTTLWorker(ctx, cfg.SessionTTL, time.Minute, func(key string) {
		userID, sessionID := session.SplitKey(key)
		registry.Close(userID, sessionID)
	})
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

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
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
