// Package api provides HTTP handlers for the Scout API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/avelev/scout/internal/config"
	"github.com/avelev/scout/internal/convlog"
	"github.com/avelev/scout/internal/session"
	"github.com/avelev/scout/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo        store.Repository
	sessions    *session.Manager
	log         convlog.Logger
	rateLimiter *RateLimiter
	cfg         *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, log convlog.Logger, cfg *config.Config) *Handler {
	return &Handler{
		repo:        repo,
		sessions:    sessions,
		log:         log,
		rateLimiter: NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		cfg:         cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
