// Package api exposes the operational HTTP surface: health, prometheus
// metrics, and the room administration endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skippi/standup/internal/standup"
	"github.com/skippi/standup/internal/store"
)

const version = "1.0.0"

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store   store.DataStore
	manager *standup.Manager
	redis   *redis.Client // may be nil
}

// NewHandler creates a new Handler.
func NewHandler(st store.DataStore, manager *standup.Manager, redisClient *redis.Client) *Handler {
	return &Handler{store: st, manager: manager, redis: redisClient}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	dbStart := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(dbStart).String()}
	}

	// Redis is optional; only checked when configured.
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResponse represents the stats endpoint response.
type StatsResponse struct {
	Rooms int64 `json:"rooms"`
	Posts int64 `json:"posts"`
}

// Stats reports room and post counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.CountRooms(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	posts, err := h.store.CountPosts(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "storage error")
		return
	}
	h.JSON(w, http.StatusOK, StatsResponse{Rooms: rooms, Posts: posts})
}
