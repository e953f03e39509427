package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Sessions  int              `json:"sessions"`
	Timestamp string           `json:"timestamp"`
}

// Health reports Redis and, when configured, account database health.
// Only Redis is required for the relay to work.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	if h.redis != nil {
		checks["redis"] = pingCheck(ctx, h.redis)
	} else {
		checks["redis"] = Check{Status: "fail", Message: "not configured"}
	}
	if checks["redis"].Status != "pass" {
		allHealthy = false
	}

	if h.accounts != nil {
		checks["accounts"] = pingCheck(ctx, h.accounts)
		if checks["accounts"].Status != "pass" {
			allHealthy = false
		}
	} else {
		checks["accounts"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.SessionCount()
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Sessions:  sessions,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func pingCheck(ctx context.Context, p Pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "chatrelay",
		Version: version,
		Endpoints: []string{
			"GET /ws", "POST /message", "GET /users", "GET /rooms",
			"GET /who/{id}", "GET /stats", "GET /health", "GET /metrics",
		},
	})
}
