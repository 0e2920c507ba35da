// Package handlers provides HTTP request handlers for the publish API.
package handlers

import (
	"net/http"
	"runtime"
	"time"
)

var startTime = time.Now()

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
}

// Health handles the health check endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   h.version,
		GoVersion: runtime.Version(),
	})
}
