package handlers

import (
	"net/http"
	"time"

	"github.com/sbilibin2017/gw-items-api/internal/models"
)

// Version is reported by the root and health endpoints.
const Version = "0.1.0"

// RootResponse describes the service.
// swagger:model RootResponse
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// NewRootHandler returns an HTTP handler with basic API information.
// @Summary API information
// @Tags root
// @Produce json
// @Success 200 {object} handlers.RootResponse
// @Router / [get]
func NewRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, RootResponse{
			Message: "Welcome to gw-items-api",
			Version: Version,
			Docs:    "/docs/index.html",
		})
	}
}

// NewHealthHandler returns an HTTP handler reporting liveness.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthCheck
// @Router /health [get]
func NewHealthHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.HealthCheck{
			Status:    "ok",
			Timestamp: now().UTC(),
			Version:   Version,
		})
	}
}
