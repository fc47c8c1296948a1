package handlers

import (
	"net/http"

	"github.com/calebmorris/stockpilot/pkg/database"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// HealthHandler reports service and database health
type HealthHandler struct {
	db     *database.DB
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: log,
	}
}

// Check returns server health status
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":  "ok",
		"service": "stockpilot-api",
	}

	if h.db != nil {
		status, err := h.db.HealthCheck(r.Context())
		if err != nil {
			h.logger.WithError(err).Error("Database health check failed")
			payload["status"] = "degraded"
		}
		payload["database"] = status
	}

	if payload["status"] == "ok" {
		respondJSON(w, http.StatusOK, payload)
		return
	}
	respondJSON(w, http.StatusServiceUnavailable, payload)
}
