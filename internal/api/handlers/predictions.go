package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/calebmorris/stockpilot/internal/prediction"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// PredictionHandler handles analyst prediction API endpoints
type PredictionHandler struct {
	service *prediction.Service
	logger  *logger.Logger
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(svc *prediction.Service, log *logger.Logger) *PredictionHandler {
	return &PredictionHandler{
		service: svc,
		logger:  log,
	}
}

// GetScorecard returns per-firm accuracy metrics for a stock
// GET /api/predictions/scorecard/{symbol}
func (h *PredictionHandler) GetScorecard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	entries, err := h.service.AnalystScorecard(ctx, symbol)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to build scorecard")
		respondError(w, http.StatusInternalServerError, "failed to build scorecard")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"analysts": entries,
	})
}

// GetConsensusHistory returns the consensus target trail for a stock
// GET /api/predictions/consensus/{symbol}
func (h *PredictionHandler) GetConsensusHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	points, err := h.service.ConsensusHistory(ctx, symbol)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get consensus history")
		respondError(w, http.StatusInternalServerError, "failed to get consensus history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"history": points,
	})
}

// GetLeaderboard returns ranked analyst firms, optionally filtered by
// symbol or sector
// GET /api/predictions/leaderboard?symbol=AAPL&sector=Technology
func (h *PredictionHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := r.URL.Query().Get("symbol")
	sector := r.URL.Query().Get("sector")

	entries, err := h.service.TopAnalysts(ctx, symbol, sector)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build leaderboard")
		respondError(w, http.StatusInternalServerError, "failed to build leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"analysts": entries,
	})
}

// GetHistory returns the recent prediction rows for a stock
// GET /api/predictions/history/{symbol}
func (h *PredictionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	entries, err := h.service.PredictionHistory(ctx, symbol)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get prediction history")
		respondError(w, http.StatusInternalServerError, "failed to get prediction history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":      symbol,
		"predictions": entries,
	})
}

// GetFirmHistory returns one firm's call history on a stock
// GET /api/predictions/firm/{symbol}/{firm}
func (h *PredictionHandler) GetFirmHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	firm := vars["firm"]

	if symbol == "" || firm == "" {
		respondError(w, http.StatusBadRequest, "symbol and firm are required")
		return
	}

	entries, err := h.service.FirmHistory(ctx, symbol, firm)
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"symbol": symbol,
			"firm":   firm,
		}).Error("Failed to get firm history")
		respondError(w, http.StatusInternalServerError, "failed to get firm history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"firm":    firm,
		"history": entries,
	})
}

// GetSummary returns the prediction summary card for a stock
// GET /api/predictions/summary/{symbol}
func (h *PredictionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	summary, err := h.service.PredictionSummary(ctx, symbol)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to build summary")
		respondError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// TriggerSnapshot runs the daily snapshot for all tracked tickers.
// Failures come back as a JSON status payload rather than an HTTP error.
// POST /api/predictions/snapshot
func (h *PredictionHandler) TriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	result := h.service.RunSnapshot(r.Context())
	respondJSON(w, http.StatusOK, result)
}

// TriggerSnapshotForSymbol runs the snapshot for a single ticker
// POST /api/predictions/snapshot/{symbol}
func (h *PredictionHandler) TriggerSnapshotForSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	result := h.service.RunSnapshotForSymbol(r.Context(), symbol)
	respondJSON(w, http.StatusOK, result)
}
