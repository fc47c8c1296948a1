package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/calebmorris/stockpilot/internal/api/handlers"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(predictions *handlers.PredictionHandler, health *handlers.HealthHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", health.Check).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Prediction endpoints
	api.HandleFunc("/predictions/scorecard/{symbol}", predictions.GetScorecard).Methods("GET")
	api.HandleFunc("/predictions/consensus/{symbol}", predictions.GetConsensusHistory).Methods("GET")
	api.HandleFunc("/predictions/leaderboard", predictions.GetLeaderboard).Methods("GET")
	api.HandleFunc("/predictions/history/{symbol}", predictions.GetHistory).Methods("GET")
	api.HandleFunc("/predictions/firm/{symbol}/{firm}", predictions.GetFirmHistory).Methods("GET")
	api.HandleFunc("/predictions/summary/{symbol}", predictions.GetSummary).Methods("GET")
	api.HandleFunc("/predictions/snapshot", predictions.TriggerSnapshot).Methods("POST")
	api.HandleFunc("/predictions/snapshot/{symbol}", predictions.TriggerSnapshotForSymbol).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
