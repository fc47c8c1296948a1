package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calebmorris/stockpilot/internal/api"
	"github.com/calebmorris/stockpilot/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Starts the HTTP API server.

Endpoints:
  GET  /health                               - Health check
  GET  /api/predictions/scorecard/{symbol}   - Per-firm accuracy for a stock
  GET  /api/predictions/consensus/{symbol}   - Consensus target trail
  GET  /api/predictions/leaderboard          - Ranked firms (symbol/sector filters)
  GET  /api/predictions/history/{symbol}     - Recent predictions
  GET  /api/predictions/firm/{symbol}/{firm} - One firm's calls on a stock
  GET  /api/predictions/summary/{symbol}     - Summary card
  POST /api/predictions/snapshot             - Trigger snapshot for all tickers
  POST /api/predictions/snapshot/{symbol}    - Trigger snapshot for one ticker

Example:
  go run ./cmd/stockpilot api
  go run ./cmd/stockpilot api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	// Override port if flag is set
	if apiPort != "" {
		svc.cfg.Port = apiPort
	}

	log := svc.log
	log.WithFields(map[string]interface{}{
		"port": svc.cfg.Port,
		"env":  svc.cfg.Env,
	}).Info("Initializing API server")

	// Create handlers and router
	predictionHandler := handlers.NewPredictionHandler(svc.query, log.Component("api"))
	healthHandler := handlers.NewHealthHandler(svc.db, log.Component("api"))
	router := api.NewRouter(predictionHandler, healthHandler, log)

	// Create server
	server := api.New(svc.cfg, log, router)

	// Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("Server running on http://localhost:%s\n", svc.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
