package commands

import (
	"fmt"
	"time"

	"github.com/calebmorris/stockpilot/internal/external/finviz"
	"github.com/calebmorris/stockpilot/internal/external/yahoo"
	"github.com/calebmorris/stockpilot/internal/prediction"
	"github.com/calebmorris/stockpilot/pkg/config"
	"github.com/calebmorris/stockpilot/pkg/database"
	"github.com/calebmorris/stockpilot/pkg/httputil"
	"github.com/calebmorris/stockpilot/pkg/logger"
	"github.com/calebmorris/stockpilot/pkg/redis"
)

// Finviz serves an error page to clients that do not look like a browser.
const scrapeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// services bundles the wired application components shared by the CLI
// commands.
type services struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *database.DB
	redis  *redis.Client
	market *yahoo.Client
	store  *prediction.Repository

	snapshot *prediction.SnapshotService
	query    *prediction.Service
}

// buildServices loads config and wires the full dependency graph.
func buildServices() (*services, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (no-op client when disabled)
	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	cache := redis.NewCache(rc, "stockpilot")
	limiter := redis.NewRateLimiter(rc, "stockpilot")

	// 5. Create HTTP clients
	finvizHTTP := httputil.New(cfg, log).
		WithUserAgent(scrapeUserAgent).
		WithRateLimiter(limiter, redis.FinvizRateLimit)
	yahooHTTP := httputil.NewWithTimeout(cfg, log, 15*time.Second)

	// 6. Create provider clients
	finvizClient := finviz.NewClient(finvizHTTP, cfg.Finviz.BaseURL, log.Component("finviz"))
	yahooClient := yahoo.NewClient(yahooHTTP, cfg.Yahoo.BaseURL, cache, log.Component("yahoo"))

	// 7. Create repository and services
	repo := prediction.NewRepository(db.Pool)
	scoreCfg := prediction.ScoreConfig{
		SuccessThreshold: cfg.Prediction.SuccessThreshold,
		MinPredictions:   cfg.Prediction.MinPredictions,
		HorizonDays:      cfg.Prediction.HorizonDays,
	}

	snapshotSvc := prediction.NewSnapshotService(repo, finvizClient, yahooClient, scoreCfg, log.Component("snapshot").Zerolog())
	querySvc := prediction.NewService(repo, yahooClient, snapshotSvc, scoreCfg, log.Component("prediction").Zerolog())

	return &services{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    rc,
		market:   yahooClient,
		store:    repo,
		snapshot: snapshotSvc,
		query:    querySvc,
	}, nil
}

// Close releases database and Redis connections.
func (s *services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
