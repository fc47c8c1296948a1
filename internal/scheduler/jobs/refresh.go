package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/calebmorris/stockpilot/internal/contracts"
	"github.com/calebmorris/stockpilot/internal/prediction"
	"github.com/calebmorris/stockpilot/pkg/config"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// PriceRefreshJob warms the current-price cache for every tracked ticker
// during market hours so interactive queries stay fast.
type PriceRefreshJob struct {
	store  prediction.Store
	market contracts.MarketDataProvider
	config *config.Config
	logger *logger.Logger

	now func() time.Time
}

// NewPriceRefreshJob creates a new price refresh job
func NewPriceRefreshJob(store prediction.Store, market contracts.MarketDataProvider, cfg *config.Config, log *logger.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		store:  store,
		market: market,
		config: cfg,
		logger: log,
		now:    time.Now,
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "tracked_price_refresh"
}

// Schedule returns the cron schedule
func (j *PriceRefreshJob) Schedule() string {
	return j.config.Prediction.RefreshSchedule
}

// Run refreshes prices for tracked tickers. Outside market hours the run
// is a no-op.
func (j *PriceRefreshJob) Run(ctx context.Context) error {
	open, err := j.marketOpen()
	if err != nil {
		return err
	}
	if !open {
		j.logger.Debug("Market closed, skipping price refresh")
		return nil
	}

	tickers, err := j.store.TrackedTickers(ctx)
	if err != nil {
		return fmt.Errorf("list tracked tickers: %w", err)
	}

	refreshed := 0
	for _, ticker := range tickers {
		if _, err := j.market.CurrentPrice(ctx, ticker); err != nil {
			j.logger.WithError(err).WithField("ticker", ticker).Warn("Price refresh failed")
			continue
		}
		refreshed++
	}

	j.logger.WithFields(map[string]interface{}{
		"tracked":   len(tickers),
		"refreshed": refreshed,
	}).Info("Tracked price refresh completed")
	return nil
}

// marketOpen reports whether the configured exchange is in its regular
// session (weekdays 09:30-16:00 local time).
func (j *PriceRefreshJob) marketOpen() (bool, error) {
	loc, err := time.LoadLocation(j.config.Prediction.MarketTimezone)
	if err != nil {
		return false, fmt.Errorf("load market timezone: %w", err)
	}

	now := j.now().In(loc)
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}

	minutes := now.Hour()*60 + now.Minute()
	return minutes >= 9*60+30 && minutes < 16*60, nil
}
