package contracts

import (
	"context"
	"time"
)

// RatingsProvider supplies raw analyst rating rows for a ticker.
type RatingsProvider interface {
	AnalystRatings(ctx context.Context, ticker string) ([]RatingRow, error)
}

// MarketDataProvider supplies prices, consensus estimates, and company
// metadata. PriceOnDate returns ok=false when no price exists for the date,
// which callers treat as "not resolvable yet or ever" rather than an error.
type MarketDataProvider interface {
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
	PriceOnDate(ctx context.Context, ticker string, date time.Time) (float64, bool, error)
	ConsensusTargets(ctx context.Context, ticker string) (ConsensusTargets, error)
	CompanyProfile(ctx context.Context, ticker string) (CompanyProfile, error)
}
