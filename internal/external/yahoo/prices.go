package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoData means the provider has nothing for the requested symbol.
var ErrNoData = errors.New("yahoo: no data for symbol")

// chartResponse mirrors the subset of the chart endpoint the client reads.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// CurrentPrice returns the latest regular-market price for a ticker. Recent
// results are served from cache to keep the snapshot loop off Yahoo's rate
// limits.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	cacheKey := fmt.Sprintf("price:%s", ticker)
	if c.cache != nil {
		var cached float64
		if hit, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	url := fmt.Sprintf("%s%s/%s?range=1d&interval=1d", c.baseURL, chartPath, ticker)

	var parsed chartResponse
	if err := c.fetchJSON(ctx, url, &parsed); err != nil {
		return 0, err
	}

	price, err := extractCurrentPrice(&parsed)
	if err != nil {
		return 0, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, price, currentPriceTTL); err != nil {
			c.logger.WithError(err).Warn("Price cache write failed")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"price":  price,
	}).Debug("Fetched current price")
	return price, nil
}

// PriceOnDate returns the first daily close on or after the given date,
// looking at most five days ahead to skip weekends and holidays. ok=false
// means the provider has no price in that window, now or ever.
func (c *Client) PriceOnDate(ctx context.Context, ticker string, date time.Time) (float64, bool, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)

	url := fmt.Sprintf("%s%s/%s?period1=%d&period2=%d&interval=1d",
		c.baseURL, chartPath, ticker, start.Unix(), end.Unix())

	var parsed chartResponse
	if err := c.fetchJSON(ctx, url, &parsed); err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, false, nil
		}
		return 0, false, err
	}

	price, ok := extractFirstClose(&parsed)
	return price, ok, nil
}

func extractCurrentPrice(parsed *chartResponse) (float64, error) {
	if parsed.Chart.Error != nil {
		return 0, fmt.Errorf("yahoo error: %s", parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return 0, ErrNoData
	}

	price := parsed.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, ErrNoData
	}
	return price, nil
}

// extractFirstClose returns the first non-null close in the chart window.
func extractFirstClose(parsed *chartResponse) (float64, bool) {
	if parsed.Chart.Error != nil || len(parsed.Chart.Result) == 0 {
		return 0, false
	}

	quotes := parsed.Chart.Result[0].Indicators.Quote
	if len(quotes) == 0 {
		return 0, false
	}
	for _, close := range quotes[0].Close {
		if close != nil && *close > 0 {
			return *close, true
		}
	}
	return 0, false
}
