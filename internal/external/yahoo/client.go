package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/calebmorris/stockpilot/pkg/httputil"
	"github.com/calebmorris/stockpilot/pkg/logger"
	"github.com/calebmorris/stockpilot/pkg/redis"
)

const (
	chartPath        = "/v8/finance/chart"
	quoteSummaryPath = "/v10/finance/quoteSummary"

	// Yahoo throttles unauthenticated clients aggressively.
	requestsPerSecond = 4

	currentPriceTTL = 5 * time.Minute
)

// Client fetches prices, consensus estimates, and company profiles from the
// Yahoo Finance JSON endpoints.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	limiter    *rate.Limiter
	cache      *redis.Cache
}

// NewClient creates a Yahoo Finance client. The cache is optional; pass nil
// to fetch every price live.
func NewClient(httpClient *httputil.Client, baseURL string, cache *redis.Cache, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		cache:      cache,
	}
}

// fetchJSON performs a rate-limited GET and decodes the response into dest.
func (c *Client) fetchJSON(ctx context.Context, url string, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body failed: %w", err)
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	return nil
}
