package finviz

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/calebmorris/stockpilot/pkg/httputil"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// Client scrapes analyst rating rows from Finviz quote pages.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Finviz client.
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://finviz.com"
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    baseURL,
	}
}

// fetchHTML fetches a quote page for a ticker.
func (c *Client) fetchHTML(ctx context.Context, ticker string) (string, error) {
	url := fmt.Sprintf("%s/quote.ashx?t=%s", c.baseURL, ticker)

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body failed: %w", err)
	}
	return string(body), nil
}
