package yahoo

import (
	"context"
	"fmt"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// CompanyProfile fetches sector and naming metadata for a ticker. Used by the
// sector-filtered leaderboard queries.
func (c *Client) CompanyProfile(ctx context.Context, ticker string) (contracts.CompanyProfile, error) {
	url := fmt.Sprintf("%s%s/%s?modules=assetProfile,price", c.baseURL, quoteSummaryPath, ticker)

	var parsed quoteSummaryResponse
	if err := c.fetchJSON(ctx, url, &parsed); err != nil {
		return contracts.CompanyProfile{}, err
	}
	if parsed.QuoteSummary.Error != nil {
		return contracts.CompanyProfile{}, fmt.Errorf("yahoo error: %s", parsed.QuoteSummary.Error.Description)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return contracts.CompanyProfile{}, ErrNoData
	}

	result := parsed.QuoteSummary.Result[0]
	profile := contracts.CompanyProfile{Symbol: ticker, Name: ticker}
	if result.AssetProfile != nil {
		profile.Sector = result.AssetProfile.Sector
		profile.Industry = result.AssetProfile.Industry
	}
	if result.Price != nil {
		if result.Price.LongName != "" {
			profile.Name = result.Price.LongName
		} else if result.Price.ShortName != "" {
			profile.Name = result.Price.ShortName
		}
		profile.Exchange = result.Price.ExchangeName
	}
	return profile, nil
}
