package yahoo

import (
	"context"
	"fmt"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// quoteSummaryResponse mirrors the financialData module of quoteSummary.
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			FinancialData *struct {
				TargetLowPrice          rawValue `json:"targetLowPrice"`
				TargetMeanPrice         rawValue `json:"targetMeanPrice"`
				TargetMedianPrice       rawValue `json:"targetMedianPrice"`
				TargetHighPrice         rawValue `json:"targetHighPrice"`
				NumberOfAnalystOpinions rawValue `json:"numberOfAnalystOpinions"`
				RecommendationKey       string   `json:"recommendationKey"`
				CurrentPrice            rawValue `json:"currentPrice"`
			} `json:"financialData"`
			AssetProfile *struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			Price *struct {
				LongName     string `json:"longName"`
				ShortName    string `json:"shortName"`
				ExchangeName string `json:"exchangeName"`
			} `json:"price"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// rawValue handles Yahoo's {"raw": 1.23, "fmt": "1.23"} number envelopes.
type rawValue struct {
	Raw *float64 `json:"raw"`
}

// ConsensusTargets fetches the aggregate analyst price targets for a ticker.
// Every field is optional; absent values come back nil.
func (c *Client) ConsensusTargets(ctx context.Context, ticker string) (contracts.ConsensusTargets, error) {
	url := fmt.Sprintf("%s%s/%s?modules=financialData", c.baseURL, quoteSummaryPath, ticker)

	var parsed quoteSummaryResponse
	if err := c.fetchJSON(ctx, url, &parsed); err != nil {
		return contracts.ConsensusTargets{}, err
	}
	if parsed.QuoteSummary.Error != nil {
		return contracts.ConsensusTargets{}, fmt.Errorf("yahoo error: %s", parsed.QuoteSummary.Error.Description)
	}
	if len(parsed.QuoteSummary.Result) == 0 || parsed.QuoteSummary.Result[0].FinancialData == nil {
		return contracts.ConsensusTargets{}, ErrNoData
	}

	fd := parsed.QuoteSummary.Result[0].FinancialData
	targets := contracts.ConsensusTargets{
		Low:       fd.TargetLowPrice.Raw,
		Avg:       fd.TargetMeanPrice.Raw,
		Median:    fd.TargetMedianPrice.Raw,
		High:      fd.TargetHighPrice.Raw,
		Consensus: fd.RecommendationKey,
		Current:   fd.CurrentPrice.Raw,
	}
	if fd.NumberOfAnalystOpinions.Raw != nil {
		count := int(*fd.NumberOfAnalystOpinions.Raw)
		targets.Count = &count
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  targets.Count,
	}).Debug("Fetched consensus targets")
	return targets, nil
}
