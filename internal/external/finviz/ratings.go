package finviz

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// AnalystRatings fetches the ratings table from a ticker's quote page and
// normalizes it to raw rating rows. Rows without a firm name are dropped;
// deduplication happens downstream in the snapshot service.
func (c *Client) AnalystRatings(ctx context.Context, ticker string) ([]contracts.RatingRow, error) {
	html, err := c.fetchHTML(ctx, ticker)
	if err != nil {
		return nil, err
	}

	rows, err := parseRatingsHTML(html)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(rows),
	}).Debug("Fetched analyst ratings")
	return rows, nil
}

// parseRatingsHTML extracts rating rows from the quote page's ratings table.
// Column layout: Date | Action | Analyst | Rating change | Price target change.
func parseRatingsHTML(html string) ([]contracts.RatingRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var rows []contracts.RatingRow
	doc.Find("table.js-table-ratings tr, table.fullview-ratings-outer tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 5 {
			return
		}

		action := cleanCell(cells.Eq(1).Text())
		firm := cleanCell(cells.Eq(2).Text())
		rating := cleanCell(cells.Eq(3).Text())
		target := cleanCell(cells.Eq(4).Text())

		if firm == "" {
			return
		}
		if rating == "" {
			rating = "N/A"
		}

		rows = append(rows, contracts.RatingRow{
			Firm:        firm,
			Action:      action,
			Rating:      latestOfArrow(rating),
			PriceTarget: parsePriceTarget(target),
		})
	})

	return rows, nil
}

// latestOfArrow keeps the right-hand side of "Hold → Buy" style transitions.
func latestOfArrow(value string) string {
	for _, sep := range []string{"→", "->"} {
		if idx := strings.LastIndex(value, sep); idx >= 0 {
			return strings.TrimSpace(value[idx+len(sep):])
		}
	}
	return value
}

// parsePriceTarget parses the newest target out of cells like "$185",
// "$170 → $185", or "". Returns nil when no usable number is present.
func parsePriceTarget(value string) *float64 {
	value = latestOfArrow(value)
	value = strings.NewReplacer("$", "", ",", "").Replace(value)
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func cleanCell(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
}
