package finviz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmorris/stockpilot/pkg/config"
	"github.com/calebmorris/stockpilot/pkg/httputil"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

const ratingsFixture = `
<html><body>
<table class="js-table-ratings">
  <tr>
    <th>Date</th><th>Action</th><th>Analyst</th><th>Rating</th><th>Price Target</th>
  </tr>
  <tr>
    <td>Mar-02-26</td><td>Reiterated</td><td>Morgan Stanley</td><td>Overweight</td><td>$170 &rarr; $185</td>
  </tr>
  <tr>
    <td>Feb-27-26</td><td>Upgrade</td><td>UBS</td><td>Neutral &rarr; Buy</td><td>$160</td>
  </tr>
  <tr>
    <td>Feb-20-26</td><td>Initiated</td><td>Goldman</td><td>Buy</td><td></td>
  </tr>
  <tr>
    <td>Feb-15-26</td><td>Downgrade</td><td></td><td>Sell</td><td>$90</td>
  </tr>
  <tr>
    <td>Feb-10-26</td><td>short row</td>
  </tr>
  <tr>
    <td>Feb-01-26</td><td>Reiterated</td><td>Citi</td><td>Buy</td><td>$1,250</td>
  </tr>
</table>
</body></html>`

func TestParseRatingsHTML(t *testing.T) {
	rows, err := parseRatingsHTML(ratingsFixture)
	require.NoError(t, err)
	require.Len(t, rows, 4, "rows without a firm or with too few cells are dropped")

	ms := rows[0]
	assert.Equal(t, "Morgan Stanley", ms.Firm)
	assert.Equal(t, "Reiterated", ms.Action)
	assert.Equal(t, "Overweight", ms.Rating)
	require.NotNil(t, ms.PriceTarget)
	assert.Equal(t, 185.0, *ms.PriceTarget, "target transitions keep the newest value")

	ubs := rows[1]
	assert.Equal(t, "Buy", ubs.Rating, "rating transitions keep the newest value")
	require.NotNil(t, ubs.PriceTarget)
	assert.Equal(t, 160.0, *ubs.PriceTarget)

	goldman := rows[2]
	assert.Nil(t, goldman.PriceTarget, "empty target cell maps to nil")

	citi := rows[3]
	require.NotNil(t, citi.PriceTarget)
	assert.Equal(t, 1250.0, *citi.PriceTarget, "thousands separators are stripped")
}

func TestParseRatingsHTMLNoTable(t *testing.T) {
	rows, err := parseRatingsHTML(`<html><body><p>captcha</p></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLatestOfArrow(t *testing.T) {
	assert.Equal(t, "Buy", latestOfArrow("Hold → Buy"))
	assert.Equal(t, "Buy", latestOfArrow("Hold -> Buy"))
	assert.Equal(t, "Buy", latestOfArrow("Buy"))
	assert.Equal(t, "", latestOfArrow(""))
}

func TestParsePriceTarget(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"$185", fptr(185)},
		{"$170 → $185", fptr(185)},
		{"$1,250.50", fptr(1250.50)},
		{"", nil},
		{"N/A", nil},
	}

	for _, tt := range tests {
		got := parsePriceTarget(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.Equal(t, *tt.want, *got, tt.in)
	}
}

func TestAnalystRatings(t *testing.T) {
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(ratingsFixture))
	}))
	defer server.Close()

	log := logger.New(&config.Config{LogLevel: "error"})
	httpClient := httputil.New(&config.Config{}, log).
		DisableRetry().
		WithUserAgent("test-agent")
	client := NewClient(httpClient, server.URL, log)

	rows, err := client.AnalystRatings(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, "/quote.ashx?t=AAPL", gotPath)
	assert.Equal(t, "test-agent", gotAgent)
}

func TestAnalystRatingsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	log := logger.New(&config.Config{LogLevel: "error"})
	client := NewClient(httputil.New(&config.Config{}, log).DisableRetry(), server.URL, log)

	_, err := client.AnalystRatings(context.Background(), "AAPL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func fptr(v float64) *float64 { return &v }
