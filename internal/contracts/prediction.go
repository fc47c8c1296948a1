package contracts

import (
	"strings"
	"time"
)

// OutcomeState describes where a snapshot sits in its evaluation lifecycle.
type OutcomeState string

const (
	// OutcomePending means the target date has not been evaluated yet.
	OutcomePending OutcomeState = "PENDING"
	// OutcomeResolved means a realized price was obtained and outcome fields are populated.
	OutcomeResolved OutcomeState = "RESOLVED"
	// OutcomeUnresolvable means the target date passed but no realized price
	// could ever be obtained. Terminal: the row is excluded from evaluation
	// and scoring forever.
	OutcomeUnresolvable OutcomeState = "UNRESOLVABLE"
)

// Outcome carries the resolved fields of a prediction. Fields other than
// State are meaningful only when State == OutcomeResolved, which keeps the
// impossible combination "resolved fields set but unresolvable" unrepresentable.
type Outcome struct {
	State                OutcomeState `json:"state"`
	ActualPrice          float64      `json:"actual_price,omitempty"`
	ActualReturn         float64      `json:"actual_return,omitempty"`
	PredictionError      float64      `json:"prediction_error,omitempty"`
	DirectionallyCorrect bool         `json:"directionally_correct,omitempty"`
}

// Resolved reports whether outcome fields are populated.
func (o Outcome) Resolved() bool { return o.State == OutcomeResolved }

// Terminal reports whether evaluation will never touch this outcome again.
func (o Outcome) Terminal() bool {
	return o.State == OutcomeResolved || o.State == OutcomeUnresolvable
}

// AnalystSnapshot is one firm's rating and price target captured on one date
// for one ticker. Identity: (ticker, snapshot_date, firm).
type AnalystSnapshot struct {
	ID           int64     `json:"id"`
	Ticker       string    `json:"ticker"`
	SnapshotDate time.Time `json:"snapshot_date"`
	Firm         string    `json:"firm"`
	AnalystName  string    `json:"analyst_name,omitempty"`
	Action       string    `json:"action,omitempty"`
	Rating       string    `json:"rating"`
	PriceTarget  *float64  `json:"price_target"`
	CurrentPrice float64   `json:"current_price"`
	// ImpliedReturn is derived from PriceTarget at capture time; nil when the
	// rating carried no target.
	ImpliedReturn *float64  `json:"implied_return"`
	TargetDate    time.Time `json:"target_date"`
	Outcome       Outcome   `json:"outcome"`
	IsBackfilled  bool      `json:"is_backfilled"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
}

// EligibleForScoring reports whether the row may enter score aggregation:
// resolved with a real target and not synthesized after the fact.
func (s *AnalystSnapshot) EligibleForScoring() bool {
	return s.Outcome.State == OutcomeResolved && s.PriceTarget != nil && !s.IsBackfilled
}

// ConsensusSnapshot is one ticker's aggregate analyst consensus captured on
// one date. Identity: (ticker, snapshot_date).
//
// Consensus rows have no unresolvable state: a row that cannot be priced at
// its target date stays pending and is retried on every future evaluation run.
type ConsensusSnapshot struct {
	ID              int64     `json:"id"`
	Ticker          string    `json:"ticker"`
	SnapshotDate    time.Time `json:"snapshot_date"`
	TargetLow       *float64  `json:"target_low"`
	TargetAvg       *float64  `json:"target_avg"`
	TargetMedian    *float64  `json:"target_median"`
	TargetHigh      *float64  `json:"target_high"`
	AnalystCount    *int      `json:"analyst_count"`
	ConsensusRating string    `json:"consensus_rating,omitempty"`
	CurrentPrice    float64   `json:"current_price"`
	ImpliedUpside   *float64  `json:"implied_upside"`
	TargetDate      time.Time `json:"target_date"`
	ActualPrice     *float64  `json:"actual_price_at_target"`
	WasCorrect      *bool     `json:"consensus_was_correct"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"created_at"`
}

// Resolved reports whether a realized price has been recorded.
func (s *ConsensusSnapshot) Resolved() bool { return s.ActualPrice != nil }

// AnalystScore is the materialized accuracy aggregate for one firm, either
// across all tickers (Ticker == nil) or for a single (firm, ticker) pair.
// The table is fully rebuilt on every recompute cycle.
type AnalystScore struct {
	ID               int64     `json:"id"`
	Firm             string    `json:"firm"`
	Ticker           *string   `json:"ticker"`
	TotalPredictions int       `json:"total_predictions"`
	// Metric fields are nil when TotalPredictions is below the minimum sample
	// size, so "insufficient data" stays representable.
	SuccessRate         *float64  `json:"success_rate"`
	AvgReturnError      *float64  `json:"avg_return_error"`
	AvgAbsoluteError    *float64  `json:"avg_absolute_error"`
	DirectionalAccuracy *float64  `json:"directional_accuracy"`
	CompositeScore      *float64  `json:"composite_score"`
	BestCallTicker      *string   `json:"best_call_ticker"`
	WorstCallTicker     *string   `json:"worst_call_ticker"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Global reports whether this is the per-firm all-tickers row.
func (s *AnalystScore) Global() bool { return s.Ticker == nil }

// HasMetrics reports whether all metric fields are populated.
func (s *AnalystScore) HasMetrics() bool {
	return s.SuccessRate != nil && s.AvgAbsoluteError != nil &&
		s.DirectionalAccuracy != nil && s.CompositeScore != nil
}

// RatingRow is one raw analyst rating from a ratings provider, before firm
// deduplication.
type RatingRow struct {
	Firm        string
	AnalystName string
	Action      string
	Rating      string
	PriceTarget *float64
}

// ConsensusTargets is the aggregate target set a market data provider reports
// for a ticker. All fields are optional; Current may be absent even when
// targets are present.
type ConsensusTargets struct {
	Low       *float64
	Avg       *float64
	Median    *float64
	High      *float64
	Count     *int
	Consensus string
	Current   *float64
}

// CompanyProfile is the subset of company metadata the pipeline consumes.
type CompanyProfile struct {
	Symbol   string
	Name     string
	Exchange string
	Sector   string
	Industry string
}

// SnapshotResult reports a capture run.
type SnapshotResult struct {
	Tracked int    `json:"tracked"`
	OK      int    `json:"ok"`
	Failed  int    `json:"failed"`
	Ticker  string `json:"ticker,omitempty"`
}

// EvaluationResult reports an evaluation run. Counts cover analyst rows only;
// consensus rows resolve silently.
type EvaluationResult struct {
	Resolved     int `json:"resolved"`
	Unresolvable int `json:"unresolvable"`
}

// RecomputeResult reports a score rebuild.
type RecomputeResult struct {
	ScoresWritten int `json:"scores_written"`
	SourceRows    int `json:"source_rows"`
}

// PipelineResult combines the three nightly stages in execution order.
type PipelineResult struct {
	Snapshot  SnapshotResult   `json:"snapshot"`
	Evaluate  EvaluationResult `json:"evaluate"`
	Recompute RecomputeResult  `json:"recompute"`
}

// NormalizeTicker upper-cases and trims a user- or provider-supplied symbol.
func NormalizeTicker(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
