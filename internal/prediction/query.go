package prediction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// historyLimit caps the prediction history returned to the UI.
const historyLimit = 50

// ScorecardEntry is one firm's live-computed accuracy for a single symbol.
// Rate and error fields are percentages.
type ScorecardEntry struct {
	Firm             string  `json:"firm"`
	TotalPredictions int     `json:"total_predictions"`
	Insufficient     bool    `json:"insufficient"`
	SuccessRate      float64 `json:"success_rate"`
	DirectionRate    float64 `json:"direction_rate"`
	AvgError         float64 `json:"avg_error"`
	Composite        float64 `json:"composite"`
	LatestRating     string  `json:"latest_rating"`
	LatestTarget     string  `json:"latest_target"`
}

// ConsensusPoint is one consensus snapshot prepared for charting.
type ConsensusPoint struct {
	Date       string   `json:"date"`
	AvgTarget  *float64 `json:"avg_target"`
	LowTarget  *float64 `json:"low_target"`
	HighTarget *float64 `json:"high_target"`
	Resolved   bool     `json:"resolved"`
	Accurate   *bool    `json:"accurate"`
}

// CallRef points at a firm's best or worst call.
type CallRef struct {
	Symbol string `json:"symbol"`
	Detail string `json:"detail"`
}

// LeaderboardEntry is one firm's ranked accuracy. Rate and error fields are
// percentages.
type LeaderboardEntry struct {
	Firm             string   `json:"firm"`
	TotalPredictions int      `json:"total_predictions"`
	TickersCovered   int      `json:"tickers_covered"`
	SuccessRate      float64  `json:"success_rate"`
	DirectionRate    float64  `json:"direction_rate"`
	AvgError         float64  `json:"avg_error"`
	Composite        float64  `json:"composite"`
	BestCall         *CallRef `json:"best_call"`
	WorstCall        *CallRef `json:"worst_call"`
}

// FirmHistoryEntry is one raw snapshot row for a firm/ticker pair.
type FirmHistoryEntry struct {
	Date          string   `json:"date"`
	Firm          string   `json:"firm"`
	Rating        string   `json:"rating"`
	Target        *float64 `json:"target"`
	ImpliedReturn *float64 `json:"implied_return"`
	Resolved      bool     `json:"resolved"`
}

// Summary counts a symbol's open and settled predictions.
type Summary struct {
	Active          int      `json:"active"`
	Resolved        int      `json:"resolved"`
	Accuracy        *float64 `json:"accuracy"`
	ConsensusTarget string   `json:"consensus_target"`
}

// HistoryEntry is one analyst snapshot prepared for the prediction timeline.
type HistoryEntry struct {
	SnapshotDate  string `json:"snapshot_date"`
	Date          string `json:"date"`
	Year          int    `json:"year"`
	Firm          string `json:"firm"`
	Source        string `json:"source"`
	Rating        string `json:"rating"`
	Action        string `json:"action"`
	Target        string `json:"target"`
	ImpliedReturn string `json:"implied_return"`
	Resolved      bool   `json:"resolved"`
	ResolveDate   string `json:"resolve_date"`
	ActualPrice   string `json:"actual_price"`
	ActualReturn  string `json:"actual_return"`
	Accurate      bool   `json:"accurate"`
	ErrorPct      string `json:"error_pct"`
	DaysLeft      int    `json:"days_left"`
}

// TriggerResult reports a manual snapshot trigger. Recoverable failures come
// back as Status "error" rather than an error return.
type TriggerResult struct {
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	SnapshotsCreated int    `json:"snapshots_created"`
	contracts.SnapshotResult
}

// Service is the read-side facade over snapshots and materialized scores,
// plus the manual capture trigger. Recoverable provider and database errors
// degrade to empty or partial results; they do not reach routing code.
type Service struct {
	store    Store
	market   contracts.MarketDataProvider
	snapshot *SnapshotService
	cfg      ScoreConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates the query facade. The snapshot service may be nil, in
// which case manual triggers report an error status.
func NewService(
	store Store,
	market contracts.MarketDataProvider,
	snapshot *SnapshotService,
	cfg ScoreConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:    store,
		market:   market,
		snapshot: snapshot,
		cfg:      cfg,
		log:      log.With().Str("component", "prediction.query").Logger(),
		now:      time.Now,
	}
}

// AnalystScorecard groups a symbol's snapshot history by firm and computes
// accuracy metrics live, gated by the minimum sample size. Firms with enough
// resolved history sort first, by composite descending.
func (s *Service) AnalystScorecard(ctx context.Context, symbol string) ([]ScorecardEntry, error) {
	rows, err := s.store.ListAnalystSnapshotsByTicker(ctx, contracts.NormalizeTicker(symbol))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(rows) == 0 {
		return []ScorecardEntry{}, nil
	}

	byFirm := make(map[string][]contracts.AnalystSnapshot)
	var firms []string
	for _, row := range rows {
		if _, seen := byFirm[row.Firm]; !seen {
			firms = append(firms, row.Firm)
		}
		byFirm[row.Firm] = append(byFirm[row.Firm], row)
	}

	entries := make([]ScorecardEntry, 0, len(firms))
	for _, firm := range firms {
		records := byFirm[firm]
		// Rows arrive newest first, so the head is the latest call.
		latest := records[0]

		var resolved []contracts.AnalystSnapshot
		for _, r := range records {
			if r.Outcome.State == contracts.OutcomeResolved {
				resolved = append(resolved, r)
			}
		}

		entry := ScorecardEntry{
			Firm:             firm,
			TotalPredictions: len(records),
			Insufficient:     len(resolved) < s.cfg.MinPredictions,
			LatestRating:     orNA(latest.Rating),
			LatestTarget:     fmtPrice(latest.PriceTarget),
		}
		if !entry.Insufficient {
			var sumAbs float64
			var successCount, correctCount int
			for _, r := range resolved {
				abs := absError(r)
				sumAbs += abs
				if abs < s.cfg.SuccessThreshold {
					successCount++
				}
				if r.Outcome.DirectionallyCorrect {
					correctCount++
				}
			}
			n := float64(len(resolved))
			successRate := float64(successCount) / n
			directionRate := float64(correctCount) / n
			avgError := sumAbs / n
			entry.SuccessRate = successRate * 100
			entry.DirectionRate = directionRate * 100
			entry.AvgError = avgError * 100
			entry.Composite = CompositeScore(successRate, directionRate, avgError) * 100
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Insufficient != entries[j].Insufficient {
			return !entries[i].Insufficient
		}
		return entries[i].Composite > entries[j].Composite
	})
	return entries, nil
}

// ConsensusHistory returns a symbol's consensus snapshots oldest first.
func (s *Service) ConsensusHistory(ctx context.Context, symbol string) ([]ConsensusPoint, error) {
	rows, err := s.store.ListConsensusSnapshotsByTicker(ctx, contracts.NormalizeTicker(symbol))
	if err != nil {
		return nil, fmt.Errorf("list consensus snapshots: %w", err)
	}

	points := make([]ConsensusPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, ConsensusPoint{
			Date:       row.SnapshotDate.Format("2006-01-02"),
			AvgTarget:  row.TargetAvg,
			LowTarget:  row.TargetLow,
			HighTarget: row.TargetHigh,
			Resolved:   row.Resolved(),
			Accurate:   row.WasCorrect,
		})
	}
	return points, nil
}

// TopAnalysts returns the firm leaderboard. Unfiltered calls read the global
// materialized rows directly. A symbol or sector filter restricts to
// per-ticker rows and aggregates them per firm with prediction-count-weighted
// means; that weighting intentionally differs from the simple per-row means
// the recompute stage materializes.
func (s *Service) TopAnalysts(ctx context.Context, symbol, sector string) ([]LeaderboardEntry, error) {
	scores, err := s.store.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}

	var tickerRows, globalRows []contracts.AnalystScore
	for _, sc := range scores {
		if sc.CompositeScore == nil {
			continue
		}
		if sc.Global() {
			globalRows = append(globalRows, sc)
		} else {
			tickerRows = append(tickerRows, sc)
		}
	}

	filtered := tickerRows
	if symbol != "" {
		upper := contracts.NormalizeTicker(symbol)
		var kept []contracts.AnalystScore
		for _, sc := range filtered {
			if sc.Ticker != nil && strings.ToUpper(*sc.Ticker) == upper {
				kept = append(kept, sc)
			}
		}
		filtered = kept
	}
	if sector != "" {
		filtered = s.filterBySector(ctx, filtered, sector)
	}

	if symbol != "" || sector != "" {
		return aggregateTickerScores(filtered), nil
	}

	tickersPerFirm := make(map[string]map[string]struct{})
	for _, sc := range tickerRows {
		if sc.Ticker == nil {
			continue
		}
		if tickersPerFirm[sc.Firm] == nil {
			tickersPerFirm[sc.Firm] = make(map[string]struct{})
		}
		tickersPerFirm[sc.Firm][*sc.Ticker] = struct{}{}
	}

	leaderboard := make([]LeaderboardEntry, 0, len(globalRows))
	for _, sc := range globalRows {
		if !sc.HasMetrics() {
			continue
		}
		leaderboard = append(leaderboard, LeaderboardEntry{
			Firm:             sc.Firm,
			TotalPredictions: sc.TotalPredictions,
			TickersCovered:   len(tickersPerFirm[sc.Firm]),
			SuccessRate:      *sc.SuccessRate * 100,
			DirectionRate:    *sc.DirectionalAccuracy * 100,
			AvgError:         *sc.AvgAbsoluteError * 100,
			Composite:        *sc.CompositeScore * 100,
			BestCall:         callRef(sc.BestCallTicker, "best call"),
			WorstCall:        callRef(sc.WorstCallTicker, "worst call"),
		})
	}
	return leaderboard, nil
}

// filterBySector keeps per-ticker rows whose ticker belongs to the requested
// sector. A failed profile lookup excludes that ticker rather than failing
// the query.
func (s *Service) filterBySector(ctx context.Context, rows []contracts.AnalystScore, sector string) []contracts.AnalystScore {
	if s.market == nil {
		return nil
	}
	target := strings.ToLower(strings.TrimSpace(sector))
	if target == "" {
		return rows
	}

	tickers := make(map[string]struct{})
	for _, sc := range rows {
		if sc.Ticker != nil {
			tickers[strings.ToUpper(*sc.Ticker)] = struct{}{}
		}
	}

	sectors := make(map[string]string, len(tickers))
	for ticker := range tickers {
		profile, err := s.market.CompanyProfile(ctx, ticker)
		if err != nil {
			s.log.Debug().Str("ticker", ticker).Err(err).Msg("sector lookup failed, ticker excluded")
			continue
		}
		if sec := strings.TrimSpace(profile.Sector); sec != "" {
			sectors[ticker] = strings.ToLower(sec)
		}
	}

	var kept []contracts.AnalystScore
	for _, sc := range rows {
		if sc.Ticker != nil && sectors[strings.ToUpper(*sc.Ticker)] == target {
			kept = append(kept, sc)
		}
	}
	return kept
}

// aggregateTickerScores rolls per-ticker score rows up to one leaderboard
// entry per firm using prediction-count-weighted means.
func aggregateTickerScores(rows []contracts.AnalystScore) []LeaderboardEntry {
	grouped := make(map[string][]contracts.AnalystScore)
	var firms []string
	for _, sc := range rows {
		if !sc.HasMetrics() {
			continue
		}
		if _, seen := grouped[sc.Firm]; !seen {
			firms = append(firms, sc.Firm)
		}
		grouped[sc.Firm] = append(grouped[sc.Firm], sc)
	}

	leaderboard := make([]LeaderboardEntry, 0, len(firms))
	for _, firm := range firms {
		firmRows := grouped[firm]

		var totalPredictions int
		for _, sc := range firmRows {
			totalPredictions += sc.TotalPredictions
		}
		if totalPredictions <= 0 {
			continue
		}

		weighted := func(pick func(contracts.AnalystScore) float64) float64 {
			var sum float64
			for _, sc := range firmRows {
				sum += pick(sc) * float64(sc.TotalPredictions)
			}
			return sum / float64(totalPredictions)
		}

		best, worst := firmRows[0], firmRows[0]
		tickersCovered := make(map[string]struct{})
		for _, sc := range firmRows {
			if *sc.CompositeScore > *best.CompositeScore {
				best = sc
			}
			if *sc.CompositeScore < *worst.CompositeScore {
				worst = sc
			}
			if sc.Ticker != nil {
				tickersCovered[*sc.Ticker] = struct{}{}
			}
		}

		leaderboard = append(leaderboard, LeaderboardEntry{
			Firm:             firm,
			TotalPredictions: totalPredictions,
			TickersCovered:   len(tickersCovered),
			SuccessRate:      weighted(func(sc contracts.AnalystScore) float64 { return *sc.SuccessRate }) * 100,
			DirectionRate:    weighted(func(sc contracts.AnalystScore) float64 { return *sc.DirectionalAccuracy }) * 100,
			AvgError:         weighted(func(sc contracts.AnalystScore) float64 { return *sc.AvgAbsoluteError }) * 100,
			Composite:        weighted(func(sc contracts.AnalystScore) float64 { return *sc.CompositeScore }) * 100,
			BestCall:         callRef(best.Ticker, "best call"),
			WorstCall:        callRef(worst.Ticker, "worst call"),
		})
	}

	sort.SliceStable(leaderboard, func(i, j int) bool {
		return leaderboard[i].Composite > leaderboard[j].Composite
	})
	return leaderboard
}

// FirmHistory returns one firm's raw snapshot rows for a symbol, newest first.
func (s *Service) FirmHistory(ctx context.Context, symbol, firm string) ([]FirmHistoryEntry, error) {
	rows, err := s.store.ListAnalystSnapshotsByTickerFirm(ctx, contracts.NormalizeTicker(symbol), firm)
	if err != nil {
		return nil, fmt.Errorf("list firm snapshots: %w", err)
	}

	entries := make([]FirmHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, FirmHistoryEntry{
			Date:          row.SnapshotDate.Format("2006-01-02"),
			Firm:          row.Firm,
			Rating:        row.Rating,
			Target:        row.PriceTarget,
			ImpliedReturn: row.ImpliedReturn,
			Resolved:      row.Outcome.State == contracts.OutcomeResolved,
		})
	}
	return entries, nil
}

// PredictionSummary counts a symbol's active and resolved predictions and
// reports the current consensus target, falling back to a live provider call
// when no snapshot history exists yet.
func (s *Service) PredictionSummary(ctx context.Context, symbol string) (Summary, error) {
	ticker := contracts.NormalizeTicker(symbol)
	today := dateOnly(s.now())

	rows, err := s.store.ListAnalystSnapshotsByTicker(ctx, ticker)
	if err != nil {
		return Summary{}, fmt.Errorf("list snapshots: %w", err)
	}
	consensusRows, err := s.store.ListConsensusSnapshotsByTicker(ctx, ticker)
	if err != nil {
		return Summary{}, fmt.Errorf("list consensus snapshots: %w", err)
	}

	var summary Summary
	for _, row := range rows {
		switch {
		case row.Outcome.State == contracts.OutcomeResolved:
			summary.Resolved++
		case row.Outcome.State == contracts.OutcomePending && !row.TargetDate.Before(today):
			summary.Active++
		}
	}

	var correct, settled int
	for _, row := range consensusRows {
		if row.WasCorrect == nil {
			continue
		}
		settled++
		if *row.WasCorrect {
			correct++
		}
	}
	if settled > 0 {
		accuracy := float64(correct) / float64(settled) * 100
		summary.Accuracy = &accuracy
	}

	// Rows are oldest first; scan from the tail for the latest target.
	var latestTarget *float64
	for i := len(consensusRows) - 1; i >= 0; i-- {
		if consensusRows[i].TargetAvg != nil {
			latestTarget = consensusRows[i].TargetAvg
			break
		}
	}
	if latestTarget == nil && s.market != nil {
		targets, err := s.market.ConsensusTargets(ctx, ticker)
		if err != nil {
			s.log.Debug().Str("ticker", ticker).Err(err).Msg("live consensus fallback unavailable")
		} else {
			latestTarget = targets.Avg
		}
	}
	if latestTarget != nil {
		summary.ConsensusTarget = fmt.Sprintf("$%.2f", *latestTarget)
	} else {
		summary.ConsensusTarget = "N/A"
	}
	return summary, nil
}

// PredictionHistory returns a symbol's most recent snapshots formatted for
// the prediction timeline.
func (s *Service) PredictionHistory(ctx context.Context, symbol string) ([]HistoryEntry, error) {
	rows, err := s.store.ListAnalystSnapshotsByTicker(ctx, contracts.NormalizeTicker(symbol))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(rows) > historyLimit {
		rows = rows[:historyLimit]
	}

	today := dateOnly(s.now())
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		resolved := row.Outcome.State == contracts.OutcomeResolved

		entry := HistoryEntry{
			SnapshotDate:  row.SnapshotDate.Format("2006-01-02"),
			Date:          row.SnapshotDate.Format("Jan 02"),
			Year:          row.SnapshotDate.Year(),
			Firm:          row.Firm,
			Source:        row.Source,
			Rating:        row.Rating,
			Action:        orDefault(row.Action, "Updated"),
			Target:        fmtPrice(row.PriceTarget),
			ImpliedReturn: fmtPct(row.ImpliedReturn),
			Resolved:      resolved,
			ResolveDate:   row.TargetDate.Format("2006-01-02"),
			ActualPrice:   "N/A",
			ActualReturn:  "N/A",
			ErrorPct:      "N/A",
		}
		if resolved {
			entry.ActualPrice = fmt.Sprintf("%.2f", row.Outcome.ActualPrice)
			actualReturn := row.Outcome.ActualReturn
			entry.ActualReturn = fmtPct(&actualReturn)
			abs := absError(row)
			entry.Accurate = abs < s.cfg.SuccessThreshold
			entry.ErrorPct = fmtPct(&abs)
		}
		if daysLeft := int(row.TargetDate.Sub(today).Hours() / 24); daysLeft > 0 {
			entry.DaysLeft = daysLeft
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RunSnapshot triggers a full capture run outside the scheduler.
func (s *Service) RunSnapshot(ctx context.Context) TriggerResult {
	if s.snapshot == nil {
		return TriggerResult{Status: "error", Message: "snapshot service unavailable"}
	}
	result, err := s.snapshot.RunDailySnapshot(ctx, time.Time{})
	if err != nil {
		s.log.Error().Err(err).Msg("manual snapshot failed")
		return TriggerResult{Status: "error", Message: err.Error()}
	}
	return TriggerResult{Status: "ok", SnapshotsCreated: result.OK, SnapshotResult: result}
}

// RunSnapshotForSymbol triggers a single-symbol capture outside the scheduler.
func (s *Service) RunSnapshotForSymbol(ctx context.Context, symbol string) TriggerResult {
	if s.snapshot == nil {
		return TriggerResult{Status: "error", Message: "snapshot service unavailable"}
	}
	result := s.snapshot.RunSnapshotForSymbol(ctx, symbol, time.Time{})
	return TriggerResult{Status: "ok", SnapshotsCreated: result.OK, SnapshotResult: result}
}

func callRef(ticker *string, detail string) *CallRef {
	if ticker == nil || *ticker == "" {
		return nil
	}
	return &CallRef{Symbol: *ticker, Detail: detail}
}

func fmtPrice(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func fmtPct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
