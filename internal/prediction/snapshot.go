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

// SnapshotService orchestrates the three pipeline stages: capture analyst and
// consensus snapshots for tracked tickers, resolve predictions whose horizon
// has elapsed, and rebuild the materialized accuracy scores.
type SnapshotService struct {
	store   Store
	ratings contracts.RatingsProvider
	market  contracts.MarketDataProvider
	cfg     ScoreConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewSnapshotService creates the pipeline orchestrator.
func NewSnapshotService(
	store Store,
	ratings contracts.RatingsProvider,
	market contracts.MarketDataProvider,
	cfg ScoreConfig,
	log zerolog.Logger,
) *SnapshotService {
	return &SnapshotService{
		store:   store,
		ratings: ratings,
		market:  market,
		cfg:     cfg,
		log:     log.With().Str("component", "prediction.snapshot").Logger(),
		now:     time.Now,
	}
}

// RunDailySnapshot captures analyst ratings and consensus targets for every
// tracked ticker. A failing ticker is rolled back, counted, and skipped; it
// never aborts the run.
func (s *SnapshotService) RunDailySnapshot(ctx context.Context, runDate time.Time) (contracts.SnapshotResult, error) {
	snapshotDate := s.snapshotDate(runDate)

	tickers, err := s.store.TrackedTickers(ctx)
	if err != nil {
		return contracts.SnapshotResult{}, fmt.Errorf("list tracked tickers: %w", err)
	}

	result := contracts.SnapshotResult{Tracked: len(tickers)}
	for _, ticker := range tickers {
		if err := s.captureTicker(ctx, ticker, snapshotDate); err != nil {
			result.Failed++
			s.log.Warn().
				Str("ticker", ticker).
				Err(err).
				Msg("snapshot failed")
			continue
		}
		result.OK++
	}

	s.log.Info().
		Int("tracked", result.Tracked).
		Int("ok", result.OK).
		Int("failed", result.Failed).
		Str("date", snapshotDate.Format("2006-01-02")).
		Msg("daily snapshot completed")

	return result, nil
}

// RunSnapshotForSymbol captures a single ticker, for the manual trigger API.
func (s *SnapshotService) RunSnapshotForSymbol(ctx context.Context, symbol string, runDate time.Time) contracts.SnapshotResult {
	snapshotDate := s.snapshotDate(runDate)

	ticker := contracts.NormalizeTicker(symbol)
	if ticker == "" {
		return contracts.SnapshotResult{Tracked: 0, Failed: 1}
	}

	if err := s.captureTicker(ctx, ticker, snapshotDate); err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("snapshot failed")
		return contracts.SnapshotResult{Tracked: 1, Failed: 1, Ticker: ticker}
	}
	return contracts.SnapshotResult{Tracked: 1, OK: 1, Ticker: ticker}
}

// captureTicker snapshots one ticker inside its own transaction so a partial
// failure leaves no half-written rows behind.
func (s *SnapshotService) captureTicker(ctx context.Context, ticker string, snapshotDate time.Time) error {
	return s.store.InTx(ctx, func(tx Store) error {
		if err := s.captureAnalystRatings(ctx, tx, ticker, snapshotDate); err != nil {
			return fmt.Errorf("analyst ratings: %w", err)
		}
		if err := s.captureConsensus(ctx, tx, ticker, snapshotDate); err != nil {
			return fmt.Errorf("consensus: %w", err)
		}
		return nil
	})
}

func (s *SnapshotService) captureAnalystRatings(ctx context.Context, tx Store, ticker string, snapshotDate time.Time) error {
	rows, err := s.ratings.AnalystRatings(ctx, ticker)
	if err != nil {
		return err
	}

	currentPrice, err := s.market.CurrentPrice(ctx, ticker)
	if err != nil {
		return err
	}

	targetDate := snapshotDate.AddDate(0, 0, s.cfg.HorizonDays)
	for _, row := range dedupeByFirm(rows) {
		snap := &contracts.AnalystSnapshot{
			Ticker:       ticker,
			SnapshotDate: snapshotDate,
			Firm:         row.Firm,
			AnalystName:  row.AnalystName,
			Action:       row.Action,
			Rating:       row.Rating,
			PriceTarget:  row.PriceTarget,
			CurrentPrice: currentPrice,
			TargetDate:   targetDate,
			Source:       "finviz",
		}
		if snap.Rating == "" {
			snap.Rating = "N/A"
		}
		if row.PriceTarget != nil {
			implied := PredictedReturn(row.PriceTarget, currentPrice)
			snap.ImpliedReturn = &implied
		}
		if err := tx.UpsertAnalystSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotService) captureConsensus(ctx context.Context, tx Store, ticker string, snapshotDate time.Time) error {
	targets, err := s.market.ConsensusTargets(ctx, ticker)
	if err != nil {
		return err
	}

	var currentPrice float64
	if targets.Current != nil {
		currentPrice = *targets.Current
	} else {
		currentPrice, err = s.market.CurrentPrice(ctx, ticker)
		if err != nil {
			return err
		}
	}

	snap := &contracts.ConsensusSnapshot{
		Ticker:          ticker,
		SnapshotDate:    snapshotDate,
		TargetLow:       targets.Low,
		TargetAvg:       targets.Avg,
		TargetMedian:    targets.Median,
		TargetHigh:      targets.High,
		AnalystCount:    targets.Count,
		ConsensusRating: targets.Consensus,
		CurrentPrice:    currentPrice,
		TargetDate:      snapshotDate.AddDate(0, 0, s.cfg.HorizonDays),
		Source:          "yahoo",
	}
	if targets.Avg != nil {
		upside := PredictedReturn(targets.Avg, currentPrice)
		snap.ImpliedUpside = &upside
	}
	return tx.UpsertConsensusSnapshot(ctx, snap)
}

// dedupeByFirm collapses raw rating rows that share a firm name
// (case-insensitive). When duplicates appear, a row carrying a usable price
// target wins over one without.
func dedupeByFirm(rows []contracts.RatingRow) []contracts.RatingRow {
	byFirm := make(map[string]contracts.RatingRow)
	var order []string

	for _, row := range rows {
		firm := strings.TrimSpace(row.Firm)
		if firm == "" {
			firm = strings.TrimSpace(row.AnalystName)
		}
		if firm == "" {
			continue
		}
		row.Firm = firm

		key := strings.ToLower(firm)
		existing, seen := byFirm[key]
		if !seen {
			byFirm[key] = row
			order = append(order, key)
			continue
		}
		if existing.PriceTarget == nil && row.PriceTarget != nil {
			byFirm[key] = row
		}
	}

	deduped := make([]contracts.RatingRow, 0, len(order))
	for _, key := range order {
		deduped = append(deduped, byFirm[key])
	}
	return deduped
}

// EvaluateExpiredPredictions resolves every snapshot whose target date is at
// or before the reference date. Analyst rows with no obtainable price are
// marked unresolvable, a terminal state; consensus rows without a price are
// left pending and retried on the next run.
func (s *SnapshotService) EvaluateExpiredPredictions(ctx context.Context, reference time.Time) (contracts.EvaluationResult, error) {
	reference = s.snapshotDate(reference)

	var result contracts.EvaluationResult

	pending, err := s.store.ListPendingAnalystSnapshots(ctx, reference)
	if err != nil {
		return result, fmt.Errorf("list pending analyst snapshots: %w", err)
	}

	for _, snap := range pending {
		actual, ok, err := s.market.PriceOnDate(ctx, snap.Ticker, snap.TargetDate)
		if err != nil {
			// Transient provider failure: leave the row pending for the next run.
			s.log.Warn().
				Str("ticker", snap.Ticker).
				Str("firm", snap.Firm).
				Err(err).
				Msg("price lookup failed, snapshot left pending")
			continue
		}
		if !ok {
			if err := s.store.RecordAnalystOutcome(ctx, snap.ID, contracts.Outcome{State: contracts.OutcomeUnresolvable}); err != nil {
				return result, fmt.Errorf("mark unresolvable: %w", err)
			}
			result.Unresolvable++
			continue
		}

		predicted := PredictedReturn(snap.PriceTarget, snap.CurrentPrice)
		actualReturn := ActualReturn(actual, snap.CurrentPrice)
		outcome := contracts.Outcome{
			State:                contracts.OutcomeResolved,
			ActualPrice:          actual,
			ActualReturn:         actualReturn,
			PredictionError:      predicted - actualReturn,
			DirectionallyCorrect: DirectionallyCorrect(predicted, actualReturn),
		}
		if err := s.store.RecordAnalystOutcome(ctx, snap.ID, outcome); err != nil {
			return result, fmt.Errorf("record outcome: %w", err)
		}
		result.Resolved++
	}

	pendingConsensus, err := s.store.ListPendingConsensusSnapshots(ctx, reference)
	if err != nil {
		return result, fmt.Errorf("list pending consensus snapshots: %w", err)
	}

	for _, snap := range pendingConsensus {
		actual, ok, err := s.market.PriceOnDate(ctx, snap.Ticker, snap.TargetDate)
		if err != nil || !ok {
			continue
		}
		var wasCorrect *bool
		if snap.TargetAvg != nil {
			predicted := PredictedReturn(snap.TargetAvg, snap.CurrentPrice)
			actualReturn := ActualReturn(actual, snap.CurrentPrice)
			correct := DirectionallyCorrect(predicted, actualReturn)
			wasCorrect = &correct
		}
		if err := s.store.RecordConsensusOutcome(ctx, snap.ID, actual, wasCorrect); err != nil {
			return result, fmt.Errorf("record consensus outcome: %w", err)
		}
	}

	s.log.Info().
		Int("resolved", result.Resolved).
		Int("unresolvable", result.Unresolvable).
		Msg("evaluation completed")

	return result, nil
}

// RecomputeScores rebuilds the analyst score table from all resolved history.
// The previous score set is fully replaced, not merged.
func (s *SnapshotService) RecomputeScores(ctx context.Context) (contracts.RecomputeResult, error) {
	rows, err := s.store.ListResolvedAnalystSnapshots(ctx)
	if err != nil {
		return contracts.RecomputeResult{}, fmt.Errorf("list resolved snapshots: %w", err)
	}

	byFirm := make(map[string][]contracts.AnalystSnapshot)
	byFirmTicker := make(map[[2]string][]contracts.AnalystSnapshot)
	for _, row := range rows {
		byFirm[row.Firm] = append(byFirm[row.Firm], row)
		key := [2]string{row.Firm, row.Ticker}
		byFirmTicker[key] = append(byFirmTicker[key], row)
	}

	now := s.now().UTC()
	scores := make([]contracts.AnalystScore, 0, len(byFirm)+len(byFirmTicker))
	for firm, records := range byFirm {
		scores = append(scores, s.buildScore(firm, nil, records, now))
	}
	for key, records := range byFirmTicker {
		ticker := key[1]
		scores = append(scores, s.buildScore(key[0], &ticker, records, now))
	}

	if err := s.store.ReplaceScores(ctx, scores); err != nil {
		return contracts.RecomputeResult{}, fmt.Errorf("replace scores: %w", err)
	}

	result := contracts.RecomputeResult{ScoresWritten: len(scores), SourceRows: len(rows)}
	s.log.Info().
		Int("scores_written", result.ScoresWritten).
		Int("source_rows", result.SourceRows).
		Msg("score recompute completed")

	return result, nil
}

// RunNightlyPipeline runs capture, evaluation, and recompute in order. This
// is the unit the scheduler invokes.
func (s *SnapshotService) RunNightlyPipeline(ctx context.Context, runDate time.Time) (contracts.PipelineResult, error) {
	var result contracts.PipelineResult
	var err error

	if result.Snapshot, err = s.RunDailySnapshot(ctx, runDate); err != nil {
		return result, err
	}
	if result.Evaluate, err = s.EvaluateExpiredPredictions(ctx, runDate); err != nil {
		return result, err
	}
	if result.Recompute, err = s.RecomputeScores(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// buildScore aggregates one group. Groups below the minimum sample size get a
// row with the prediction count but null metrics, so "insufficient data" is
// distinguishable from "no row".
func (s *SnapshotService) buildScore(firm string, ticker *string, rows []contracts.AnalystSnapshot, now time.Time) contracts.AnalystScore {
	score := contracts.AnalystScore{
		Firm:             firm,
		Ticker:           ticker,
		TotalPredictions: len(rows),
		LastUpdated:      now,
	}
	if len(rows) < s.cfg.MinPredictions {
		return score
	}

	var sumAbs, sumSigned float64
	var successCount, correctCount int
	for _, row := range rows {
		err := row.Outcome.PredictionError
		sumSigned += err
		abs := err
		if abs < 0 {
			abs = -abs
		}
		sumAbs += abs
		if abs < s.cfg.SuccessThreshold {
			successCount++
		}
		if row.Outcome.DirectionallyCorrect {
			correctCount++
		}
	}

	total := float64(len(rows))
	successRate := float64(successCount) / total
	avgAbs := sumAbs / total
	avgSigned := sumSigned / total
	directional := float64(correctCount) / total
	composite := CompositeScore(successRate, directional, avgAbs)

	sorted := make([]contracts.AnalystSnapshot, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return absError(sorted[i]) < absError(sorted[j])
	})
	best := sorted[0].Ticker
	worst := sorted[len(sorted)-1].Ticker

	score.SuccessRate = &successRate
	score.AvgReturnError = &avgSigned
	score.AvgAbsoluteError = &avgAbs
	score.DirectionalAccuracy = &directional
	score.CompositeScore = &composite
	score.BestCallTicker = &best
	score.WorstCallTicker = &worst
	return score
}

func absError(snap contracts.AnalystSnapshot) float64 {
	err := snap.Outcome.PredictionError
	if err < 0 {
		return -err
	}
	return err
}

// snapshotDate normalizes a run date to midnight UTC, defaulting to today.
func (s *SnapshotService) snapshotDate(runDate time.Time) time.Time {
	if runDate.IsZero() {
		runDate = s.now()
	}
	return time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
}
