package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so repository methods
// run unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
	db   querier
}

// NewRepository creates a repository bound to a connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// InTx runs fn against a repository bound to a single transaction. Nested
// calls reuse the enclosing transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TrackedTickers lists every ticker held in a position or watchlist item.
func (r *Repository) TrackedTickers(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT UPPER(ticker)
		FROM (
			SELECT ticker FROM positions
			UNION ALL
			SELECT ticker FROM watchlist_items
		) tracked
		WHERE ticker IS NOT NULL AND ticker <> ''
		ORDER BY 1`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

const analystSnapshotColumns = `
	id, ticker, snapshot_date, firm, analyst_name, action, rating,
	price_target, current_price, implied_return, target_date,
	actual_price_at_target, actual_return, prediction_error,
	is_directionally_correct, is_backfilled, is_unresolvable, source, created_at`

// GetAnalystSnapshot fetches one row by (ticker, snapshot_date, firm).
func (r *Repository) GetAnalystSnapshot(ctx context.Context, ticker string, date time.Time, firm string) (*contracts.AnalystSnapshot, error) {
	query := `
		SELECT ` + analystSnapshotColumns + `
		FROM analyst_snapshots
		WHERE ticker = $1 AND snapshot_date = $2 AND firm = $3`

	snap, err := scanAnalystSnapshot(r.db.QueryRow(ctx, query, ticker, date, firm))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpsertAnalystSnapshot inserts or refreshes capture-time fields. Outcome
// columns are never touched here; evaluation owns them.
func (r *Repository) UpsertAnalystSnapshot(ctx context.Context, snap *contracts.AnalystSnapshot) error {
	query := `
		INSERT INTO analyst_snapshots
			(ticker, snapshot_date, firm, analyst_name, action, rating,
			 price_target, current_price, implied_return, target_date, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (ticker, snapshot_date, firm) DO UPDATE SET
			analyst_name = EXCLUDED.analyst_name,
			action = EXCLUDED.action,
			rating = EXCLUDED.rating,
			price_target = EXCLUDED.price_target,
			current_price = EXCLUDED.current_price,
			implied_return = EXCLUDED.implied_return,
			target_date = EXCLUDED.target_date,
			source = EXCLUDED.source
		RETURNING id`

	return r.db.QueryRow(ctx, query,
		snap.Ticker, snap.SnapshotDate, snap.Firm,
		nullIfEmpty(snap.AnalystName), nullIfEmpty(snap.Action), snap.Rating,
		snap.PriceTarget, snap.CurrentPrice, snap.ImpliedReturn,
		snap.TargetDate, snap.Source,
	).Scan(&snap.ID)
}

const consensusSnapshotColumns = `
	id, ticker, snapshot_date, target_low, target_avg, target_median,
	target_high, analyst_count, consensus_rating, current_price,
	implied_upside, target_date, actual_price_at_target,
	consensus_was_correct, source, created_at`

// GetConsensusSnapshot fetches one row by (ticker, snapshot_date).
func (r *Repository) GetConsensusSnapshot(ctx context.Context, ticker string, date time.Time) (*contracts.ConsensusSnapshot, error) {
	query := `
		SELECT ` + consensusSnapshotColumns + `
		FROM consensus_snapshots
		WHERE ticker = $1 AND snapshot_date = $2`

	snap, err := scanConsensusSnapshot(r.db.QueryRow(ctx, query, ticker, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpsertConsensusSnapshot inserts or refreshes capture-time fields.
func (r *Repository) UpsertConsensusSnapshot(ctx context.Context, snap *contracts.ConsensusSnapshot) error {
	query := `
		INSERT INTO consensus_snapshots
			(ticker, snapshot_date, target_low, target_avg, target_median,
			 target_high, analyst_count, consensus_rating, current_price,
			 implied_upside, target_date, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (ticker, snapshot_date) DO UPDATE SET
			target_low = EXCLUDED.target_low,
			target_avg = EXCLUDED.target_avg,
			target_median = EXCLUDED.target_median,
			target_high = EXCLUDED.target_high,
			analyst_count = EXCLUDED.analyst_count,
			consensus_rating = EXCLUDED.consensus_rating,
			current_price = EXCLUDED.current_price,
			implied_upside = EXCLUDED.implied_upside,
			target_date = EXCLUDED.target_date,
			source = EXCLUDED.source
		RETURNING id`

	return r.db.QueryRow(ctx, query,
		snap.Ticker, snap.SnapshotDate, snap.TargetLow, snap.TargetAvg,
		snap.TargetMedian, snap.TargetHigh, snap.AnalystCount,
		nullIfEmpty(snap.ConsensusRating), snap.CurrentPrice,
		snap.ImpliedUpside, snap.TargetDate, snap.Source,
	).Scan(&snap.ID)
}

// ListPendingAnalystSnapshots returns analyst rows whose target date has
// arrived and whose outcome is still open.
func (r *Repository) ListPendingAnalystSnapshots(ctx context.Context, reference time.Time) ([]contracts.AnalystSnapshot, error) {
	query := `
		SELECT ` + analystSnapshotColumns + `
		FROM analyst_snapshots
		WHERE target_date <= $1
		  AND actual_price_at_target IS NULL
		  AND is_unresolvable = FALSE
		  AND is_backfilled = FALSE
		  AND price_target IS NOT NULL
		ORDER BY target_date, ticker, firm`

	return r.queryAnalystSnapshots(ctx, query, reference)
}

// ListPendingConsensusSnapshots returns consensus rows past their target date
// with no recorded price. There is no unresolvable cutoff for consensus rows,
// so permanently unpriceable tickers reappear on every run.
func (r *Repository) ListPendingConsensusSnapshots(ctx context.Context, reference time.Time) ([]contracts.ConsensusSnapshot, error) {
	query := `
		SELECT ` + consensusSnapshotColumns + `
		FROM consensus_snapshots
		WHERE target_date <= $1
		  AND actual_price_at_target IS NULL
		ORDER BY target_date, ticker`

	rows, err := r.db.Query(ctx, query, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []contracts.ConsensusSnapshot
	for rows.Next() {
		snap, err := scanConsensusSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// RecordAnalystOutcome writes the terminal outcome of one analyst snapshot.
func (r *Repository) RecordAnalystOutcome(ctx context.Context, id int64, outcome contracts.Outcome) error {
	if outcome.State == contracts.OutcomeUnresolvable {
		_, err := r.db.Exec(ctx,
			`UPDATE analyst_snapshots SET is_unresolvable = TRUE WHERE id = $1`, id)
		return err
	}

	query := `
		UPDATE analyst_snapshots SET
			actual_price_at_target = $2,
			actual_return = $3,
			prediction_error = $4,
			is_directionally_correct = $5
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id,
		outcome.ActualPrice, outcome.ActualReturn,
		outcome.PredictionError, outcome.DirectionallyCorrect)
	return err
}

// RecordConsensusOutcome writes the realized price and optional verdict for
// one consensus snapshot.
func (r *Repository) RecordConsensusOutcome(ctx context.Context, id int64, actualPrice float64, wasCorrect *bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE consensus_snapshots SET
			actual_price_at_target = $2,
			consensus_was_correct = $3
		WHERE id = $1`, id, actualPrice, wasCorrect)
	return err
}

// ListResolvedAnalystSnapshots returns all rows eligible for scoring.
func (r *Repository) ListResolvedAnalystSnapshots(ctx context.Context) ([]contracts.AnalystSnapshot, error) {
	query := `
		SELECT ` + analystSnapshotColumns + `
		FROM analyst_snapshots
		WHERE actual_price_at_target IS NOT NULL
		  AND prediction_error IS NOT NULL
		  AND price_target IS NOT NULL
		  AND is_unresolvable = FALSE
		  AND is_backfilled = FALSE
		ORDER BY firm, ticker, snapshot_date`

	return r.queryAnalystSnapshots(ctx, query)
}

// ListAnalystSnapshotsByTicker returns a ticker's history, newest first.
func (r *Repository) ListAnalystSnapshotsByTicker(ctx context.Context, ticker string) ([]contracts.AnalystSnapshot, error) {
	query := `
		SELECT ` + analystSnapshotColumns + `
		FROM analyst_snapshots
		WHERE UPPER(ticker) = UPPER($1)
		ORDER BY snapshot_date DESC, firm`

	return r.queryAnalystSnapshots(ctx, query, ticker)
}

// ListAnalystSnapshotsByTickerFirm returns one firm's history for a ticker.
func (r *Repository) ListAnalystSnapshotsByTickerFirm(ctx context.Context, ticker, firm string) ([]contracts.AnalystSnapshot, error) {
	query := `
		SELECT ` + analystSnapshotColumns + `
		FROM analyst_snapshots
		WHERE UPPER(ticker) = UPPER($1) AND LOWER(firm) = LOWER($2)
		ORDER BY snapshot_date DESC`

	return r.queryAnalystSnapshots(ctx, query, ticker, firm)
}

// ListConsensusSnapshotsByTicker returns consensus history in chronological
// order, oldest first, for charting.
func (r *Repository) ListConsensusSnapshotsByTicker(ctx context.Context, ticker string) ([]contracts.ConsensusSnapshot, error) {
	query := `
		SELECT ` + consensusSnapshotColumns + `
		FROM consensus_snapshots
		WHERE UPPER(ticker) = UPPER($1)
		ORDER BY snapshot_date ASC`

	rows, err := r.db.Query(ctx, query, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []contracts.ConsensusSnapshot
	for rows.Next() {
		snap, err := scanConsensusSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// ReplaceScores swaps the score table contents inside one transaction so a
// concurrent reader sees either the old set or the new set, never a mix.
func (r *Repository) ReplaceScores(ctx context.Context, scores []contracts.AnalystScore) error {
	return r.InTx(ctx, func(s Store) error {
		tx := s.(*Repository).db

		if _, err := tx.Exec(ctx, `DELETE FROM analyst_scores`); err != nil {
			return fmt.Errorf("clear scores: %w", err)
		}
		if len(scores) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		query := `
			INSERT INTO analyst_scores
				(firm, ticker, total_predictions, success_rate, avg_return_error,
				 avg_absolute_error, directional_accuracy, composite_score,
				 best_call_ticker, worst_call_ticker, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

		for _, sc := range scores {
			batch.Queue(query,
				sc.Firm, sc.Ticker, sc.TotalPredictions, sc.SuccessRate,
				sc.AvgReturnError, sc.AvgAbsoluteError, sc.DirectionalAccuracy,
				sc.CompositeScore, sc.BestCallTicker, sc.WorstCallTicker,
				sc.LastUpdated)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range scores {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert score: %w", err)
			}
		}
		return nil
	})
}

// ListScores returns every materialized score row.
func (r *Repository) ListScores(ctx context.Context) ([]contracts.AnalystScore, error) {
	query := `
		SELECT id, firm, ticker, total_predictions, success_rate,
			   avg_return_error, avg_absolute_error, directional_accuracy,
			   composite_score, best_call_ticker, worst_call_ticker, last_updated
		FROM analyst_scores
		ORDER BY firm, ticker NULLS FIRST`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []contracts.AnalystScore
	for rows.Next() {
		var sc contracts.AnalystScore
		if err := rows.Scan(
			&sc.ID, &sc.Firm, &sc.Ticker, &sc.TotalPredictions, &sc.SuccessRate,
			&sc.AvgReturnError, &sc.AvgAbsoluteError, &sc.DirectionalAccuracy,
			&sc.CompositeScore, &sc.BestCallTicker, &sc.WorstCallTicker,
			&sc.LastUpdated,
		); err != nil {
			return nil, err
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func (r *Repository) queryAnalystSnapshots(ctx context.Context, query string, args ...any) ([]contracts.AnalystSnapshot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []contracts.AnalystSnapshot
	for rows.Next() {
		snap, err := scanAnalystSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func scanAnalystSnapshot(row pgx.Row) (*contracts.AnalystSnapshot, error) {
	var (
		snap                 contracts.AnalystSnapshot
		analystName, action  *string
		actualPrice          *float64
		actualReturn         *float64
		predictionError      *float64
		directionallyCorrect *bool
		unresolvable         bool
	)

	if err := row.Scan(
		&snap.ID, &snap.Ticker, &snap.SnapshotDate, &snap.Firm,
		&analystName, &action, &snap.Rating,
		&snap.PriceTarget, &snap.CurrentPrice, &snap.ImpliedReturn,
		&snap.TargetDate, &actualPrice, &actualReturn, &predictionError,
		&directionallyCorrect, &snap.IsBackfilled, &unresolvable,
		&snap.Source, &snap.CreatedAt,
	); err != nil {
		return nil, err
	}

	if analystName != nil {
		snap.AnalystName = *analystName
	}
	if action != nil {
		snap.Action = *action
	}
	snap.Outcome = outcomeFromColumns(unresolvable, actualPrice, actualReturn, predictionError, directionallyCorrect)
	return &snap, nil
}

func scanConsensusSnapshot(row pgx.Row) (*contracts.ConsensusSnapshot, error) {
	var (
		snap   contracts.ConsensusSnapshot
		rating *string
	)

	if err := row.Scan(
		&snap.ID, &snap.Ticker, &snap.SnapshotDate, &snap.TargetLow,
		&snap.TargetAvg, &snap.TargetMedian, &snap.TargetHigh,
		&snap.AnalystCount, &rating, &snap.CurrentPrice, &snap.ImpliedUpside,
		&snap.TargetDate, &snap.ActualPrice, &snap.WasCorrect,
		&snap.Source, &snap.CreatedAt,
	); err != nil {
		return nil, err
	}

	if rating != nil {
		snap.ConsensusRating = *rating
	}
	return &snap, nil
}

// outcomeFromColumns folds the nullable outcome columns into the tagged
// Outcome variant. The unresolvable flag wins over stray resolved fields.
func outcomeFromColumns(unresolvable bool, actualPrice, actualReturn, predictionError *float64, correct *bool) contracts.Outcome {
	if unresolvable {
		return contracts.Outcome{State: contracts.OutcomeUnresolvable}
	}
	if actualPrice == nil {
		return contracts.Outcome{State: contracts.OutcomePending}
	}

	outcome := contracts.Outcome{
		State:       contracts.OutcomeResolved,
		ActualPrice: *actualPrice,
	}
	if actualReturn != nil {
		outcome.ActualReturn = *actualReturn
	}
	if predictionError != nil {
		outcome.PredictionError = *predictionError
	}
	if correct != nil {
		outcome.DirectionallyCorrect = *correct
	}
	return outcome
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
