package prediction

import (
	"context"
	"time"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// Store is the persistence boundary for the prediction pipeline. The snapshot
// service and query facade depend on this interface rather than on a concrete
// database, which keeps the pipeline testable against an in-memory store.
//
// Implementations must make each upsert atomic on the row's natural key and
// must make ReplaceScores swap the whole score table in one transaction so
// readers never observe a half-rebuilt state.
type Store interface {
	// TrackedTickers returns every ticker appearing in a portfolio position
	// or watchlist item, upper-cased, deduplicated, and sorted.
	TrackedTickers(ctx context.Context) ([]string, error)

	// GetAnalystSnapshot fetches one row by natural key. Returns nil when the
	// row does not exist.
	GetAnalystSnapshot(ctx context.Context, ticker string, date time.Time, firm string) (*contracts.AnalystSnapshot, error)
	// UpsertAnalystSnapshot inserts or updates by (ticker, snapshot_date, firm).
	UpsertAnalystSnapshot(ctx context.Context, snap *contracts.AnalystSnapshot) error

	// GetConsensusSnapshot fetches one row by natural key, nil when absent.
	GetConsensusSnapshot(ctx context.Context, ticker string, date time.Time) (*contracts.ConsensusSnapshot, error)
	// UpsertConsensusSnapshot inserts or updates by (ticker, snapshot_date).
	UpsertConsensusSnapshot(ctx context.Context, snap *contracts.ConsensusSnapshot) error

	// ListPendingAnalystSnapshots returns rows eligible for evaluation:
	// target_date <= reference, outcome still pending, a price target present,
	// and not backfilled.
	ListPendingAnalystSnapshots(ctx context.Context, reference time.Time) ([]contracts.AnalystSnapshot, error)
	// ListPendingConsensusSnapshots returns consensus rows past their target
	// date with no recorded actual price.
	ListPendingConsensusSnapshots(ctx context.Context, reference time.Time) ([]contracts.ConsensusSnapshot, error)

	// RecordAnalystOutcome writes a terminal outcome (resolved or
	// unresolvable) for one analyst snapshot.
	RecordAnalystOutcome(ctx context.Context, id int64, outcome contracts.Outcome) error
	// RecordConsensusOutcome writes the realized price and, when computable,
	// the directional-correctness verdict for one consensus snapshot.
	RecordConsensusOutcome(ctx context.Context, id int64, actualPrice float64, wasCorrect *bool) error

	// ListResolvedAnalystSnapshots returns every row eligible for scoring:
	// resolved, price target present, not unresolvable, not backfilled.
	ListResolvedAnalystSnapshots(ctx context.Context) ([]contracts.AnalystSnapshot, error)

	// ListAnalystSnapshotsByTicker returns a ticker's full snapshot history,
	// newest first.
	ListAnalystSnapshotsByTicker(ctx context.Context, ticker string) ([]contracts.AnalystSnapshot, error)
	// ListAnalystSnapshotsByTickerFirm returns one firm's history for a
	// ticker, newest first. Firm matching is case-insensitive.
	ListAnalystSnapshotsByTickerFirm(ctx context.Context, ticker, firm string) ([]contracts.AnalystSnapshot, error)
	// ListConsensusSnapshotsByTicker returns a ticker's consensus history in
	// chronological order.
	ListConsensusSnapshotsByTicker(ctx context.Context, ticker string) ([]contracts.ConsensusSnapshot, error)

	// ReplaceScores atomically clears the score table and writes the new set.
	ReplaceScores(ctx context.Context, scores []contracts.AnalystScore) error
	// ListScores returns all materialized score rows, global and per-ticker.
	ListScores(ctx context.Context) ([]contracts.AnalystScore, error)

	// InTx runs fn against a store bound to a single transaction. The
	// transaction rolls back when fn returns an error. Capture uses this for
	// per-ticker isolation.
	InTx(ctx context.Context, fn func(Store) error) error
}
