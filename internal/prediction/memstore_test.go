package prediction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calebmorris/stockpilot/internal/contracts"
)

// memStore is an in-memory Store for pipeline and query tests. InTx runs the
// callback against a copy of the state and discards it on error, mirroring
// the rollback behavior of the real repository.
type memStore struct {
	tickers    []string
	tickersErr error

	analyst   []contracts.AnalystSnapshot
	consensus []contracts.ConsensusSnapshot
	scores    []contracts.AnalystScore
	nextID    int64
}

func newMemStore(tickers ...string) *memStore {
	return &memStore{tickers: tickers, nextID: 1}
}

func (m *memStore) clone() *memStore {
	return &memStore{
		tickers:    append([]string(nil), m.tickers...),
		tickersErr: m.tickersErr,
		analyst:    append([]contracts.AnalystSnapshot(nil), m.analyst...),
		consensus:  append([]contracts.ConsensusSnapshot(nil), m.consensus...),
		scores:     append([]contracts.AnalystScore(nil), m.scores...),
		nextID:     m.nextID,
	}
}

func (m *memStore) InTx(_ context.Context, fn func(Store) error) error {
	tx := m.clone()
	if err := fn(tx); err != nil {
		return err
	}
	*m = *tx
	return nil
}

func (m *memStore) TrackedTickers(context.Context) ([]string, error) {
	if m.tickersErr != nil {
		return nil, m.tickersErr
	}
	return append([]string(nil), m.tickers...), nil
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}

func (m *memStore) GetAnalystSnapshot(_ context.Context, ticker string, date time.Time, firm string) (*contracts.AnalystSnapshot, error) {
	for i := range m.analyst {
		s := &m.analyst[i]
		if s.Ticker == ticker && sameDay(s.SnapshotDate, date) && s.Firm == firm {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertAnalystSnapshot(_ context.Context, snap *contracts.AnalystSnapshot) error {
	for i := range m.analyst {
		s := &m.analyst[i]
		if s.Ticker == snap.Ticker && sameDay(s.SnapshotDate, snap.SnapshotDate) && s.Firm == snap.Firm {
			id, created, outcome := s.ID, s.CreatedAt, s.Outcome
			*s = *snap
			s.ID, s.CreatedAt, s.Outcome = id, created, outcome
			return nil
		}
	}
	m.addAnalyst(*snap)
	return nil
}

// addAnalyst seeds a row directly, bypassing upsert. Zero outcome state
// defaults to pending the way the repository's column mapping does.
func (m *memStore) addAnalyst(snap contracts.AnalystSnapshot) int64 {
	snap.ID = m.nextID
	m.nextID++
	if snap.Outcome.State == "" {
		snap.Outcome.State = contracts.OutcomePending
	}
	m.analyst = append(m.analyst, snap)
	return snap.ID
}

func (m *memStore) GetConsensusSnapshot(_ context.Context, ticker string, date time.Time) (*contracts.ConsensusSnapshot, error) {
	for i := range m.consensus {
		s := &m.consensus[i]
		if s.Ticker == ticker && sameDay(s.SnapshotDate, date) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpsertConsensusSnapshot(_ context.Context, snap *contracts.ConsensusSnapshot) error {
	for i := range m.consensus {
		s := &m.consensus[i]
		if s.Ticker == snap.Ticker && sameDay(s.SnapshotDate, snap.SnapshotDate) {
			id, created := s.ID, s.CreatedAt
			actual, correct := s.ActualPrice, s.WasCorrect
			*s = *snap
			s.ID, s.CreatedAt = id, created
			s.ActualPrice, s.WasCorrect = actual, correct
			return nil
		}
	}
	m.addConsensus(*snap)
	return nil
}

func (m *memStore) addConsensus(snap contracts.ConsensusSnapshot) int64 {
	snap.ID = m.nextID
	m.nextID++
	m.consensus = append(m.consensus, snap)
	return snap.ID
}

func (m *memStore) ListPendingAnalystSnapshots(_ context.Context, reference time.Time) ([]contracts.AnalystSnapshot, error) {
	var out []contracts.AnalystSnapshot
	for _, s := range m.analyst {
		if s.Outcome.State == contracts.OutcomePending &&
			s.PriceTarget != nil && !s.IsBackfilled && !s.TargetDate.After(reference) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListPendingConsensusSnapshots(_ context.Context, reference time.Time) ([]contracts.ConsensusSnapshot, error) {
	var out []contracts.ConsensusSnapshot
	for _, s := range m.consensus {
		if s.ActualPrice == nil && !s.TargetDate.After(reference) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) RecordAnalystOutcome(_ context.Context, id int64, outcome contracts.Outcome) error {
	for i := range m.analyst {
		if m.analyst[i].ID == id {
			m.analyst[i].Outcome = outcome
			return nil
		}
	}
	return fmt.Errorf("analyst snapshot %d not found", id)
}

func (m *memStore) RecordConsensusOutcome(_ context.Context, id int64, actualPrice float64, wasCorrect *bool) error {
	for i := range m.consensus {
		if m.consensus[i].ID == id {
			m.consensus[i].ActualPrice = &actualPrice
			m.consensus[i].WasCorrect = wasCorrect
			return nil
		}
	}
	return fmt.Errorf("consensus snapshot %d not found", id)
}

func (m *memStore) ListResolvedAnalystSnapshots(context.Context) ([]contracts.AnalystSnapshot, error) {
	var out []contracts.AnalystSnapshot
	for _, s := range m.analyst {
		if s.Outcome.State == contracts.OutcomeResolved && s.PriceTarget != nil && !s.IsBackfilled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListAnalystSnapshotsByTicker(_ context.Context, ticker string) ([]contracts.AnalystSnapshot, error) {
	var out []contracts.AnalystSnapshot
	for _, s := range m.analyst {
		if strings.EqualFold(s.Ticker, ticker) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SnapshotDate.Equal(out[j].SnapshotDate) {
			return out[i].SnapshotDate.After(out[j].SnapshotDate)
		}
		return out[i].Firm < out[j].Firm
	})
	return out, nil
}

func (m *memStore) ListAnalystSnapshotsByTickerFirm(_ context.Context, ticker, firm string) ([]contracts.AnalystSnapshot, error) {
	var out []contracts.AnalystSnapshot
	for _, s := range m.analyst {
		if strings.EqualFold(s.Ticker, ticker) && strings.EqualFold(s.Firm, firm) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SnapshotDate.After(out[j].SnapshotDate)
	})
	return out, nil
}

func (m *memStore) ListConsensusSnapshotsByTicker(_ context.Context, ticker string) ([]contracts.ConsensusSnapshot, error) {
	var out []contracts.ConsensusSnapshot
	for _, s := range m.consensus {
		if strings.EqualFold(s.Ticker, ticker) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SnapshotDate.Before(out[j].SnapshotDate)
	})
	return out, nil
}

func (m *memStore) ReplaceScores(_ context.Context, scores []contracts.AnalystScore) error {
	replaced := make([]contracts.AnalystScore, 0, len(scores))
	for _, sc := range scores {
		sc.ID = m.nextID
		m.nextID++
		replaced = append(replaced, sc)
	}
	m.scores = replaced
	return nil
}

func (m *memStore) ListScores(context.Context) ([]contracts.AnalystScore, error) {
	out := append([]contracts.AnalystScore(nil), m.scores...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Firm != out[j].Firm {
			return out[i].Firm < out[j].Firm
		}
		ti, tj := out[i].Ticker, out[j].Ticker
		if (ti == nil) != (tj == nil) {
			return ti == nil
		}
		if ti == nil {
			return false
		}
		return *ti < *tj
	})
	return out, nil
}

// fakeRatings serves canned rating rows per ticker.
type fakeRatings struct {
	rows map[string][]contracts.RatingRow
	errs map[string]error
}

func (f *fakeRatings) AnalystRatings(_ context.Context, ticker string) ([]contracts.RatingRow, error) {
	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	return f.rows[ticker], nil
}

// fakeMarket serves canned prices, historical closes, consensus targets, and
// profiles. Historical closes are keyed by ticker and date; a missing key
// means no price exists for that date.
type fakeMarket struct {
	prices     map[string]float64
	priceErrs  map[string]error
	history    map[string]float64
	historyErr map[string]error
	targets    map[string]contracts.ConsensusTargets
	targetErrs map[string]error
	profiles   map[string]contracts.CompanyProfile
}

func histKey(ticker string, date time.Time) string {
	return ticker + "|" + date.UTC().Format("2006-01-02")
}

func (f *fakeMarket) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	if err := f.priceErrs[ticker]; err != nil {
		return 0, err
	}
	price, ok := f.prices[ticker]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ticker)
	}
	return price, nil
}

func (f *fakeMarket) PriceOnDate(_ context.Context, ticker string, date time.Time) (float64, bool, error) {
	key := histKey(ticker, date)
	if err := f.historyErr[key]; err != nil {
		return 0, false, err
	}
	price, ok := f.history[key]
	return price, ok, nil
}

func (f *fakeMarket) ConsensusTargets(_ context.Context, ticker string) (contracts.ConsensusTargets, error) {
	if err := f.targetErrs[ticker]; err != nil {
		return contracts.ConsensusTargets{}, err
	}
	return f.targets[ticker], nil
}

func (f *fakeMarket) CompanyProfile(_ context.Context, ticker string) (contracts.CompanyProfile, error) {
	profile, ok := f.profiles[ticker]
	if !ok {
		return contracts.CompanyProfile{}, fmt.Errorf("no profile for %s", ticker)
	}
	return profile, nil
}

func fptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
