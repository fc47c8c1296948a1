package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmorris/stockpilot/internal/contracts"
	"github.com/calebmorris/stockpilot/internal/prediction"
	"github.com/calebmorris/stockpilot/pkg/config"
	"github.com/calebmorris/stockpilot/pkg/logger"
)

// stubStore is a canned prediction.Store for handler tests.
type stubStore struct {
	snapshots []contracts.AnalystSnapshot
	consensus []contracts.ConsensusSnapshot
	scores    []contracts.AnalystScore
	err       error
}

func (s *stubStore) TrackedTickers(context.Context) ([]string, error) { return nil, s.err }

func (s *stubStore) GetAnalystSnapshot(context.Context, string, time.Time, string) (*contracts.AnalystSnapshot, error) {
	return nil, s.err
}

func (s *stubStore) UpsertAnalystSnapshot(context.Context, *contracts.AnalystSnapshot) error {
	return s.err
}

func (s *stubStore) GetConsensusSnapshot(context.Context, string, time.Time) (*contracts.ConsensusSnapshot, error) {
	return nil, s.err
}

func (s *stubStore) UpsertConsensusSnapshot(context.Context, *contracts.ConsensusSnapshot) error {
	return s.err
}

func (s *stubStore) ListPendingAnalystSnapshots(context.Context, time.Time) ([]contracts.AnalystSnapshot, error) {
	return nil, s.err
}

func (s *stubStore) ListPendingConsensusSnapshots(context.Context, time.Time) ([]contracts.ConsensusSnapshot, error) {
	return nil, s.err
}

func (s *stubStore) RecordAnalystOutcome(context.Context, int64, contracts.Outcome) error {
	return s.err
}

func (s *stubStore) RecordConsensusOutcome(context.Context, int64, float64, *bool) error {
	return s.err
}

func (s *stubStore) ListResolvedAnalystSnapshots(context.Context) ([]contracts.AnalystSnapshot, error) {
	return s.snapshots, s.err
}

func (s *stubStore) ListAnalystSnapshotsByTicker(context.Context, string) ([]contracts.AnalystSnapshot, error) {
	return s.snapshots, s.err
}

func (s *stubStore) ListAnalystSnapshotsByTickerFirm(context.Context, string, string) ([]contracts.AnalystSnapshot, error) {
	return s.snapshots, s.err
}

func (s *stubStore) ListConsensusSnapshotsByTicker(context.Context, string) ([]contracts.ConsensusSnapshot, error) {
	return s.consensus, s.err
}

func (s *stubStore) ReplaceScores(context.Context, []contracts.AnalystScore) error { return s.err }

func (s *stubStore) ListScores(context.Context) ([]contracts.AnalystScore, error) {
	return s.scores, s.err
}

func (s *stubStore) InTx(ctx context.Context, fn func(prediction.Store) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s)
}

func newHandler(store *stubStore) *PredictionHandler {
	log := logger.New(&config.Config{LogLevel: "error"})
	svc := prediction.NewService(store, nil, nil, prediction.DefaultScoreConfig(), zerolog.Nop())
	return NewPredictionHandler(svc, log)
}

func getWithVars(handler http.HandlerFunc, target string, vars map[string]string) *httptest.ResponseRecorder {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, target, nil), vars)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetScorecard(t *testing.T) {
	target := 185.0
	store := &stubStore{snapshots: []contracts.AnalystSnapshot{{
		Ticker: "AAPL", SnapshotDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Firm: "Morgan Stanley", Rating: "Buy", PriceTarget: &target, CurrentPrice: 150,
		TargetDate: time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC),
		Outcome:    contracts.Outcome{State: contracts.OutcomePending},
	}}}

	rec := getWithVars(newHandler(store).GetScorecard, "/api/predictions/scorecard/AAPL", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, "AAPL", body["symbol"])
	analysts := body["analysts"].([]interface{})
	require.Len(t, analysts, 1)
	entry := analysts[0].(map[string]interface{})
	assert.Equal(t, "Morgan Stanley", entry["firm"])
	assert.Equal(t, true, entry["insufficient"])
}

func TestGetScorecardMissingSymbol(t *testing.T) {
	rec := getWithVars(newHandler(&stubStore{}).GetScorecard, "/api/predictions/scorecard/", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "symbol is required", decodeBody(t, rec)["error"])
}

func TestGetScorecardStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	rec := getWithVars(newHandler(store).GetScorecard, "/api/predictions/scorecard/AAPL", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to build scorecard", decodeBody(t, rec)["error"])
}

func TestGetConsensusHistory(t *testing.T) {
	avg := 180.0
	store := &stubStore{consensus: []contracts.ConsensusSnapshot{{
		Ticker: "AAPL", SnapshotDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TargetAvg: &avg, CurrentPrice: 150,
		TargetDate: time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC),
	}}}

	rec := getWithVars(newHandler(store).GetConsensusHistory, "/api/predictions/consensus/AAPL", map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	history := body["history"].([]interface{})
	require.Len(t, history, 1)
	point := history[0].(map[string]interface{})
	assert.Equal(t, "2026-03-01", point["date"])
	assert.Equal(t, 180.0, point["avg_target"])
}

func TestGetLeaderboard(t *testing.T) {
	v := 0.6
	comp := 0.7
	store := &stubStore{scores: []contracts.AnalystScore{{
		Firm: "Alpha Research", TotalPredictions: 10,
		SuccessRate: &v, AvgAbsoluteError: &v, DirectionalAccuracy: &v, CompositeScore: &comp,
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/predictions/leaderboard", nil)
	rec := httptest.NewRecorder()
	newHandler(store).GetLeaderboard(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	analysts := body["analysts"].([]interface{})
	require.Len(t, analysts, 1)
	entry := analysts[0].(map[string]interface{})
	assert.Equal(t, "Alpha Research", entry["firm"])
	assert.InDelta(t, 70.0, entry["composite"].(float64), 0.001)
}

func TestGetFirmHistory(t *testing.T) {
	store := &stubStore{}
	rec := getWithVars(newHandler(store).GetFirmHistory, "/api/predictions/firm/AAPL/UBS",
		map[string]string{"symbol": "AAPL", "firm": "UBS"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "UBS", body["firm"])
}

func TestGetFirmHistoryMissingFirm(t *testing.T) {
	rec := getWithVars(newHandler(&stubStore{}).GetFirmHistory, "/api/predictions/firm/AAPL/",
		map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummary(t *testing.T) {
	rec := getWithVars(newHandler(&stubStore{}).GetSummary, "/api/predictions/summary/AAPL",
		map[string]string{"symbol": "AAPL"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, 0.0, body["active"])
	assert.Equal(t, "N/A", body["consensus_target"])
}

func TestTriggerSnapshotWithoutPipeline(t *testing.T) {
	// No snapshot service wired: the trigger still answers 200 with an error
	// status payload.
	req := httptest.NewRequest(http.MethodPost, "/api/predictions/snapshot", nil)
	rec := httptest.NewRecorder()
	newHandler(&stubStore{}).TriggerSnapshot(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", decodeBody(t, rec)["status"])
}
