package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/events"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/hub"
	"github.com/nipunasudha/monopoly-polymarket-agent-sub001/internal/postgres"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	forecasts []*postgres.Forecast
	trades    []*postgres.Trade
	snapshots []*postgres.PortfolioSnapshot

	marketTrades []*postgres.Trade // returned by TradesForMarket
	recentTrades []*postgres.Trade // returned by RecentTrades

	saveForecastErr error
	marketErr       error
}

func (r *fakeRepo) SaveForecast(_ context.Context, f *postgres.Forecast) error {
	if r.saveForecastErr != nil {
		return r.saveForecastErr
	}
	r.forecasts = append(r.forecasts, f)
	return nil
}
func (r *fakeRepo) SaveTrade(_ context.Context, tr *postgres.Trade) error {
	r.trades = append(r.trades, tr)
	return nil
}
func (r *fakeRepo) SaveSnapshot(_ context.Context, s *postgres.PortfolioSnapshot) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}
func (r *fakeRepo) RecentForecasts(_ context.Context, _ int) ([]*postgres.Forecast, error) {
	return r.forecasts, nil
}
func (r *fakeRepo) RecentTrades(_ context.Context, _ int) ([]*postgres.Trade, error) {
	return r.recentTrades, nil
}
func (r *fakeRepo) TradesForMarket(_ context.Context, _ string, _ int) ([]*postgres.Trade, error) {
	if r.marketErr != nil {
		return nil, r.marketErr
	}
	return r.marketTrades, nil
}

var _ postgres.Repository = (*fakeRepo)(nil)

type unknownPayload struct{}

func (unknownPayload) Kind() string { return "mystery" }

// ── helpers ───────────────────────────────────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAgent(repo postgres.Repository, opts ...Option) *Agent {
	return New(repo, nil, testLogger(), opts...)
}

func execute(t *testing.T, a *Agent, p hub.Payload) (any, error) {
	t.Helper()
	return a.Execute(context.Background(), &hub.Task{ID: "task-1", Payload: p})
}

func executedTrade(size, price float64) *postgres.Trade {
	return &postgres.Trade{Side: "BUY", Size: size, Price: price, Status: "executed"}
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestExecute_UnknownPayloadKind(t *testing.T) {
	a := newTestAgent(nil)
	_, err := execute(t, a, unknownPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestResearch_GeneratesForecastWithinBounds(t *testing.T) {
	repo := &fakeRepo{}
	a := newTestAgent(repo)

	v, err := execute(t, a, hub.ResearchPayload{
		MarketID: "m1", Question: "Will the election be close?", Outcome: "Yes",
	})
	require.NoError(t, err)

	f, ok := v.(*postgres.Forecast)
	require.True(t, ok)
	assert.Equal(t, "m1", f.MarketID)
	assert.Greater(t, f.Probability, 0.0)
	assert.Less(t, f.Probability, 1.0)
	assert.GreaterOrEqual(t, f.Confidence, 0.3)
	assert.LessOrEqual(t, f.Confidence, 0.95)
	assert.NotEmpty(t, f.Reasoning)

	require.Len(t, repo.forecasts, 1, "forecast must be persisted")
	assert.Same(t, f, repo.forecasts[0])
}

func TestResearch_MissingQuestion(t *testing.T) {
	a := newTestAgent(nil)
	_, err := execute(t, a, hub.ResearchPayload{MarketID: "m1"})
	require.Error(t, err)
}

func TestResearch_BroadcastsForecastEvent(t *testing.T) {
	b := events.NewBroadcaster(testLogger())
	ch, cancel := b.Subscribe()
	defer cancel()

	a := New(&fakeRepo{}, b, testLogger())
	_, err := execute(t, a, hub.ResearchPayload{MarketID: "m1", Question: "q", Outcome: "Yes"})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "forecast_created", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a forecast_created event")
	}
}

func TestResearch_PersistFailureDoesNotFailTask(t *testing.T) {
	repo := &fakeRepo{saveForecastErr: errors.New("connection refused")}
	a := newTestAgent(repo)

	v, err := execute(t, a, hub.ResearchPayload{MarketID: "m1", Question: "q", Outcome: "Yes"})
	require.NoError(t, err, "storage failure must not fail the research task")
	assert.NotNil(t, v)
}

func TestDecideTrade_RejectsBadPrice(t *testing.T) {
	a := newTestAgent(nil)
	for _, price := range []float64{0, 1, -0.2, 1.5} {
		_, err := execute(t, a, hub.TradeDecisionPayload{
			MarketID: "m1", Question: "q", Outcome: "Yes", Price: price,
		})
		require.Error(t, err, "price %v must be rejected", price)
	}
}

func TestDecideTrade_SkipsWhenEdgeBelowThreshold(t *testing.T) {
	repo := &fakeRepo{}
	a := newTestAgent(repo)

	// Forecast probability never exceeds 0.95, so a 0.99 quote has negative edge.
	v, err := execute(t, a, hub.TradeDecisionPayload{
		MarketID: "m1", Question: "q", Outcome: "Yes", Price: 0.99,
	})
	require.NoError(t, err)

	d, ok := v.(*TradeDecision)
	require.True(t, ok)
	assert.False(t, d.Placed)
	assert.Contains(t, d.Reason, "below threshold")
	require.NotNil(t, d.Forecast)

	assert.Len(t, repo.forecasts, 1, "the forecast is kept even when the trade is skipped")
	assert.Empty(t, repo.trades, "no trade is recorded on skip")
}

func TestDecideTrade_PlacesWhenEdgeSufficient(t *testing.T) {
	repo := &fakeRepo{}
	a := newTestAgent(repo)

	// A bullish question floors the forecast at 0.1; a 0.01 quote guarantees edge.
	v, err := execute(t, a, hub.TradeDecisionPayload{
		MarketID: "m1", Question: "Will bitcoin rise this year?", Outcome: "Yes", Price: 0.01,
	})
	require.NoError(t, err)

	d, ok := v.(*TradeDecision)
	require.True(t, ok)
	require.True(t, d.Placed)
	require.NotNil(t, d.Trade)
	assert.Equal(t, "BUY", d.Trade.Side)
	assert.Equal(t, "executed", d.Trade.Status)
	assert.Equal(t, 0.01, d.Trade.Price)
	assert.Greater(t, d.Trade.Size, 0.0)
	assert.NotNil(t, d.Trade.ExecutedAt)
	assert.InDelta(t, d.Forecast.Probability-0.01, d.Trade.Edge, 1e-9)

	require.Len(t, repo.trades, 1)
	assert.Same(t, d.Trade, repo.trades[0])
}

func TestDecideTrade_SizeCappedAtMax(t *testing.T) {
	a := newTestAgent(&fakeRepo{}, WithBalance(100000), WithMaxTradeSize(50))

	v, err := execute(t, a, hub.TradeDecisionPayload{
		MarketID: "m1", Question: "Will bitcoin rise?", Outcome: "Yes", Price: 0.01,
	})
	require.NoError(t, err)

	d := v.(*TradeDecision)
	require.True(t, d.Placed)
	assert.Equal(t, 50.0, d.Trade.Size)
}

func TestMonitor_WithoutPersistence(t *testing.T) {
	a := newTestAgent(nil)
	v, err := execute(t, a, hub.MonitorPayload{MarketID: "m1"})
	require.NoError(t, err)

	r := v.(*MonitorReport)
	assert.Equal(t, 0, r.OpenPositions)
	assert.NotEmpty(t, r.Alerts)
}

func TestMonitor_AggregatesExecutedTrades(t *testing.T) {
	repo := &fakeRepo{marketTrades: []*postgres.Trade{
		executedTrade(100, 0.5),
		executedTrade(40, 0.25),
		{Side: "BUY", Size: 999, Price: 0.9, Status: "failed"}, // ignored
	}}
	a := newTestAgent(repo, WithBalance(1000))

	v, err := execute(t, a, hub.MonitorPayload{MarketID: "m1"})
	require.NoError(t, err)

	r := v.(*MonitorReport)
	assert.Equal(t, 2, r.OpenPositions)
	assert.InDelta(t, 60.0, r.Exposure, 1e-9)
	assert.Empty(t, r.Alerts, "exposure below half the bankroll raises no alert")
}

func TestMonitor_AlertsOnHighExposure(t *testing.T) {
	repo := &fakeRepo{marketTrades: []*postgres.Trade{executedTrade(100, 0.8)}}
	a := newTestAgent(repo, WithBalance(100))

	v, err := execute(t, a, hub.MonitorPayload{MarketID: "m1"})
	require.NoError(t, err)

	r := v.(*MonitorReport)
	require.Len(t, r.Alerts, 1)
	assert.Contains(t, r.Alerts[0], "exposure")
}

func TestMonitor_RepoErrorFailsTask(t *testing.T) {
	repo := &fakeRepo{marketErr: errors.New("relation does not exist")}
	a := newTestAgent(repo)

	_, err := execute(t, a, hub.MonitorPayload{MarketID: "m1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m1")
}

func TestRunJob_UnknownJob(t *testing.T) {
	a := newTestAgent(nil)
	_, err := execute(t, a, hub.CronJobPayload{Job: "defragment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defragment")
}

func TestRunJob_TradingCycle(t *testing.T) {
	repo := &fakeRepo{}
	a := newTestAgent(repo)

	v, err := execute(t, a, hub.CronJobPayload{Job: "trading-cycle", Args: map[string]string{
		"market_id": "m1",
		"question":  "Will bitcoin rise?",
		"outcome":   "Yes",
		"price":     "0.01",
	}})
	require.NoError(t, err)

	_, ok := v.(*TradeDecision)
	assert.True(t, ok, "trading-cycle delegates to the trade decision path")
	assert.Len(t, repo.forecasts, 1)
}

func TestRunJob_TradingCycleBadPrice(t *testing.T) {
	a := newTestAgent(nil)
	_, err := execute(t, a, hub.CronJobPayload{Job: "trading-cycle", Args: map[string]string{
		"price": "not-a-number",
	}})
	require.Error(t, err)
}

func TestRunJob_PortfolioSnapshot(t *testing.T) {
	repo := &fakeRepo{recentTrades: []*postgres.Trade{
		executedTrade(100, 0.5),
		{Side: "BUY", Size: 20, Price: 0.3, Status: "pending"}, // not yet exposure
	}}
	a := newTestAgent(repo, WithBalance(1000))

	v, err := execute(t, a, hub.CronJobPayload{Job: "portfolio-snapshot"})
	require.NoError(t, err)

	snap := v.(*postgres.PortfolioSnapshot)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.InDelta(t, 50.0, snap.Exposure, 1e-9)
	assert.InDelta(t, 950.0, snap.Balance, 1e-9)
	require.Len(t, repo.snapshots, 1)
}

func TestRunJob_PortfolioSnapshotRequiresRepo(t *testing.T) {
	a := newTestAgent(nil)
	_, err := execute(t, a, hub.CronJobPayload{Job: "portfolio-snapshot"})
	require.Error(t, err)
}
