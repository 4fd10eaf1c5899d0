package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/persistence"
	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

type fakeStore struct {
	trades    map[string]models.Trade
	orders    map[string][]models.Order
	snapshots map[string][]models.PriceSnapshot
	recent    []models.Trade

	tradeCalls int
	recentErr  error
	inserted   [][]byte
	insertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades:    make(map[string]models.Trade),
		orders:    make(map[string][]models.Order),
		snapshots: make(map[string][]models.PriceSnapshot),
	}
}

func (s *fakeStore) GetTrade(_ context.Context, tradeID string) (models.Trade, error) {
	s.tradeCalls++
	t, ok := s.trades[tradeID]
	if !ok {
		return models.Trade{}, persistence.ErrTradeNotFound
	}
	return t, nil
}

func (s *fakeStore) GetOrders(_ context.Context, tradeID string) ([]models.Order, error) {
	return s.orders[tradeID], nil
}

func (s *fakeStore) GetPriceSnapshots(_ context.Context, tradeID string) ([]models.PriceSnapshot, error) {
	return s.snapshots[tradeID], nil
}

func (s *fakeStore) RecentTrades(context.Context, int) ([]models.Trade, error) {
	return s.recent, s.recentErr
}

func (s *fakeStore) InsertAuditReport(_ context.Context, _ string, _ time.Time, payload []byte) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, payload)
	return nil
}

func (s *fakeStore) add(t models.Trade, orders []models.Order, snaps []models.PriceSnapshot) {
	s.trades[t.TradeID] = t
	s.orders[t.TradeID] = orders
	s.snapshots[t.TradeID] = snaps
	s.recent = append(s.recent, t)
}

func closedTrade(id string, pnl float64) (models.Trade, []models.Order) {
	opened := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(30 * time.Minute)
	entry := 100.0
	trade := models.Trade{
		TradeID:            id,
		Symbol:             "BTCUSDT",
		Side:               models.SideBuy,
		Quantity:           1,
		EntryPrice:         entry,
		ExitPrice:          entry + pnl,
		Status:             "CLOSED",
		OpenedAt:           opened,
		ClosedAt:           &closed,
		Algorithm:          "momentum",
		DecisionConfidence: 80,
		ModelProbability:   0.7,
		EnsembleScore:      3,
		BalanceAt:          10000,
	}
	order := models.Order{
		OrderID:       id + "-o1",
		TradeID:       id,
		Symbol:        trade.Symbol,
		Side:          trade.Side,
		Price:         100.1,
		ExpectedPrice: 100.0,
		PlacedAt:      opened,
		FilledAt:      opened.Add(40 * time.Millisecond),
	}
	return trade, []models.Order{order}
}

func TestAuditTradeSlippageBps(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 5)
	store.add(trade, orders, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	// Fill 100.1 against expected 100.0 is one dime of slippage, 10bps.
	assert.InDelta(t, 0.1, m.Execution.Slippage, 1e-9)
	assert.InDelta(t, 10.0, m.Execution.SlippageBps, 1e-9)
	assert.InDelta(t, 40.0, m.Execution.LatencyMs, 1e-9)
}

func TestAuditTradeNotFound(t *testing.T) {
	a := NewAuditor(DefaultConfig(), newFakeStore(), nil, nil)

	_, err := a.AuditTrade(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrTradeNotFound)
}

func TestAuditTradeCachesResult(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 5)
	store.add(trade, orders, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)

	first, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)
	calls := store.tradeCalls

	second, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, store.tradeCalls)
}

func TestAuditTradePerformanceSellSide(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 0)
	trade.Side = models.SideSell
	trade.ExitPrice = 95 // short from 100 covers at 95
	store.add(trade, orders, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.InDelta(t, 5.0, m.Perf.PnL, 1e-9)
	assert.InDelta(t, 5.0, m.Perf.PnLPct, 1e-9)
	assert.Equal(t, 30*time.Minute, m.Perf.Duration)
}

func TestAuditTradeRiskExcursions(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 2)
	snaps := []models.PriceSnapshot{
		{TradeID: "t1", Price: 99},    // -1%
		{TradeID: "t1", Price: 103},   // +3%
		{TradeID: "t1", Price: 101},   // give-back of 2 from the peak
		{TradeID: "t1", Price: 102},
	}
	store.add(trade, orders, snaps)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.InDelta(t, -1.0, m.Risk.MaxAdverseExcursionPct, 1e-9)
	assert.InDelta(t, 3.0, m.Risk.MaxFavorableExcursionPct, 1e-9)
	assert.InDelta(t, 2.0, m.Risk.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 0.95, m.Risk.VaR95, 1e-9)
}

func TestAuditTradeExcursionsSignedBySide(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 0)
	trade.Side = models.SideSell
	snaps := []models.PriceSnapshot{
		{TradeID: "t1", Price: 102}, // price up hurts a short
	}
	store.add(trade, orders, snaps)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.InDelta(t, -2.0, m.Risk.MaxAdverseExcursionPct, 1e-9)
	assert.Zero(t, m.Risk.MaxFavorableExcursionPct)
}

func TestAuditTradeOpenCorrelation(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 5)
	store.add(trade, orders, nil)

	overlapping, o2 := closedTrade("t2", 3)
	overlapping.OpenedAt = trade.OpenedAt.Add(5 * time.Minute)
	store.add(overlapping, o2, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	// Same symbol, same side, overlapping lifetime.
	assert.InDelta(t, 0.8, m.Risk.MaxOpenCorrelation, 1e-9)
}

func TestAuditTradeViolations(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 5)
	trade.OpenPositionsAt = 3
	trade.DailyPnLAt = -200 // 2% of 10000, over the 1.5% limit
	trade.DrawdownAt = 0.09
	orders[0].FilledAt = orders[0].PlacedAt.Add(2 * time.Second)
	store.add(trade, orders, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	list := m.Violations.List()
	assert.ElementsMatch(t, []Violation{
		ViolationPositionLimit, ViolationDailyLoss, ViolationDrawdown, ViolationLatency,
	}, list)
}

func TestAuditTradeQualityCodes(t *testing.T) {
	store := newFakeStore()
	trade, orders := closedTrade("t1", 5)
	store.add(trade, orders, nil)

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	m, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"HIGH_CONF", "STRONG_SIGNAL", "CALIBRATED"}, m.Quality.ReasonCodes)
}

func TestGenerateAuditReportSkipsFailedTrades(t *testing.T) {
	store := newFakeStore()
	t1, o1 := closedTrade("t1", 5)
	store.add(t1, o1, nil)
	t2, o2 := closedTrade("t2", -3)
	store.add(t2, o2, nil)

	// Listed among recent trades but with no persisted record.
	store.recent = append(store.recent, models.Trade{TradeID: "ghost"})

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	report, err := a.GenerateAuditReport(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TradesAudited)
	assert.Equal(t, 1, report.TradesFailed)
	assert.InDelta(t, 0.5, report.Summary.WinRate, 1e-9)
	assert.InDelta(t, 2.0, report.Summary.TotalPnL, 1e-9)
	require.Len(t, report.Strategies, 1)
	assert.Equal(t, "momentum", report.Strategies[0].Strategy)
	assert.NotEmpty(t, report.ReportID)
}

func TestGenerateAuditReportRecentTradesError(t *testing.T) {
	store := newFakeStore()
	store.recentErr = errors.New("db down")

	a := NewAuditor(DefaultConfig(), store, nil, nil)
	_, err := a.GenerateAuditReport(context.Background(), 10)
	assert.Error(t, err)
}

func TestGenerateAuditReportPersistsWhenConfigured(t *testing.T) {
	store := newFakeStore()
	t1, o1 := closedTrade("t1", 5)
	store.add(t1, o1, nil)

	a := NewAuditor(DefaultConfig(), store, store, nil)
	report, err := a.GenerateAuditReport(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Contains(t, string(store.inserted[0]), report.ReportID)
}

func TestGenerateAuditReportPersistFailure(t *testing.T) {
	store := newFakeStore()
	t1, o1 := closedTrade("t1", 5)
	store.add(t1, o1, nil)
	store.insertErr = errors.New("insert failed")

	a := NewAuditor(DefaultConfig(), store, store, nil)
	_, err := a.GenerateAuditReport(context.Background(), 10)
	assert.Error(t, err)
}

func TestAuditTradeRecordsStageTiming(t *testing.T) {
	store := newFakeStore()
	t1, o1 := closedTrade("t1", 5)
	store.add(t1, o1, nil)

	reg := latency.NewRegistry(100)
	a := NewAuditor(DefaultConfig(), store, nil, reg)

	_, err := a.AuditTrade(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Stage(latency.StageAudit).Count())
}
