package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/persistence"
	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

// Auditor reconstructs execution quality for historical trades and keeps
// per-strategy rolling aggregates. One auditor per process; constructed
// with its collaborators, no hidden globals.
type Auditor struct {
	cfg     Config
	store   persistence.TradeStore
	reports persistence.ReportStore // optional
	stages  *latency.Registry

	cacheMu sync.RWMutex
	cache   map[string]TradeAuditMetrics

	aggMu      sync.Mutex
	aggregates map[string]*strategyAggregate
}

// NewAuditor creates an auditor reading from store. reports may be nil
// when generated reports should not be persisted.
func NewAuditor(cfg Config, store persistence.TradeStore, reports persistence.ReportStore, stages *latency.Registry) *Auditor {
	if cfg.RecentTradeCount <= 0 {
		cfg = DefaultConfig()
	}
	if stages == nil {
		stages = latency.NewRegistry(1000)
	}
	return &Auditor{
		cfg:        cfg,
		store:      store,
		reports:    reports,
		stages:     stages,
		cache:      make(map[string]TradeAuditMetrics),
		aggregates: make(map[string]*strategyAggregate),
	}
}

// Stages exposes the latency registry so callers can record pipeline
// stage timings that feed bottleneck identification.
func (a *Auditor) Stages() *latency.Registry { return a.stages }

// AuditTrade builds the full audit record for one trade and folds it into
// the strategy aggregate. Results are cached by trade id; a missing trade
// returns persistence.ErrTradeNotFound.
func (a *Auditor) AuditTrade(ctx context.Context, tradeID string) (TradeAuditMetrics, error) {
	a.cacheMu.RLock()
	if cached, ok := a.cache[tradeID]; ok {
		a.cacheMu.RUnlock()
		return cached, nil
	}
	a.cacheMu.RUnlock()

	start := time.Now()

	trade, err := a.store.GetTrade(ctx, tradeID)
	if err != nil {
		return TradeAuditMetrics{}, err
	}
	orders, err := a.store.GetOrders(ctx, tradeID)
	if err != nil {
		return TradeAuditMetrics{}, fmt.Errorf("orders for trade %s: %w", tradeID, err)
	}
	snapshots, err := a.store.GetPriceSnapshots(ctx, tradeID)
	if err != nil {
		return TradeAuditMetrics{}, fmt.Errorf("snapshots for trade %s: %w", tradeID, err)
	}

	concurrent, err := a.concurrentTrades(ctx, trade)
	if err != nil {
		// Correlation context is best-effort; the trade itself still audits.
		log.Warn().Err(err).Str("trade_id", tradeID).Msg("concurrent trade lookup failed")
	}

	metrics := buildAuditMetrics(a.cfg, trade, orders, snapshots, concurrent)

	a.aggregate(trade.Algorithm).record(metrics)

	a.cacheMu.Lock()
	a.cache[tradeID] = metrics
	a.cacheMu.Unlock()

	a.stages.Stage(latency.StageAudit).Record(time.Since(start))

	return metrics, nil
}

// StrategyPerformance returns the current aggregate for one strategy.
func (a *Auditor) StrategyPerformance(strategy string) (StrategyPerformance, bool) {
	a.aggMu.Lock()
	agg, ok := a.aggregates[strategy]
	a.aggMu.Unlock()
	if !ok {
		return StrategyPerformance{}, false
	}
	return agg.snapshot(), true
}

func (a *Auditor) aggregate(strategy string) *strategyAggregate {
	if strategy == "" {
		strategy = "unknown"
	}
	a.aggMu.Lock()
	defer a.aggMu.Unlock()
	agg, ok := a.aggregates[strategy]
	if !ok {
		agg = newStrategyAggregate(strategy, a.cfg.RollingWindow)
		a.aggregates[strategy] = agg
	}
	return agg
}

// concurrentTrades lists trades whose lifetime overlaps the given trade.
func (a *Auditor) concurrentTrades(ctx context.Context, trade models.Trade) ([]models.Trade, error) {
	recent, err := a.store.RecentTrades(ctx, a.cfg.RecentTradeCount)
	if err != nil {
		return nil, err
	}
	end := time.Now()
	if trade.ClosedAt != nil {
		end = *trade.ClosedAt
	}

	var out []models.Trade
	for _, other := range recent {
		if other.TradeID == trade.TradeID {
			continue
		}
		otherEnd := end
		if other.ClosedAt != nil {
			otherEnd = *other.ClosedAt
		}
		if other.OpenedAt.Before(end) && otherEnd.After(trade.OpenedAt) {
			out = append(out, other)
		}
	}
	return out, nil
}

// GenerateAuditReport audits the most recent n trades and synthesizes the
// ranked weakness report. A failure on one trade is logged and skipped;
// it never aborts the batch.
func (a *Auditor) GenerateAuditReport(ctx context.Context, n int) (*AuditReport, error) {
	if n <= 0 {
		n = a.cfg.RecentTradeCount
	}
	trades, err := a.store.RecentTrades(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}

	report := &AuditReport{
		ReportID:    uuid.NewString(),
		GeneratedAt: time.Now(),
	}

	var audited []TradeAuditMetrics
	for _, trade := range trades {
		m, err := a.AuditTrade(ctx, trade.TradeID)
		if err != nil {
			report.TradesFailed++
			log.Warn().Err(err).Str("trade_id", trade.TradeID).Msg("trade audit skipped")
			continue
		}
		audited = append(audited, m)
	}
	report.TradesAudited = len(audited)

	report.Summary = summarize(audited)

	a.aggMu.Lock()
	names := make([]string, 0, len(a.aggregates))
	for name := range a.aggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Strategies = append(report.Strategies, a.aggregates[name].snapshot())
	}
	a.aggMu.Unlock()

	report.Bottlenecks = a.IdentifyBottlenecks()
	report.Biases = a.DetectBiases(audited, report.TradesFailed)
	report.TopWeaknesses = rankWeaknesses(a.cfg, audited, report.Bottlenecks, report.Biases)

	if a.reports != nil {
		payload, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("marshal audit report: %w", err)
		}
		if err := a.reports.InsertAuditReport(ctx, report.ReportID, report.GeneratedAt, payload); err != nil {
			return nil, fmt.Errorf("persist audit report: %w", err)
		}
	}

	return report, nil
}

func summarize(audited []TradeAuditMetrics) ReportSummary {
	var s ReportSummary
	if len(audited) == 0 {
		return s
	}

	wins := 0
	for _, m := range audited {
		if m.Perf.PnL > 0 {
			wins++
		}
		s.TotalPnL += m.Perf.PnL
		s.AvgLatencyMs += m.Execution.LatencyMs
		s.AvgSlippageBps += math.Abs(m.Execution.SlippageBps)
		s.TotalViolations += len(m.Violations.List())
	}
	n := float64(len(audited))
	s.WinRate = float64(wins) / n
	s.AvgLatencyMs /= n
	s.AvgSlippageBps /= n
	return s
}

// buildAuditMetrics derives the audit sub-records from persisted data.
func buildAuditMetrics(cfg Config, trade models.Trade, orders []models.Order, snapshots []models.PriceSnapshot, concurrent []models.Trade) TradeAuditMetrics {
	m := TradeAuditMetrics{
		TradeID:  trade.TradeID,
		Symbol:   trade.Symbol,
		Side:     trade.Side,
		Strategy: trade.Algorithm,
	}

	m.Execution = executionMetrics(trade, orders)
	m.Perf = performanceMetrics(trade)
	m.Risk = riskExcursions(trade, snapshots, concurrent)
	m.Violations = violationFlags(cfg, trade, m.Execution)
	m.Quality = qualityMetrics(trade)

	return m
}

func executionMetrics(trade models.Trade, orders []models.Order) ExecutionMetrics {
	var ex ExecutionMetrics
	if len(orders) == 0 {
		return ex
	}

	entry := orders[0]
	ex.PlacedAt = entry.PlacedAt
	ex.FilledAt = entry.FilledAt
	ex.LatencyMs = float64(entry.FilledAt.Sub(entry.PlacedAt)) / float64(time.Millisecond)

	expected := entry.ExpectedPrice
	if expected <= 0 {
		expected = trade.EntryPrice
	}
	if expected > 0 {
		ex.Slippage = entry.Price - expected
		ex.SlippageBps = ex.Slippage / expected * 10000
	}
	return ex
}

func performanceMetrics(trade models.Trade) PerformanceMetrics {
	perf := PerformanceMetrics{
		EntryPrice: trade.EntryPrice,
		ExitPrice:  trade.ExitPrice,
	}

	exit := trade.ExitPrice
	if trade.Closed() && exit > 0 {
		if trade.Side == models.SideSell {
			perf.PnL = (trade.EntryPrice - exit) * trade.Quantity
		} else {
			perf.PnL = (exit - trade.EntryPrice) * trade.Quantity
		}
	} else {
		perf.PnL = trade.PnL
	}

	perf.Exposure = trade.EntryPrice * trade.Quantity
	if perf.Exposure > 0 {
		perf.PnLPct = perf.PnL / perf.Exposure * 100
	}
	if trade.BalanceAt > 0 {
		perf.Leverage = perf.Exposure / trade.BalanceAt
	}

	end := time.Now()
	if trade.ClosedAt != nil {
		end = *trade.ClosedAt
	}
	perf.Duration = end.Sub(trade.OpenedAt)

	return perf
}

// riskExcursions walks the snapshot series tracking the worst and best
// unrealized move, signed by side, plus the max give-back from the peak.
func riskExcursions(trade models.Trade, snapshots []models.PriceSnapshot, concurrent []models.Trade) RiskExcursions {
	var risk RiskExcursions

	if trade.EntryPrice > 0 {
		peak := 0.0
		for _, snap := range snapshots {
			exc := (snap.Price - trade.EntryPrice) / trade.EntryPrice * 100
			if trade.Side == models.SideSell {
				exc = -exc
			}
			if exc < risk.MaxAdverseExcursionPct {
				risk.MaxAdverseExcursionPct = exc
			}
			if exc > risk.MaxFavorableExcursionPct {
				risk.MaxFavorableExcursionPct = exc
			}
			if exc > peak {
				peak = exc
			}
			if dd := peak - exc; dd > risk.MaxDrawdownPct {
				risk.MaxDrawdownPct = dd
			}
		}
	}

	risk.VaR95 = 0.95 * math.Abs(risk.MaxAdverseExcursionPct)

	for _, other := range concurrent {
		c := auditCorrelation(trade, other)
		if c > risk.MaxOpenCorrelation {
			risk.MaxOpenCorrelation = c
		}
	}
	return risk
}

// auditCorrelation is the coarse categorical heuristic used post-hoc:
// same symbol and side 0.8, same symbol 0.3, else uncorrelated.
func auditCorrelation(trade, other models.Trade) float64 {
	if trade.Symbol != other.Symbol {
		return 0.0
	}
	if trade.Side == other.Side {
		return 0.8
	}
	return 0.3
}

func violationFlags(cfg Config, trade models.Trade, ex ExecutionMetrics) ViolationFlags {
	var v ViolationFlags
	v.PositionLimit = trade.OpenPositionsAt > cfg.MaxOpenPositions
	if trade.BalanceAt > 0 {
		v.DailyLoss = trade.DailyPnLAt <= -trade.BalanceAt*cfg.DailyLossLimitPct
	}
	v.Drawdown = trade.DrawdownAt >= cfg.MaxDrawdown
	v.Latency = ex.LatencyMs > cfg.LatencyLimitMs
	return v
}

func qualityMetrics(trade models.Trade) QualityMetrics {
	q := QualityMetrics{
		Confidence:       trade.DecisionConfidence,
		ModelProbability: trade.ModelProbability,
		EnsembleScore:    trade.EnsembleScore,
	}
	if q.Confidence >= 70 {
		q.ReasonCodes = append(q.ReasonCodes, "HIGH_CONF")
	}
	if q.EnsembleScore > 2 {
		q.ReasonCodes = append(q.ReasonCodes, "STRONG_SIGNAL")
	}
	if q.ModelProbability >= 0.6 {
		q.ReasonCodes = append(q.ReasonCodes, "CALIBRATED")
	}
	return q
}
