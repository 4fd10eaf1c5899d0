package audit

import (
	"math"
	"sort"
	"sync"
)

// strategyAggregate holds the streaming state behind one
// StrategyPerformance. All updates go through its own mutex, so audits
// for different strategies never contend (single-writer per key).
type strategyAggregate struct {
	mu sync.Mutex

	strategy      string
	totalTrades   int
	winningTrades int
	grossProfit   float64
	grossLoss     float64

	// Welford state over per-trade percent returns.
	retMean float64
	retM2   float64
	downSq  float64 // sum of squared negative returns

	// Max drawdown over the cumulative P&L curve, in arrival order.
	cumPnL  float64
	peakPnL float64
	maxDD   float64

	latency  *sampleRing
	slippage *sampleRing

	violations map[Violation]int
}

func newStrategyAggregate(strategy string, window int) *strategyAggregate {
	return &strategyAggregate{
		strategy:   strategy,
		latency:    newSampleRing(window),
		slippage:   newSampleRing(window),
		violations: make(map[Violation]int),
	}
}

// record folds one audited trade into the aggregate.
func (a *strategyAggregate) record(m TradeAuditMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalTrades++
	if m.Perf.PnL > 0 {
		a.winningTrades++
		a.grossProfit += m.Perf.PnL
	} else {
		a.grossLoss += -m.Perf.PnL
	}

	ret := m.Perf.PnLPct
	a.updateReturns(ret)
	if ret < 0 {
		a.downSq += ret * ret
	}

	a.cumPnL += m.Perf.PnL
	if a.cumPnL > a.peakPnL {
		a.peakPnL = a.cumPnL
	}
	if dd := a.peakPnL - a.cumPnL; dd > a.maxDD {
		a.maxDD = dd
	}

	a.latency.push(m.Execution.LatencyMs)
	a.slippage.push(m.Execution.SlippageBps)

	for _, v := range m.Violations.List() {
		a.violations[v]++
	}
}

func (a *strategyAggregate) updateReturns(ret float64) {
	delta := ret - a.retMean
	a.retMean += delta / float64(a.totalTrades)
	a.retM2 += delta * (ret - a.retMean)
}

// snapshot materializes the public StrategyPerformance view.
func (a *strategyAggregate) snapshot() StrategyPerformance {
	a.mu.Lock()
	defer a.mu.Unlock()

	perf := StrategyPerformance{
		Strategy:      a.strategy,
		TotalTrades:   a.totalTrades,
		WinningTrades: a.winningTrades,
		MaxDrawdown:   a.maxDD,
		Violations:    make(map[Violation]int, len(a.violations)),
	}
	for k, v := range a.violations {
		perf.Violations[k] = v
	}

	if a.totalTrades > 0 {
		perf.WinRate = float64(a.winningTrades) / float64(a.totalTrades)
	}
	if a.grossLoss > 0 {
		perf.ProfitFactor = a.grossProfit / a.grossLoss
	} else if a.grossProfit > 0 {
		perf.ProfitFactor = math.Inf(1)
	}

	if a.totalTrades > 1 {
		variance := a.retM2 / float64(a.totalTrades-1)
		if std := math.Sqrt(variance); std > 0 {
			perf.Sharpe = a.retMean / std
		}
		downStd := math.Sqrt(a.downSq / float64(a.totalTrades))
		if downStd > 0 {
			perf.Sortino = a.retMean / downStd
		}
	}

	perf.AvgLatencyMs = a.latency.mean()
	perf.P99LatencyMs = a.latency.percentile(0.99)
	perf.AvgSlippageBps = a.slippage.mean()

	return perf
}

// sampleRing is a bounded FIFO sample buffer for mean/percentile tracking.
type sampleRing struct {
	buf     []float64
	head    int
	count   int
	maxSize int
}

func newSampleRing(maxSize int) *sampleRing {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &sampleRing{buf: make([]float64, maxSize), maxSize: maxSize}
}

func (r *sampleRing) push(v float64) {
	r.buf[(r.head+r.count)%r.maxSize] = v
	if r.count < r.maxSize {
		r.count++
	} else {
		r.head = (r.head + 1) % r.maxSize
	}
}

func (r *sampleRing) mean() float64 {
	if r.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < r.count; i++ {
		sum += r.buf[(r.head+i)%r.maxSize]
	}
	return sum / float64(r.count)
}

func (r *sampleRing) percentile(p float64) float64 {
	if r.count == 0 {
		return 0
	}
	values := make([]float64, r.count)
	for i := 0; i < r.count; i++ {
		values[i] = r.buf[(r.head+i)%r.maxSize]
	}
	sort.Float64s(values)

	idx := int(math.Ceil(p*float64(r.count))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= r.count {
		idx = r.count - 1
	}
	return values[idx]
}
