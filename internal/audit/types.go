// Package audit reconstructs decision and execution quality for
// historical trades and aggregates it for systemic diagnosis.
package audit

import (
	"time"

	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

// ExecutionMetrics reconstructs order placement quality for one trade.
type ExecutionMetrics struct {
	PlacedAt    time.Time `json:"placed_at"`
	FilledAt    time.Time `json:"filled_at"`
	LatencyMs   float64   `json:"latency_ms"`
	Slippage    float64   `json:"slippage"`     // fill - expected, price units
	SlippageBps float64   `json:"slippage_bps"` // relative to expected price
}

// PerformanceMetrics reconstructs realized performance for one trade.
type PerformanceMetrics struct {
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	PnL        float64       `json:"pnl"`
	PnLPct     float64       `json:"pnl_pct"`
	Exposure   float64       `json:"exposure"` // notional
	Leverage   float64       `json:"leverage"`
	Duration   time.Duration `json:"duration"`
}

// RiskExcursions reconstructs intratrade risk from the price snapshots.
// Excursions are signed by side: adverse is negative, favorable positive.
type RiskExcursions struct {
	MaxAdverseExcursionPct   float64 `json:"max_adverse_excursion_pct"`
	MaxFavorableExcursionPct float64 `json:"max_favorable_excursion_pct"`
	MaxDrawdownPct           float64 `json:"max_drawdown_pct"`
	VaR95                    float64 `json:"var_95"`
	MaxOpenCorrelation       float64 `json:"max_open_correlation"`
}

// Violation names a limit breached at decision or execution time.
type Violation string

const (
	ViolationPositionLimit Violation = "POSITION_LIMIT"
	ViolationDailyLoss     Violation = "DAILY_LOSS_LIMIT"
	ViolationDrawdown      Violation = "DRAWDOWN_LIMIT"
	ViolationLatency       Violation = "LATENCY_LIMIT"
)

// ViolationFlags marks which limits the trade breached.
type ViolationFlags struct {
	PositionLimit bool `json:"position_limit"`
	DailyLoss     bool `json:"daily_loss"`
	Drawdown      bool `json:"drawdown"`
	Latency       bool `json:"latency"`
}

// List returns the breached violations by name.
func (v ViolationFlags) List() []Violation {
	var out []Violation
	if v.PositionLimit {
		out = append(out, ViolationPositionLimit)
	}
	if v.DailyLoss {
		out = append(out, ViolationDailyLoss)
	}
	if v.Drawdown {
		out = append(out, ViolationDrawdown)
	}
	if v.Latency {
		out = append(out, ViolationLatency)
	}
	return out
}

// QualityMetrics recovers the recorded decision quality, when available.
type QualityMetrics struct {
	Confidence       float64  `json:"confidence"` // 0-100
	ModelProbability float64  `json:"model_probability"`
	EnsembleScore    float64  `json:"ensemble_score"`
	ReasonCodes      []string `json:"reason_codes"`
}

// TradeAuditMetrics is the complete audit record for one trade.
type TradeAuditMetrics struct {
	TradeID    string             `json:"trade_id"`
	Symbol     string             `json:"symbol"`
	Side       models.Side        `json:"side"`
	Strategy   string             `json:"strategy"`
	Execution  ExecutionMetrics   `json:"execution"`
	Perf       PerformanceMetrics `json:"performance"`
	Risk       RiskExcursions     `json:"risk"`
	Violations ViolationFlags     `json:"violations"`
	Quality    QualityMetrics     `json:"quality"`
}

// StrategyPerformance is the rolling aggregate for one strategy, updated
// incrementally as each trade is audited.
type StrategyPerformance struct {
	Strategy       string            `json:"strategy"`
	TotalTrades    int               `json:"total_trades"`
	WinningTrades  int               `json:"winning_trades"`
	WinRate        float64           `json:"win_rate"`
	ProfitFactor   float64           `json:"profit_factor"`
	Sharpe         float64           `json:"sharpe"`
	Sortino        float64           `json:"sortino"`
	AvgLatencyMs   float64           `json:"avg_latency_ms"`
	P99LatencyMs   float64           `json:"p99_latency_ms"`
	AvgSlippageBps float64           `json:"avg_slippage_bps"`
	MaxDrawdown    float64           `json:"max_drawdown"`
	Violations     map[Violation]int `json:"violations"`
}

// ImpactTier grades how much a finding hurts the trading cycle.
type ImpactTier string

const (
	ImpactHigh   ImpactTier = "HIGH"
	ImpactMedium ImpactTier = "MEDIUM"
	ImpactLow    ImpactTier = "LOW"
)

// BottleneckAnalysis names a pipeline stage whose latency exceeds budget.
type BottleneckAnalysis struct {
	Component   string          `json:"component"`
	Latency     latency.Summary `json:"latency"`
	Impact      ImpactTier      `json:"impact"`
	Suggestions []string        `json:"suggestions"`
}

// BiasDetection names a systemic decision bias with supporting evidence.
type BiasDetection struct {
	Name     string   `json:"name"`
	Severity float64  `json:"severity"` // 0-10
	Evidence []string `json:"evidence"`
}

// Weakness is one ranked entry in the audit report.
type Weakness struct {
	Issue          string     `json:"issue"`
	Impact         ImpactTier `json:"impact"`
	AffectedTrades int        `json:"affected_trades"`
	ExpectedGain   string     `json:"expected_gain"`
	Recommendation string     `json:"recommendation"`
	Score          float64    `json:"score"` // ranking key, higher is worse
}

// ReportSummary aggregates headline statistics across audited trades.
type ReportSummary struct {
	WinRate         float64 `json:"win_rate"`
	TotalPnL        float64 `json:"total_pnl"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	AvgSlippageBps  float64 `json:"avg_slippage_bps"`
	TotalViolations int     `json:"total_violations"`
}

// AuditReport is the JSON-serializable output of report synthesis.
type AuditReport struct {
	ReportID      string                `json:"report_id"`
	GeneratedAt   time.Time             `json:"generated_at"`
	TradesAudited int                   `json:"trades_audited"`
	TradesFailed  int                   `json:"trades_failed"`
	Summary       ReportSummary         `json:"summary"`
	Strategies    []StrategyPerformance `json:"strategies"`
	Bottlenecks   []BottleneckAnalysis  `json:"bottlenecks"`
	Biases        []BiasDetection       `json:"biases"`
	TopWeaknesses []Weakness            `json:"top_weaknesses"`
}

// Config holds the audit thresholds.
type Config struct {
	RecentTradeCount  int     `yaml:"recent_trade_count"`   // trades per report
	RollingWindow     int     `yaml:"rolling_window"`       // latency/slippage samples per strategy
	LatencyLimitMs    float64 `yaml:"latency_limit_ms"`     // execution latency violation
	CycleBudgetMs     float64 `yaml:"cycle_budget_ms"`      // trading cycle latency budget
	MaxOpenPositions  int     `yaml:"max_open_positions"`
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
	MaxDrawdown       float64 `yaml:"max_drawdown"`
	MaxWeaknesses     int     `yaml:"max_weaknesses"`
}

// DefaultConfig returns the reference audit thresholds, aligned with the
// decision-gate limits they are checked against.
func DefaultConfig() Config {
	return Config{
		RecentTradeCount:  100,
		RollingWindow:     100,
		LatencyLimitMs:    1000,
		CycleBudgetMs:     500,
		MaxOpenPositions:  2,
		DailyLossLimitPct: 0.015,
		MaxDrawdown:       0.08,
		MaxWeaknesses:     5,
	}
}
