// Package gates implements the sequential decision-approval state machine:
// six ordered, short-circuiting gates that turn a per-symbol decision
// context into an approved, sized action or a reasoned rejection.
package gates

import (
	"context"
	"time"

	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/models"
)

// Gate identifies one stage of the decision state machine.
type Gate string

const (
	GateN0 Gate = "N0" // data validity
	GateN1 Gate = "N1" // model confidence
	GateN2 Gate = "N2" // consensus
	GateN3 Gate = "N3" // risk limits
	GateN4 Gate = "N4" // execution feasibility
	GateN5 Gate = "N5" // final arbitration
)

// ReasonCode is a machine-readable tag explaining a gate verdict.
type ReasonCode string

const (
	ReasonN0OK              ReasonCode = "N0_OK"
	ReasonN0DegradedLatency ReasonCode = "N0_DEGRADED_LATENCY"
	ReasonN0HighLatency     ReasonCode = "N0_HIGH_LATENCY"
	ReasonN0StaleTick       ReasonCode = "N0_STALE_TICK"
	ReasonN0NoHeartbeat     ReasonCode = "N0_NO_HEARTBEAT"
	ReasonN0FeedUnavailable ReasonCode = "N0_FEED_UNAVAILABLE"

	ReasonN1OK             ReasonCode = "N1_OK"
	ReasonN1NoPredictions  ReasonCode = "N1_NO_PREDICTIONS"
	ReasonN1LowProbability ReasonCode = "N1_LOW_PROBABILITY"
	ReasonN1WeakSignal     ReasonCode = "N1_WEAK_SIGNAL"

	ReasonN2OK                 ReasonCode = "N2_OK"
	ReasonN2InsufficientModels ReasonCode = "N2_INSUFFICIENT_MODELS"
	ReasonN2RegimeConflict     ReasonCode = "N2_REGIME_CONFLICT"

	ReasonN3OK               ReasonCode = "N3_OK"
	ReasonN3DailyLossLimit   ReasonCode = "N3_DAILY_LOSS_LIMIT"
	ReasonN3DrawdownLimit    ReasonCode = "N3_DRAWDOWN_LIMIT"
	ReasonN3PositionLimit    ReasonCode = "N3_POSITION_LIMIT"
	ReasonN3CorrelationLimit ReasonCode = "N3_CORRELATION_LIMIT"
	ReasonN3KillSwitch       ReasonCode = "N3_KILL_SWITCH"

	ReasonN4OK                 ReasonCode = "N4_OK"
	ReasonN4MarginalLiquidity  ReasonCode = "N4_MARGINAL_LIQUIDITY"
	ReasonN4LowFillProbability ReasonCode = "N4_LOW_FILL_PROBABILITY"
	ReasonN4HighImpact         ReasonCode = "N4_HIGH_IMPACT"
	ReasonN4RateLimited        ReasonCode = "N4_RATE_LIMITED"

	ReasonN5OK                ReasonCode = "N5_OK"
	ReasonN5LowAvgProbability ReasonCode = "N5_LOW_AVG_PROBABILITY"
	ReasonN5WeakAvgSignal     ReasonCode = "N5_WEAK_AVG_SIGNAL"
	ReasonN5NegativeEdge      ReasonCode = "N5_NEGATIVE_EDGE"
	ReasonN5InsufficientOK    ReasonCode = "N5_INSUFFICIENT_OK"
)

// OK reports whether the code is a clean (non-degraded) pass.
func (rc ReasonCode) OK() bool {
	switch rc {
	case ReasonN0OK, ReasonN1OK, ReasonN2OK, ReasonN3OK, ReasonN4OK, ReasonN5OK:
		return true
	}
	return false
}

// DecisionContext is the immutable input bundle for one decision call.
// It is constructed fresh per call and never mutated by the validator.
type DecisionContext struct {
	Symbol        string                        `json:"symbol"`
	Venue         string                        `json:"venue"`
	Timestamp     time.Time                     `json:"ts"`
	Predictions   []models.ModelPrediction      `json:"predictions"`
	Regime        regime.MarketRegime           `json:"regime"`
	Feature       models.MicrostructuralFeature `json:"feature"`
	OpenPositions []models.Position             `json:"open_positions"`
	Balance       float64                       `json:"balance"`
	Risk          models.RiskMetrics            `json:"risk"`
}

// GateResult is the immutable record of one gate's verdict. Exactly one
// of the per-gate metadata fields is set, matching the Gate field.
type GateResult struct {
	Gate       Gate       `json:"gate"`
	Passed     bool       `json:"passed"`
	Reason     string     `json:"reason"`
	ReasonCode ReasonCode `json:"reason_code"`

	DataQuality *DataQualityMeta `json:"data_quality,omitempty"`
	Confidence  *ConfidenceMeta  `json:"confidence,omitempty"`
	Consensus   *ConsensusMeta   `json:"consensus,omitempty"`
	Risk        *RiskMeta        `json:"risk,omitempty"`
	Execution   *ExecutionMeta   `json:"execution,omitempty"`
	Arbitration *ArbitrationMeta `json:"arbitration,omitempty"`
}

// DataQualityMeta carries the N0 feed-freshness measurements.
type DataQualityMeta struct {
	FeedLatencyMs float64 `json:"feed_latency_ms"`
	TickAgeMs     float64 `json:"tick_age_ms"`
	HeartbeatOK   bool    `json:"heartbeat_ok"`
}

// ConfidenceMeta carries the N1 best-prediction measurements.
type ConfidenceMeta struct {
	BestModelID     string  `json:"best_model_id"`
	BestProbability float64 `json:"best_probability"`
	BestExpectedBps float64 `json:"best_expected_bps"`
}

// ConsensusMeta carries the N2 direction-vote measurements.
type ConsensusMeta struct {
	QualifyingModels int         `json:"qualifying_models"`
	AgreeingModels   int         `json:"agreeing_models"`
	WinningSide      models.Side `json:"winning_side"`
	RegimeType       string      `json:"regime_type"`
}

// RiskMeta carries the N3 limit measurements.
type RiskMeta struct {
	DailyPnL       float64 `json:"daily_pnl"`
	Drawdown       float64 `json:"drawdown"`
	OpenPositions  int     `json:"open_positions"`
	MaxCorrelation float64 `json:"max_correlation"`
}

// ExecutionMeta carries the N4 feasibility measurements.
type ExecutionMeta struct {
	FillProbability float64 `json:"fill_probability"`
	ImpactBps       float64 `json:"impact_bps"`
	Liquidity       string  `json:"liquidity"`
}

// ArbitrationMeta carries the N5 ensemble aggregates.
type ArbitrationMeta struct {
	AvgProbability float64 `json:"avg_probability"`
	AvgAbsBps      float64 `json:"avg_abs_bps"`
	KellyEdge      float64 `json:"kelly_edge"`
	OKGates        int     `json:"ok_gates"`
}

// ValidationResult is the terminal output of a decision call.
//
// Invariants: Approved is true iff every entry in Gates passed, and
// Size > 0 exactly when Approved. Arbitration rejects any context whose
// kelly-sized position would be zero.
type ValidationResult struct {
	Symbol           string       `json:"symbol"`
	Timestamp        time.Time    `json:"ts"`
	Approved         bool         `json:"approved"`
	Action           models.Side  `json:"action"`
	Size             float64      `json:"size"`
	RiskAdjustedSize float64      `json:"risk_adjusted_size"`
	ExpectedValue    float64      `json:"expected_value"` // bps
	Gates            []GateResult `json:"gates"`
	ReasonCodes      []ReasonCode `json:"reason_codes"`
}

// Freshness is the feed-quality snapshot returned by the tick-ingestion
// collaborator for gate N0.
type Freshness struct {
	Symbol      string        `json:"symbol"`
	FeedLatency time.Duration `json:"feed_latency"`
	LastTick    time.Time     `json:"last_tick"`
	HeartbeatOK bool          `json:"heartbeat_ok"`
}

// FreshnessProvider answers the N0 data-quality query. This is the only
// suspension point in a decision; callers apply their own timeout via ctx.
type FreshnessProvider interface {
	Freshness(ctx context.Context, symbol string) (Freshness, error)
}

// KillSwitch is the external trading halt predicate checked at N3.
type KillSwitch interface {
	Engaged() bool
}

// RateLimiter is the exchange rate-limit predicate checked at N4.
type RateLimiter interface {
	Allow(venue string) bool
}
