// Package models holds the boundary types shared between the decision
// pipeline, the audit path, and external collaborators (feeds, model
// ensembles, the portfolio tracker, and persisted storage).
package models

import "time"

// Side is the direction of a trade or intended action.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	SideHold Side = "HOLD"
)

// Opposite returns the contrary trading side. HOLD is its own opposite.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideHold
	}
}

// MicrostructuralFeature is a single externally-produced snapshot of the
// order book and tape for one symbol. Immutable once emitted.
type MicrostructuralFeature struct {
	Symbol             string    `json:"symbol"`
	Timestamp          time.Time `json:"ts"`
	MidPrice           float64   `json:"mid_price"`
	RelativeSpreadBps  float64   `json:"relative_spread_bps"`
	QueueImbalance     float64   `json:"queue_imbalance"`      // [-1, 1]
	OrderFlowImbalance float64   `json:"order_flow_imbalance"` // signed
	RealizedVol        float64   `json:"realized_vol"`         // annualized-equivalent, e.g. 0.03 = 3%
	Momentum           float64   `json:"momentum"`             // short-horizon, signed
	TickVolume         float64   `json:"tick_volume"`
}

// ModelPrediction is read-only evidence supplied by an external analyzer.
type ModelPrediction struct {
	ModelID     string             `json:"model_id"`
	Probability float64            `json:"probability"` // [0, 1]
	ExpectedBps float64            `json:"expected_bps"` // signed
	Confidence  float64            `json:"confidence"`  // [0, 1]
	Regime      string             `json:"regime,omitempty"`
	Features    map[string]float64 `json:"features,omitempty"`
}

// Direction maps the signed expected return to an intended side.
func (p ModelPrediction) Direction() Side {
	switch {
	case p.ExpectedBps > 0:
		return SideBuy
	case p.ExpectedBps < 0:
		return SideSell
	default:
		return SideHold
	}
}

// Position is one currently open position as reported by the external
// portfolio tracker.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

// RiskMetrics is the account-level risk state supplied per decision.
type RiskMetrics struct {
	DailyPnL float64 `json:"daily_pnl"`
	Drawdown float64 `json:"drawdown"` // fraction, e.g. 0.05 = 5%
	VaR      float64 `json:"var"`
}

// Trade is a persisted historical trade read by the audit path.
type Trade struct {
	TradeID    string     `json:"trade_id" db:"trade_id"`
	Symbol     string     `json:"symbol" db:"symbol"`
	Side       Side       `json:"side" db:"side"`
	Quantity   float64    `json:"quantity" db:"quantity"`
	EntryPrice float64    `json:"entry_price" db:"entry_price"`
	ExitPrice  float64    `json:"exit_price" db:"exit_price"`
	Status     string     `json:"status" db:"status"` // OPEN, CLOSED
	PnL        float64    `json:"pnl" db:"pnl"`
	OpenedAt   time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	Algorithm  string     `json:"algorithm" db:"algorithm"` // strategy name

	// Decision-time context recorded alongside the trade, when available.
	DecisionConfidence float64 `json:"decision_confidence" db:"decision_confidence"` // 0-100
	EnsembleScore      float64 `json:"ensemble_score" db:"ensemble_score"`
	ModelProbability   float64 `json:"model_probability" db:"model_probability"`
	OpenPositionsAt    int     `json:"open_positions_at" db:"open_positions_at"`
	DailyPnLAt         float64 `json:"daily_pnl_at" db:"daily_pnl_at"`
	BalanceAt          float64 `json:"balance_at" db:"balance_at"`
	DrawdownAt         float64 `json:"drawdown_at" db:"drawdown_at"`
}

// Closed reports whether the trade has an exit on record.
func (t Trade) Closed() bool { return t.ClosedAt != nil }

// Order is a fill record associated with a trade.
type Order struct {
	OrderID       string    `json:"order_id" db:"order_id"`
	TradeID       string    `json:"trade_id" db:"trade_id"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Side          Side      `json:"side" db:"side"`
	Price         float64   `json:"price" db:"price"` // fill price
	ExpectedPrice float64   `json:"expected_price" db:"expected_price"`
	OrigQty       float64   `json:"orig_qty" db:"orig_qty"`
	ExecutedQty   float64   `json:"executed_qty" db:"executed_qty"`
	PlacedAt      time.Time `json:"placed_at" db:"placed_at"`
	FilledAt      time.Time `json:"filled_at" db:"filled_at"`
}

// PriceSnapshot is a periodic intratrade mark used for excursion analysis.
type PriceSnapshot struct {
	TradeID   string    `json:"trade_id" db:"trade_id"`
	Timestamp time.Time `json:"ts" db:"ts"`
	Price     float64   `json:"price" db:"price"`
}
