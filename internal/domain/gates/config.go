package gates

import "time"

// Config enumerates every gate threshold as a named field. Values mirror
// the production reference configuration.
type Config struct {
	// N0 data validity
	MaxFeedLatency      time.Duration `yaml:"max_feed_latency"`      // >this rejects
	DegradedFeedLatency time.Duration `yaml:"degraded_feed_latency"` // >this passes degraded
	MaxTickAge          time.Duration `yaml:"max_tick_age"`

	// N1 model confidence
	MinBestProbability float64 `yaml:"min_best_probability"`
	MinAbsExpectedBps  float64 `yaml:"min_abs_expected_bps"`

	// N2 consensus
	MinAgreeingModels int `yaml:"min_agreeing_models"`

	// N3 risk limits
	DailyLossLimitPct  float64 `yaml:"daily_loss_limit_pct"` // of balance
	MaxDrawdown        float64 `yaml:"max_drawdown"`
	MaxOpenPositions   int     `yaml:"max_open_positions"`
	MaxCorrelation     float64 `yaml:"max_correlation"`

	// N4 execution feasibility
	MinFillProbability float64 `yaml:"min_fill_probability"`
	MaxImpactBps       float64 `yaml:"max_impact_bps"`

	// N5 final arbitration
	MinAvgProbability float64 `yaml:"min_avg_probability"`
	MinAvgAbsBps      float64 `yaml:"min_avg_abs_bps"`
	MinOKGates        int     `yaml:"min_ok_gates"`

	// Sizing
	KellyFraction      float64 `yaml:"kelly_fraction"`
	MaxPositionSizePct float64 `yaml:"max_position_size_pct"` // of balance
}

// DefaultConfig returns the reference gate thresholds.
func DefaultConfig() Config {
	return Config{
		MaxFeedLatency:      100 * time.Millisecond,
		DegradedFeedLatency: 80 * time.Millisecond,
		MaxTickAge:          5 * time.Second,

		MinBestProbability: 0.55,
		MinAbsExpectedBps:  5.0,

		MinAgreeingModels: 2,

		DailyLossLimitPct: 0.015,
		MaxDrawdown:       0.08,
		MaxOpenPositions:  2,
		MaxCorrelation:    0.7,

		MinFillProbability: 0.70,
		MaxImpactBps:       20.0,

		MinAvgProbability: 0.60,
		MinAvgAbsBps:      8.0,
		MinOKGates:        4,

		KellyFraction:      0.25,
		MaxPositionSizePct: 0.05,
	}
}

// fillProbability maps a liquidity tier to the implied fill probability.
func fillProbability(liquidity string) float64 {
	switch liquidity {
	case "HIGH":
		return 0.95
	case "MEDIUM":
		return 0.80
	default:
		return 0.60
	}
}

// impactMultiplier scales the half-spread crossing cost by book quality.
func impactMultiplier(liquidity string) float64 {
	switch liquidity {
	case "HIGH":
		return 1.0
	case "MEDIUM":
		return 1.5
	default:
		return 2.0
	}
}
