package gates

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/models"
)

// Validator evaluates the N0..N5 decision gates for a single context.
// It holds no mutable per-decision state: every call is independently
// evaluable, so decisions for different symbols may run concurrently.
type Validator struct {
	cfg        Config
	freshness  FreshnessProvider
	killSwitch KillSwitch
	limiter    RateLimiter
}

// NewValidator wires the validator with its boundary collaborators. The
// freshness provider is consulted only at N0; kill switch and rate limiter
// are external predicates owned by the execution layer.
func NewValidator(cfg Config, freshness FreshnessProvider, killSwitch KillSwitch, limiter RateLimiter) *Validator {
	return &Validator{
		cfg:        cfg,
		freshness:  freshness,
		killSwitch: killSwitch,
		limiter:    limiter,
	}
}

// Validate runs the six gates strictly in order, short-circuiting on the
// first failure. Gate rejections are data, not errors: the method never
// fails for an expected business condition.
func (v *Validator) Validate(ctx context.Context, dc DecisionContext) ValidationResult {
	result := ValidationResult{
		Symbol:    dc.Symbol,
		Timestamp: dc.Timestamp,
		Action:    models.SideHold,
	}

	var winningSide models.Side

	steps := []func(DecisionContext) GateResult{
		func(dc DecisionContext) GateResult { return v.gateN0(ctx, dc) },
		v.gateN1,
		func(dc DecisionContext) GateResult {
			gr := v.gateN2(dc)
			if gr.Consensus != nil {
				winningSide = gr.Consensus.WinningSide
			}
			return gr
		},
		func(dc DecisionContext) GateResult { return v.gateN3(dc, winningSide) },
		v.gateN4,
		func(dc DecisionContext) GateResult { return v.gateN5(dc, result.Gates) },
	}

	for _, step := range steps {
		gr := step(dc)
		result.Gates = append(result.Gates, gr)
		result.ReasonCodes = append(result.ReasonCodes, gr.ReasonCode)
		if !gr.Passed {
			log.Debug().
				Str("symbol", dc.Symbol).
				Str("gate", string(gr.Gate)).
				Str("reason_code", string(gr.ReasonCode)).
				Msg("decision rejected")
			return result
		}
	}

	result.Approved = true
	result.Action = decideAction(dc.Predictions)
	result.Size = v.positionSize(dc)
	result.RiskAdjustedSize = result.Size
	result.ExpectedValue = expectedValue(dc.Predictions)

	log.Debug().
		Str("symbol", dc.Symbol).
		Str("action", string(result.Action)).
		Float64("size", result.Size).
		Float64("expected_bps", result.ExpectedValue).
		Msg("decision approved")

	return result
}

// gateN0 checks feed data validity. This is the only gate that touches
// the outside world; a failed or stalled query fails closed.
func (v *Validator) gateN0(ctx context.Context, dc DecisionContext) GateResult {
	gr := GateResult{Gate: GateN0}

	fresh, err := v.freshness.Freshness(ctx, dc.Symbol)
	if err != nil {
		gr.Reason = fmt.Sprintf("feed freshness query failed: %v", err)
		gr.ReasonCode = ReasonN0FeedUnavailable
		return gr
	}

	tickAge := dc.Timestamp.Sub(fresh.LastTick)
	gr.DataQuality = &DataQualityMeta{
		FeedLatencyMs: float64(fresh.FeedLatency) / float64(time.Millisecond),
		TickAgeMs:     float64(tickAge) / float64(time.Millisecond),
		HeartbeatOK:   fresh.HeartbeatOK,
	}

	switch {
	case fresh.FeedLatency > v.cfg.MaxFeedLatency:
		gr.Reason = fmt.Sprintf("feed latency %v exceeds %v", fresh.FeedLatency, v.cfg.MaxFeedLatency)
		gr.ReasonCode = ReasonN0HighLatency
	case !fresh.HeartbeatOK:
		gr.Reason = "feed heartbeat missing"
		gr.ReasonCode = ReasonN0NoHeartbeat
	case tickAge > v.cfg.MaxTickAge || tickAge < 0:
		gr.Reason = fmt.Sprintf("last tick %v old exceeds %v", tickAge, v.cfg.MaxTickAge)
		gr.ReasonCode = ReasonN0StaleTick
	case fresh.FeedLatency > v.cfg.DegradedFeedLatency:
		gr.Passed = true
		gr.Reason = fmt.Sprintf("feed latency %v degraded but within %v", fresh.FeedLatency, v.cfg.MaxFeedLatency)
		gr.ReasonCode = ReasonN0DegradedLatency
	default:
		gr.Passed = true
		gr.Reason = "feed data valid"
		gr.ReasonCode = ReasonN0OK
	}
	return gr
}

// gateN1 checks that the best supplied prediction clears the probability
// and expected-return floors.
func (v *Validator) gateN1(dc DecisionContext) GateResult {
	gr := GateResult{Gate: GateN1}

	best, ok := bestPrediction(dc.Predictions)
	if !ok {
		gr.Reason = "no model predictions supplied"
		gr.ReasonCode = ReasonN1NoPredictions
		return gr
	}

	gr.Confidence = &ConfidenceMeta{
		BestModelID:     best.ModelID,
		BestProbability: best.Probability,
		BestExpectedBps: best.ExpectedBps,
	}

	switch {
	case best.Probability < v.cfg.MinBestProbability:
		gr.Reason = fmt.Sprintf("best probability %.3f below %.2f", best.Probability, v.cfg.MinBestProbability)
		gr.ReasonCode = ReasonN1LowProbability
	case math.Abs(best.ExpectedBps) < v.cfg.MinAbsExpectedBps:
		gr.Reason = fmt.Sprintf("best |expected| %.1fbps below %.1fbps", math.Abs(best.ExpectedBps), v.cfg.MinAbsExpectedBps)
		gr.ReasonCode = ReasonN1WeakSignal
	default:
		gr.Passed = true
		gr.Reason = fmt.Sprintf("model %s p=%.3f %.1fbps", best.ModelID, best.Probability, best.ExpectedBps)
		gr.ReasonCode = ReasonN1OK
	}
	return gr
}

// gateN2 requires at least MinAgreeingModels qualifying predictions on the
// winning direction and that the direction is consistent with the regime:
// trend regimes demand momentum alignment, mean-reversion regimes demand
// the contrarian side of order-flow imbalance.
func (v *Validator) gateN2(dc DecisionContext) GateResult {
	gr := GateResult{Gate: GateN2}

	var qualifying []models.ModelPrediction
	for _, p := range dc.Predictions {
		if p.Probability >= v.cfg.MinBestProbability && p.Direction() != models.SideHold {
			qualifying = append(qualifying, p)
		}
	}

	votes := map[models.Side]int{}
	mass := map[models.Side]float64{}
	for _, p := range qualifying {
		votes[p.Direction()]++
		mass[p.Direction()] += p.Confidence * p.Probability
	}

	winning := models.SideHold
	switch {
	case votes[models.SideBuy] > votes[models.SideSell]:
		winning = models.SideBuy
	case votes[models.SideSell] > votes[models.SideBuy]:
		winning = models.SideSell
	case votes[models.SideBuy] > 0:
		// Tied vote count: heavier confidence-weighted mass wins.
		winning = models.SideBuy
		if mass[models.SideSell] > mass[models.SideBuy] {
			winning = models.SideSell
		}
	}

	gr.Consensus = &ConsensusMeta{
		QualifyingModels: len(qualifying),
		AgreeingModels:   votes[winning],
		WinningSide:      winning,
		RegimeType:       string(dc.Regime.Type),
	}

	if votes[winning] < v.cfg.MinAgreeingModels {
		gr.Reason = fmt.Sprintf("%d of %d required models agree on %s", votes[winning], v.cfg.MinAgreeingModels, winning)
		gr.ReasonCode = ReasonN2InsufficientModels
		return gr
	}

	if conflict, why := regimeConflict(dc.Regime, dc.Feature, winning); conflict {
		gr.Reason = why
		gr.ReasonCode = ReasonN2RegimeConflict
		return gr
	}

	gr.Passed = true
	gr.Reason = fmt.Sprintf("%d models agree on %s", votes[winning], winning)
	gr.ReasonCode = ReasonN2OK
	return gr
}

func regimeConflict(r regime.MarketRegime, f models.MicrostructuralFeature, side models.Side) (bool, string) {
	switch r.Type {
	case regime.RegimeTrending:
		if f.Momentum > 0 && side != models.SideBuy {
			return true, "trend regime with positive momentum requires BUY"
		}
		if f.Momentum < 0 && side != models.SideSell {
			return true, "trend regime with negative momentum requires SELL"
		}
	case regime.RegimeMeanReverting:
		// Contrarian to order flow: fade the pressure.
		if f.OrderFlowImbalance > 0 && side != models.SideSell {
			return true, "mean-reversion regime with buy pressure requires SELL"
		}
		if f.OrderFlowImbalance < 0 && side != models.SideBuy {
			return true, "mean-reversion regime with sell pressure requires BUY"
		}
	}
	return false, ""
}

// gateN3 checks account risk limits and the external kill switch.
func (v *Validator) gateN3(dc DecisionContext, intended models.Side) GateResult {
	gr := GateResult{Gate: GateN3}

	maxCorr := 0.0
	for _, pos := range dc.OpenPositions {
		if c := decisionCorrelation(pos, dc.Symbol, intended); c > maxCorr {
			maxCorr = c
		}
	}

	gr.Risk = &RiskMeta{
		DailyPnL:       dc.Risk.DailyPnL,
		Drawdown:       dc.Risk.Drawdown,
		OpenPositions:  len(dc.OpenPositions),
		MaxCorrelation: maxCorr,
	}

	lossLimit := dc.Balance * v.cfg.DailyLossLimitPct

	switch {
	case dc.Balance <= 0:
		gr.Reason = fmt.Sprintf("invalid account balance %.2f", dc.Balance)
		gr.ReasonCode = ReasonN3DailyLossLimit
	case dc.Risk.DailyPnL <= -lossLimit:
		gr.Reason = fmt.Sprintf("daily pnl %.2f breaches -%.2f", dc.Risk.DailyPnL, lossLimit)
		gr.ReasonCode = ReasonN3DailyLossLimit
	case dc.Risk.Drawdown >= v.cfg.MaxDrawdown:
		gr.Reason = fmt.Sprintf("drawdown %.1f%% breaches %.1f%%", dc.Risk.Drawdown*100, v.cfg.MaxDrawdown*100)
		gr.ReasonCode = ReasonN3DrawdownLimit
	case len(dc.OpenPositions) >= v.cfg.MaxOpenPositions:
		gr.Reason = fmt.Sprintf("%d open positions at cap %d", len(dc.OpenPositions), v.cfg.MaxOpenPositions)
		gr.ReasonCode = ReasonN3PositionLimit
	case maxCorr > v.cfg.MaxCorrelation:
		gr.Reason = fmt.Sprintf("correlation %.2f with open positions exceeds %.2f", maxCorr, v.cfg.MaxCorrelation)
		gr.ReasonCode = ReasonN3CorrelationLimit
	case v.killSwitch != nil && v.killSwitch.Engaged():
		gr.Reason = "kill switch engaged"
		gr.ReasonCode = ReasonN3KillSwitch
	default:
		gr.Passed = true
		gr.Reason = "risk limits clear"
		gr.ReasonCode = ReasonN3OK
	}
	return gr
}

// decisionCorrelation is the coarse categorical overlap heuristic used at
// decision time: identical intent 0.9, same symbol 0.8, else uncorrelated.
func decisionCorrelation(pos models.Position, symbol string, side models.Side) float64 {
	if pos.Symbol != symbol {
		return 0.0
	}
	if side != models.SideHold && pos.Side == side {
		return 0.9
	}
	return 0.8
}

// gateN4 checks execution feasibility from the liquidity regime, the
// spread-implied market impact, and the exchange rate-limit state.
func (v *Validator) gateN4(dc DecisionContext) GateResult {
	gr := GateResult{Gate: GateN4}

	liquidity := string(dc.Regime.Liquidity)
	fillProb := fillProbability(liquidity)
	impactBps := dc.Feature.RelativeSpreadBps / 2 * impactMultiplier(liquidity)

	gr.Execution = &ExecutionMeta{
		FillProbability: fillProb,
		ImpactBps:       impactBps,
		Liquidity:       liquidity,
	}

	switch {
	case fillProb < v.cfg.MinFillProbability:
		gr.Reason = fmt.Sprintf("fill probability %.2f below %.2f (%s liquidity)", fillProb, v.cfg.MinFillProbability, liquidity)
		gr.ReasonCode = ReasonN4LowFillProbability
	case impactBps > v.cfg.MaxImpactBps:
		gr.Reason = fmt.Sprintf("estimated impact %.1fbps exceeds %.1fbps", impactBps, v.cfg.MaxImpactBps)
		gr.ReasonCode = ReasonN4HighImpact
	case v.limiter != nil && !v.limiter.Allow(dc.Venue):
		gr.Reason = fmt.Sprintf("venue %s rate limited", dc.Venue)
		gr.ReasonCode = ReasonN4RateLimited
	case dc.Regime.Liquidity == regime.LevelMedium:
		gr.Passed = true
		gr.Reason = "feasible on marginal liquidity"
		gr.ReasonCode = ReasonN4MarginalLiquidity
	default:
		gr.Passed = true
		gr.Reason = "execution feasible"
		gr.ReasonCode = ReasonN4OK
	}
	return gr
}

// gateN5 is final arbitration: ensemble-wide floors plus a requirement
// that at least MinOKGates of the prior gates passed cleanly.
func (v *Validator) gateN5(dc DecisionContext, prior []GateResult) GateResult {
	gr := GateResult{Gate: GateN5}

	var sumProb, sumAbsBps float64
	for _, p := range dc.Predictions {
		sumProb += p.Probability
		sumAbsBps += math.Abs(p.ExpectedBps)
	}
	n := float64(len(dc.Predictions))
	avgProb, avgAbsBps := 0.0, 0.0
	if n > 0 {
		avgProb = sumProb / n
		avgAbsBps = sumAbsBps / n
	}

	okGates := 0
	for _, g := range prior {
		if g.Passed && g.ReasonCode.OK() {
			okGates++
		}
	}

	edge := -1.0
	if best, ok := bestPrediction(dc.Predictions); ok {
		edge = kellyEdge(best)
	}

	gr.Arbitration = &ArbitrationMeta{
		AvgProbability: avgProb,
		AvgAbsBps:      avgAbsBps,
		KellyEdge:      edge,
		OKGates:        okGates,
	}

	switch {
	case avgProb < v.cfg.MinAvgProbability:
		gr.Reason = fmt.Sprintf("average probability %.3f below %.2f", avgProb, v.cfg.MinAvgProbability)
		gr.ReasonCode = ReasonN5LowAvgProbability
	case avgAbsBps < v.cfg.MinAvgAbsBps:
		gr.Reason = fmt.Sprintf("average |expected| %.1fbps below %.1fbps", avgAbsBps, v.cfg.MinAvgAbsBps)
		gr.ReasonCode = ReasonN5WeakAvgSignal
	case v.positionSize(dc) <= 0:
		// A signal too weak to size is a rejection, never an approved
		// zero-size decision.
		gr.Reason = fmt.Sprintf("kelly edge %.4f sizes the position to zero", edge)
		gr.ReasonCode = ReasonN5NegativeEdge
	case okGates < v.cfg.MinOKGates:
		gr.Reason = fmt.Sprintf("%d clean gates below required %d", okGates, v.cfg.MinOKGates)
		gr.ReasonCode = ReasonN5InsufficientOK
	default:
		gr.Passed = true
		gr.Reason = "arbitration clear"
		gr.ReasonCode = ReasonN5OK
	}
	return gr
}

func bestPrediction(preds []models.ModelPrediction) (models.ModelPrediction, bool) {
	if len(preds) == 0 {
		return models.ModelPrediction{}, false
	}
	best := preds[0]
	for _, p := range preds[1:] {
		if p.Probability > best.Probability {
			best = p
		}
	}
	return best, true
}
