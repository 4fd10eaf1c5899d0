package gates

import (
	"math"

	"github.com/quantfall/tradegate/internal/models"
)

// decideAction picks the side with the larger confidence-weighted
// probability mass across all predictions.
func decideAction(preds []models.ModelPrediction) models.Side {
	mass := map[models.Side]float64{}
	for _, p := range preds {
		mass[p.Direction()] += p.Confidence * p.Probability
	}
	if mass[models.SideSell] > mass[models.SideBuy] {
		return models.SideSell
	}
	return models.SideBuy
}

// positionSize computes the fractional-Kelly dollar size for an approved
// decision: quarter-Kelly on the best prediction, capped at
// MaxPositionSizePct of balance, scaled by mean ensemble confidence, then
// re-capped.
func (v *Validator) positionSize(dc DecisionContext) float64 {
	best, ok := bestPrediction(dc.Predictions)
	if !ok || dc.Balance <= 0 {
		return 0
	}

	r := math.Abs(best.ExpectedBps) / 100
	if r == 0 {
		return 0
	}
	kelly := kellyEdge(best) / r

	fraction := v.cfg.KellyFraction * kelly
	if fraction < 0 {
		fraction = 0
	}
	if fraction > v.cfg.MaxPositionSizePct {
		fraction = v.cfg.MaxPositionSizePct
	}

	meanConf := 0.0
	for _, pred := range dc.Predictions {
		meanConf += pred.Confidence
	}
	meanConf /= float64(len(dc.Predictions))

	size := dc.Balance * fraction * meanConf
	if limit := dc.Balance * v.cfg.MaxPositionSizePct; size > limit {
		size = limit
	}
	return size
}

// kellyEdge is the raw Kelly numerator p*r - (1-p) for one prediction.
// Expected return enters in percent units; basis points would make the
// edge negative for any realistic signal. A zero-return signal has no
// edge by definition.
func kellyEdge(pred models.ModelPrediction) float64 {
	r := math.Abs(pred.ExpectedBps) / 100
	if r == 0 {
		return -1
	}
	return pred.Probability*r - (1 - pred.Probability)
}

// expectedValue is the confidence-and-probability-weighted average of
// expected returns across all predictions, zero when no weight exists.
func expectedValue(preds []models.ModelPrediction) float64 {
	var weighted, totalWeight float64
	for _, p := range preds {
		w := p.Confidence * p.Probability
		weighted += w * p.ExpectedBps
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}
