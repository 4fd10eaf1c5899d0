package audit

import (
	"fmt"

	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

// stageSuggestions maps each pipeline stage to its remediation playbook.
var stageSuggestions = map[latency.StageType][]string{
	latency.StageData: {
		"cache feed freshness lookups behind a short TTL",
		"move freshness polling off the decision path",
	},
	latency.StageGate: {
		"evaluate symbols in parallel instead of sequentially",
		"precompute regime classification outside the gate call",
	},
	latency.StageOrder: {
		"colocate order submission with the exchange gateway",
		"reduce order payload round-trips",
	},
	latency.StageAudit: {
		"batch trade, order and snapshot fetches",
		"cache audit results across report runs",
	},
}

// IdentifyBottlenecks compares each stage's latency distribution against
// the trading cycle budget and tiers the impact.
func (a *Auditor) IdentifyBottlenecks() []BottleneckAnalysis {
	var out []BottleneckAnalysis

	for _, summary := range a.stages.Snapshots() {
		if summary.Count == 0 {
			continue
		}

		var impact ImpactTier
		switch {
		case summary.MeanMs > a.cfg.CycleBudgetMs:
			// Average above budget: every cycle blows its allowance.
			impact = ImpactHigh
		case summary.P99Ms > a.cfg.CycleBudgetMs:
			impact = ImpactMedium
		case summary.P99Ms > a.cfg.CycleBudgetMs/2:
			impact = ImpactLow
		default:
			continue
		}

		out = append(out, BottleneckAnalysis{
			Component:   fmt.Sprintf("%s stage", summary.Stage),
			Latency:     summary,
			Impact:      impact,
			Suggestions: stageSuggestions[summary.Stage],
		})
	}
	return out
}
