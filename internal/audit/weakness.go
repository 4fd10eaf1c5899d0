package audit

import (
	"fmt"
	"math"
	"sort"
)

// rankWeaknesses combines trade-level evidence, bottlenecks and biases
// into the capped top-weaknesses list, worst first.
func rankWeaknesses(cfg Config, audited []TradeAuditMetrics, bottlenecks []BottleneckAnalysis, biases []BiasDetection) []Weakness {
	var out []Weakness

	if w, ok := violationWeakness(audited); ok {
		out = append(out, w)
	}
	if w, ok := slippageWeakness(audited); ok {
		out = append(out, w)
	}
	if w, ok := latencyWeakness(cfg, audited); ok {
		out = append(out, w)
	}

	for _, b := range bottlenecks {
		if b.Impact != ImpactHigh {
			continue
		}
		out = append(out, Weakness{
			Issue:          fmt.Sprintf("%s exceeds the trading cycle budget", b.Component),
			Impact:         b.Impact,
			AffectedTrades: len(audited),
			ExpectedGain:   "restores the full cycle budget to downstream stages",
			Recommendation: firstOr(b.Suggestions, "profile and parallelize the stage"),
			Score:          5 + b.Latency.MeanMs/cfg.CycleBudgetMs,
		})
	}

	for _, b := range biases {
		if b.Severity < 5 {
			continue
		}
		out = append(out, Weakness{
			Issue:          b.Name,
			Impact:         impactForSeverity(b.Severity),
			AffectedTrades: len(audited),
			ExpectedGain:   "removes a systemic decision bias",
			Recommendation: firstOr(b.Evidence, "investigate the detected pattern"),
			Score:          b.Severity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > cfg.MaxWeaknesses {
		out = out[:cfg.MaxWeaknesses]
	}
	return out
}

func violationWeakness(audited []TradeAuditMetrics) (Weakness, bool) {
	counts := map[Violation]int{}
	for _, m := range audited {
		for _, v := range m.Violations.List() {
			counts[v]++
		}
	}
	var worst Violation
	for v, c := range counts {
		if worst == "" || c > counts[worst] {
			worst = v
		}
	}
	if worst == "" {
		return Weakness{}, false
	}

	return Weakness{
		Issue:          fmt.Sprintf("repeated %s violations", worst),
		Impact:         impactForShare(float64(counts[worst]) / float64(len(audited))),
		AffectedTrades: counts[worst],
		ExpectedGain:   "fewer limit breaches, lower tail risk",
		Recommendation: recommendationForViolation(worst),
		Score:          float64(counts[worst]) / float64(len(audited)) * 10,
	}, true
}

func slippageWeakness(audited []TradeAuditMetrics) (Weakness, bool) {
	if len(audited) == 0 {
		return Weakness{}, false
	}
	var sum float64
	affected := 0
	for _, m := range audited {
		abs := math.Abs(m.Execution.SlippageBps)
		sum += abs
		if abs > 10 {
			affected++
		}
	}
	avg := sum / float64(len(audited))
	if avg <= 5 {
		return Weakness{}, false
	}

	return Weakness{
		Issue:          fmt.Sprintf("average slippage %.1fbps erodes expected edge", avg),
		Impact:         impactForShare(avg / 20),
		AffectedTrades: affected,
		ExpectedGain:   fmt.Sprintf("recovers up to %.1fbps per trade", avg-5),
		Recommendation: "use passive entries on marginal-liquidity books and tighten the impact gate",
		Score:          avg / 2,
	}, true
}

func latencyWeakness(cfg Config, audited []TradeAuditMetrics) (Weakness, bool) {
	affected := 0
	for _, m := range audited {
		if m.Execution.LatencyMs > cfg.LatencyLimitMs {
			affected++
		}
	}
	if affected == 0 {
		return Weakness{}, false
	}
	share := float64(affected) / float64(len(audited))

	return Weakness{
		Issue:          fmt.Sprintf("%d trades filled slower than %.0fms", affected, cfg.LatencyLimitMs),
		Impact:         impactForShare(share),
		AffectedTrades: affected,
		ExpectedGain:   "fills closer to decision price, less adverse selection",
		Recommendation: "raise the max concurrent trade budget only after order latency is back under limit",
		Score:          share * 8,
	}, true
}

func recommendationForViolation(v Violation) string {
	switch v {
	case ViolationPositionLimit:
		return "enforce the position cap upstream of order placement"
	case ViolationDailyLoss:
		return "halt new entries earlier in the daily loss curve"
	case ViolationDrawdown:
		return "lower the drawdown cap until calibration improves"
	case ViolationLatency:
		return "investigate order routing latency"
	}
	return "review limit configuration"
}

func impactForShare(share float64) ImpactTier {
	switch {
	case share >= 0.5:
		return ImpactHigh
	case share >= 0.2:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func impactForSeverity(severity float64) ImpactTier {
	switch {
	case severity >= 7:
		return ImpactHigh
	case severity >= 4:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
