package audit

import (
	"fmt"
	"math"

	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

// DetectBiases scans the audited sample for known systemic decision
// patterns. Severity runs 0-10; only biases with supporting evidence are
// reported.
func (a *Auditor) DetectBiases(audited []TradeAuditMetrics, failed int) []BiasDetection {
	var out []BiasDetection

	if b, ok := confidenceThresholdBias(audited); ok {
		out = append(out, b)
	}
	if b, ok := a.sequentialScanBias(); ok {
		out = append(out, b)
	}
	if b, ok := providerRateLimitBias(audited, failed); ok {
		out = append(out, b)
	}
	return out
}

// confidenceThresholdBias fires when the trades that did get through win
// at a high rate on modest recorded confidence: the confidence floor is
// rejecting otherwise-valid trades.
func confidenceThresholdBias(audited []TradeAuditMetrics) (BiasDetection, bool) {
	if len(audited) < 10 {
		return BiasDetection{}, false
	}

	wins, winConf := 0, 0.0
	for _, m := range audited {
		if m.Perf.PnL > 0 {
			wins++
			winConf += m.Quality.Confidence
		}
	}
	if wins == 0 {
		return BiasDetection{}, false
	}
	winRate := float64(wins) / float64(len(audited))
	avgWinConf := winConf / float64(wins)

	if winRate < 0.55 || avgWinConf >= 70 {
		return BiasDetection{}, false
	}

	severity := math.Min(10, (winRate-0.5)*20+(70-avgWinConf)/10)
	return BiasDetection{
		Name:     "confidence threshold rejects otherwise-valid trades",
		Severity: severity,
		Evidence: []string{
			fmt.Sprintf("win rate %.0f%% with average winner confidence %.0f (<70)", winRate*100, avgWinConf),
			fmt.Sprintf("%d of %d audited trades won below the high-confidence band", wins, len(audited)),
		},
	}, true
}

// sequentialScanBias fires when gate-stage latency consumes a material
// share of the trading cycle budget, evidence of per-symbol sequential
// evaluation.
func (a *Auditor) sequentialScanBias() (BiasDetection, bool) {
	summary := a.stages.Stage(latency.StageGate).Snapshot()
	if summary.Count < 10 || summary.P99Ms <= a.cfg.CycleBudgetMs/2 {
		return BiasDetection{}, false
	}

	severity := math.Min(10, summary.P99Ms/a.cfg.CycleBudgetMs*5)
	return BiasDetection{
		Name:     "sequential per-symbol analysis inflates end-to-end latency",
		Severity: severity,
		Evidence: []string{
			fmt.Sprintf("gate stage p99 %.0fms against a %.0fms cycle budget", summary.P99Ms, a.cfg.CycleBudgetMs),
			fmt.Sprintf("%d gate evaluations sampled", summary.Count),
		},
	}, true
}

// providerRateLimitBias fires when a meaningful share of audits failed to
// fetch data, evidence of an upstream provider throttling evaluation.
func providerRateLimitBias(audited []TradeAuditMetrics, failed int) (BiasDetection, bool) {
	total := len(audited) + failed
	if total == 0 || failed == 0 {
		return BiasDetection{}, false
	}
	share := float64(failed) / float64(total)
	if share < 0.05 {
		return BiasDetection{}, false
	}

	return BiasDetection{
		Name:     "upstream data-provider rate limiting blocks evaluation",
		Severity: math.Min(10, share*20),
		Evidence: []string{
			fmt.Sprintf("%d of %d trade audits failed to fetch data (%.0f%%)", failed, total, share*100),
		},
	}, true
}
