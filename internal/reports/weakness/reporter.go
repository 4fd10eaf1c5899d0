// Package weakness turns an audit report and recent regime history into a
// ranked weakness report with recommended risk-budget deltas.
package weakness

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/domain/regime"
)

// BudgetDelta is one recommended change to a risk-budget knob.
type BudgetDelta struct {
	Parameter string  `json:"parameter"`
	Current   string  `json:"current"`
	Proposed  string  `json:"proposed"`
	Rationale string  `json:"rationale"`
	Priority  float64 `json:"priority"`
}

// RankedWeakness augments an audit weakness with estimated improvement.
type RankedWeakness struct {
	audit.Weakness

	EstSharpeGain  float64 `json:"est_sharpe_gain"`
	EstSortinoGain float64 `json:"est_sortino_gain"`
	EstHitRateGain float64 `json:"est_hit_rate_gain"` // percentage points
}

// Report is the reporter's JSON-serializable output.
type Report struct {
	ReportID      string           `json:"report_id"`
	GeneratedAt   time.Time        `json:"generated_at"`
	SourceAuditID string           `json:"source_audit_id"`
	RegimeNote    string           `json:"regime_note,omitempty"`
	Weaknesses    []RankedWeakness `json:"weaknesses"`
	BudgetDeltas  []BudgetDelta    `json:"budget_deltas"`
}

// Reporter is stateless; it only summarizes and recommends.
type Reporter struct{}

// NewReporter creates a reporter.
func NewReporter() *Reporter { return &Reporter{} }

// Build ranks the audit weaknesses with estimated performance gains and
// derives risk-budget recommendations from them and the regime history.
func (r *Reporter) Build(auditReport *audit.AuditReport, regimes []regime.MarketRegime) *Report {
	report := &Report{
		ReportID:      uuid.NewString(),
		GeneratedAt:   time.Now(),
		SourceAuditID: auditReport.ReportID,
		RegimeNote:    regimeNote(regimes),
	}

	for _, w := range auditReport.TopWeaknesses {
		report.Weaknesses = append(report.Weaknesses, estimateGains(w, auditReport.Summary))
	}
	sort.SliceStable(report.Weaknesses, func(i, j int) bool {
		return report.Weaknesses[i].Score > report.Weaknesses[j].Score
	})

	report.BudgetDeltas = budgetDeltas(auditReport)

	log.Info().
		Str("report_id", report.ReportID).
		Int("weaknesses", len(report.Weaknesses)).
		Int("budget_deltas", len(report.BudgetDeltas)).
		Msg("weakness report built")

	return report
}

// estimateGains translates a weakness score into coarse improvement
// estimates. The estimates are narratives, not backtested numbers: they
// scale with the share of trades the weakness touches.
func estimateGains(w audit.Weakness, summary audit.ReportSummary) RankedWeakness {
	scale := w.Score / 10
	if scale > 1 {
		scale = 1
	}

	return RankedWeakness{
		Weakness:       w,
		EstSharpeGain:  0.3 * scale,
		EstSortinoGain: 0.4 * scale,
		EstHitRateGain: 5 * scale * (1 - summary.WinRate),
	}
}

func budgetDeltas(auditReport *audit.AuditReport) []BudgetDelta {
	var out []BudgetDelta

	latencyHealthy := true
	for _, b := range auditReport.Bottlenecks {
		if b.Impact == audit.ImpactHigh {
			latencyHealthy = false
			break
		}
	}

	if latencyHealthy && auditReport.Summary.AvgLatencyMs < 500 && auditReport.TradesAudited > 0 {
		out = append(out, BudgetDelta{
			Parameter: "max_open_positions",
			Current:   "2",
			Proposed:  "3",
			Rationale: fmt.Sprintf("average execution latency %.0fms leaves cycle headroom", auditReport.Summary.AvgLatencyMs),
			Priority:  3,
		})
	}

	for _, b := range auditReport.Biases {
		if b.Name == "confidence threshold rejects otherwise-valid trades" && b.Severity >= 5 {
			out = append(out, BudgetDelta{
				Parameter: "max_drawdown",
				Current:   "8%",
				Proposed:  "6%",
				Rationale: "tighten the drawdown cap until model calibration is re-validated",
				Priority:  b.Severity,
			})
		}
	}

	for _, s := range auditReport.Strategies {
		if s.TotalTrades >= 20 && s.WinRate < 0.4 {
			out = append(out, BudgetDelta{
				Parameter: fmt.Sprintf("strategy_budget.%s", s.Strategy),
				Current:   "100%",
				Proposed:  "50%",
				Rationale: fmt.Sprintf("win rate %.0f%% over %d trades", s.WinRate*100, s.TotalTrades),
				Priority:  6,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

func regimeNote(regimes []regime.MarketRegime) string {
	if len(regimes) == 0 {
		return ""
	}
	latest := regimes[len(regimes)-1]
	changes := 0
	for i := 1; i < len(regimes); i++ {
		if regimes[i].Type != regimes[i-1].Type {
			changes++
		}
	}
	return fmt.Sprintf("current regime %s (%s liquidity, %s volatility), %d regime changes in window",
		latest.Type, latest.Liquidity, latest.Volatility, changes)
}
