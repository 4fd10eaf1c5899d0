// Package regime classifies per-symbol market condition (trend vs
// mean-reversion, liquidity, volatility) from a rolling window of
// microstructural features.
package regime

import (
	"math"
	"sync"
	"time"

	"github.com/quantfall/tradegate/internal/models"
)

// RegimeType labels the directional character of the market.
type RegimeType string

const (
	RegimeTrending      RegimeType = "TRENDING"
	RegimeMeanReverting RegimeType = "MEAN_REVERTING"
	RegimeUnknown       RegimeType = "UNKNOWN"
)

// Level is a coarse tier used for liquidity and volatility.
type Level string

const (
	LevelHigh   Level = "HIGH"
	LevelMedium Level = "MEDIUM"
	LevelLow    Level = "LOW"
)

// MarketRegime is one classification output for a symbol.
type MarketRegime struct {
	Symbol                string     `json:"symbol"`
	Timestamp             time.Time  `json:"ts"`
	Type                  RegimeType `json:"type"`
	Liquidity             Level      `json:"liquidity"`
	Volatility            Level      `json:"volatility"`
	Confidence            float64    `json:"confidence"` // [0, 1]
	TrendStrength         float64    `json:"trend_strength"`
	MeanReversionStrength float64    `json:"mean_reversion_strength"`
	LiquidityScore        float64    `json:"liquidity_score"`
	VolatilityScore       float64    `json:"volatility_score"`
	SampleCount           int        `json:"sample_count"`
}

// Config holds the classification thresholds.
type Config struct {
	WindowCapacity   int     `yaml:"window_capacity"`    // feature ring size per symbol
	HistoryCapacity  int     `yaml:"history_capacity"`   // regime history ring size per symbol
	MinSamples       int     `yaml:"min_samples"`        // below this the type is UNKNOWN
	FullConfidenceAt int     `yaml:"full_confidence_at"` // below this confidence is scaled down
	TrendThreshold   float64 `yaml:"trend_threshold"`
	LiquidityHigh    float64 `yaml:"liquidity_high"`
	LiquidityLow     float64 `yaml:"liquidity_low"`
	VolatilityHigh   float64 `yaml:"volatility_high"` // e.g. 0.05 = 5%
	VolatilityLow    float64 `yaml:"volatility_low"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		WindowCapacity:   200,
		HistoryCapacity:  100,
		MinSamples:       5,
		FullConfidenceAt: 20,
		TrendThreshold:   0.6,
		LiquidityHigh:    0.7,
		LiquidityLow:     0.3,
		VolatilityHigh:   0.05,
		VolatilityLow:    0.01,
	}
}

// Detector owns the per-symbol feature windows and regime history.
// Writes are single-writer per symbol; readers always observe a
// fully-formed prior value.
type Detector struct {
	mu      sync.RWMutex
	cfg     Config
	windows map[string]*featureWindow
	history map[string][]MarketRegime
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg Config) *Detector {
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig().WindowCapacity
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultConfig().HistoryCapacity
	}
	return &Detector{
		cfg:     cfg,
		windows: make(map[string]*featureWindow),
		history: make(map[string][]MarketRegime),
	}
}

// Observe appends a feature snapshot to the symbol's rolling window,
// evicting the oldest entry once the window is at capacity.
func (d *Detector) Observe(feature models.MicrostructuralFeature) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[feature.Symbol]
	if !ok {
		w = newFeatureWindow(d.cfg.WindowCapacity)
		d.windows[feature.Symbol] = w
	}
	w.push(feature)
}

// DetectRegime classifies the symbol's current regime from its window and
// appends the result to the capped per-symbol history. The classification
// itself is a pure function of the window contents and fixed thresholds.
func (d *Detector) DetectRegime(symbol string) MarketRegime {
	d.mu.Lock()
	defer d.mu.Unlock()

	var features []models.MicrostructuralFeature
	if w, ok := d.windows[symbol]; ok {
		features = w.snapshot()
	}

	regime := d.classify(symbol, features)

	hist := append(d.history[symbol], regime)
	if len(hist) > d.cfg.HistoryCapacity {
		hist = hist[len(hist)-d.cfg.HistoryCapacity:]
	}
	d.history[symbol] = hist

	return regime
}

// LatestRegime returns the most recent detection for the symbol, if any.
func (d *Detector) LatestRegime(symbol string) (MarketRegime, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hist := d.history[symbol]
	if len(hist) == 0 {
		return MarketRegime{}, false
	}
	return hist[len(hist)-1], true
}

// History returns up to limit recent detections, newest last.
func (d *Detector) History(symbol string, limit int) []MarketRegime {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hist := d.history[symbol]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]MarketRegime, len(hist))
	copy(out, hist)
	return out
}

// LatestFeature returns the newest feature in the symbol's window.
func (d *Detector) LatestFeature(symbol string) (models.MicrostructuralFeature, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.windows[symbol]
	if !ok || w.size() == 0 {
		return models.MicrostructuralFeature{}, false
	}
	return w.last(), true
}

func (d *Detector) classify(symbol string, features []models.MicrostructuralFeature) MarketRegime {
	n := len(features)

	regime := MarketRegime{
		Symbol:      symbol,
		Timestamp:   time.Now(),
		Type:        RegimeUnknown,
		Liquidity:   LevelMedium,
		Volatility:  LevelMedium,
		SampleCount: n,
	}
	if n > 0 {
		regime.Timestamp = features[n-1].Timestamp
	}

	if n < d.cfg.MinSamples {
		return regime
	}

	trend, meanRev := trendStrengths(features)
	regime.TrendStrength = trend
	regime.MeanReversionStrength = meanRev
	switch {
	case trend >= d.cfg.TrendThreshold:
		regime.Type = RegimeTrending
	case meanRev >= d.cfg.TrendThreshold:
		regime.Type = RegimeMeanReverting
	}

	liqScore := liquidityScore(features)
	regime.LiquidityScore = liqScore
	switch {
	case liqScore >= d.cfg.LiquidityHigh:
		regime.Liquidity = LevelHigh
	case liqScore <= d.cfg.LiquidityLow:
		regime.Liquidity = LevelLow
	}

	avgVol := 0.0
	for _, f := range features {
		avgVol += f.RealizedVol
	}
	avgVol /= float64(n)
	regime.VolatilityScore = math.Min(avgVol*10, 1.0)
	switch {
	case avgVol >= d.cfg.VolatilityHigh:
		regime.Volatility = LevelHigh
	case avgVol <= d.cfg.VolatilityLow:
		regime.Volatility = LevelLow
	}

	confidence := 0.6*math.Max(trend, meanRev) + 0.4*(liqScore+regime.VolatilityScore)/2
	if n < d.cfg.FullConfidenceAt {
		confidence *= float64(n) / float64(d.cfg.FullConfidenceAt)
	}
	regime.Confidence = confidence

	return regime
}

// trendStrengths blends lag-1 return autocorrelation (70%) with average
// absolute micro-momentum (30%, capped) into a [0,1] trend strength.
func trendStrengths(features []models.MicrostructuralFeature) (trend, meanRev float64) {
	returns := make([]float64, 0, len(features)-1)
	for i := 1; i < len(features); i++ {
		prev := features[i-1].MidPrice
		if prev > 0 {
			returns = append(returns, (features[i].MidPrice-prev)/prev)
		}
	}

	ac := lag1Autocorrelation(returns)
	acScore := (ac + 1) / 2

	avgMomentum := 0.0
	for _, f := range features {
		avgMomentum += math.Abs(f.Momentum)
	}
	avgMomentum /= float64(len(features))
	momentumScore := math.Min(avgMomentum, 1.0)

	trend = 0.7*acScore + 0.3*momentumScore
	return trend, 1 - trend
}

func lag1Autocorrelation(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var num, den float64
	for i := 0; i < len(returns)-1; i++ {
		num += (returns[i] - mean) * (returns[i+1] - mean)
	}
	for _, r := range returns {
		den += (r - mean) * (r - mean)
	}
	if den == 0 {
		return 0
	}
	ac := num / den
	return math.Max(-1, math.Min(1, ac))
}

// liquidityScore blends spread (40%), tick volume (40%) and book balance
// (20%) into a [0,1] score.
func liquidityScore(features []models.MicrostructuralFeature) float64 {
	var avgSpread, avgVolume, avgImbalance float64
	for _, f := range features {
		avgSpread += f.RelativeSpreadBps
		avgVolume += f.TickVolume
		avgImbalance += math.Abs(f.QueueImbalance)
	}
	n := float64(len(features))
	avgSpread /= n
	avgVolume /= n
	avgImbalance /= n

	spreadScore := math.Max(0, 1-avgSpread/100)
	volumeScore := math.Min(1, avgVolume/100)
	depthScore := 1 - avgImbalance

	return 0.4*spreadScore + 0.4*volumeScore + 0.2*depthScore
}
