package regime

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/tradegate/internal/models"
)

func trendingFeatures(symbol string, n int) []models.MicrostructuralFeature {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.MicrostructuralFeature, 0, n)
	price := 50000.0
	for i := 0; i < n; i++ {
		// Monotone drift produces near-constant returns whose lag-1
		// autocorrelation is strongly positive.
		price *= 1 + 0.001*(1+0.2*math.Sin(float64(i)))
		out = append(out, models.MicrostructuralFeature{
			Symbol:            symbol,
			Timestamp:         base.Add(time.Duration(i) * time.Second),
			MidPrice:          price,
			RelativeSpreadBps: 2,
			TickVolume:        150,
			QueueImbalance:    0.1,
			Momentum:          0.8,
			RealizedVol:       0.02,
		})
	}
	return out
}

func choppyFeatures(symbol string, n int) []models.MicrostructuralFeature {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.MicrostructuralFeature, 0, n)
	for i := 0; i < n; i++ {
		// Strict price alternation gives lag-1 autocorrelation near -1.
		price := 50000.0
		if i%2 == 1 {
			price = 50500.0
		}
		out = append(out, models.MicrostructuralFeature{
			Symbol:            symbol,
			Timestamp:         base.Add(time.Duration(i) * time.Second),
			MidPrice:          price,
			RelativeSpreadBps: 4,
			TickVolume:        80,
			QueueImbalance:    0.2,
			Momentum:          0.05,
			RealizedVol:       0.008,
		})
	}
	return out
}

func TestDetectRegimeUnknownBelowMinSamples(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for _, f := range trendingFeatures("BTCUSDT", 4) {
		d.Observe(f)
	}
	r := d.DetectRegime("BTCUSDT")

	assert.Equal(t, RegimeUnknown, r.Type)
	assert.Equal(t, 4, r.SampleCount)
	assert.Zero(t, r.Confidence)
	assert.Equal(t, LevelMedium, r.Liquidity)
	assert.Equal(t, LevelMedium, r.Volatility)
}

func TestDetectRegimeUnknownSymbol(t *testing.T) {
	d := NewDetector(DefaultConfig())

	r := d.DetectRegime("NOPE")
	assert.Equal(t, RegimeUnknown, r.Type)
	assert.Zero(t, r.SampleCount)

	_, ok := d.LatestFeature("NOPE")
	assert.False(t, ok)
}

func TestDetectRegimeClassifiesTrend(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for _, f := range trendingFeatures("BTCUSDT", 50) {
		d.Observe(f)
	}
	r := d.DetectRegime("BTCUSDT")

	assert.Equal(t, RegimeTrending, r.Type)
	assert.GreaterOrEqual(t, r.TrendStrength, 0.6)
	assert.Equal(t, LevelHigh, r.Liquidity)
	assert.Equal(t, LevelMedium, r.Volatility)
	assert.Greater(t, r.Confidence, 0.0)
	assert.LessOrEqual(t, r.Confidence, 1.0)
}

func TestDetectRegimeClassifiesMeanReversion(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for _, f := range choppyFeatures("ETHUSDT", 50) {
		d.Observe(f)
	}
	r := d.DetectRegime("ETHUSDT")

	assert.Equal(t, RegimeMeanReverting, r.Type)
	assert.GreaterOrEqual(t, r.MeanReversionStrength, 0.6)
	assert.Equal(t, LevelLow, r.Volatility)
	assert.InDelta(t, 1.0, r.TrendStrength+r.MeanReversionStrength, 1e-9)
}

func TestDetectRegimeDeterministicForSameWindow(t *testing.T) {
	a := NewDetector(DefaultConfig())
	b := NewDetector(DefaultConfig())

	feats := trendingFeatures("BTCUSDT", 30)
	for _, f := range feats {
		a.Observe(f)
		b.Observe(f)
	}

	ra := a.DetectRegime("BTCUSDT")
	rb := b.DetectRegime("BTCUSDT")

	assert.Equal(t, ra.Type, rb.Type)
	assert.Equal(t, ra.TrendStrength, rb.TrendStrength)
	assert.Equal(t, ra.LiquidityScore, rb.LiquidityScore)
	assert.Equal(t, ra.VolatilityScore, rb.VolatilityScore)
	assert.Equal(t, ra.Confidence, rb.Confidence)
}

func TestDetectRegimeConfidenceScalesWithSamples(t *testing.T) {
	d := NewDetector(DefaultConfig())

	feats := trendingFeatures("BTCUSDT", 10)
	for _, f := range feats {
		d.Observe(f)
	}
	small := d.DetectRegime("BTCUSDT")

	for _, f := range trendingFeatures("BTCUSDT", 40) {
		d.Observe(f)
	}
	full := d.DetectRegime("BTCUSDT")

	assert.Less(t, small.Confidence, full.Confidence)
}

func TestDetectRegimeHighVolatility(t *testing.T) {
	d := NewDetector(DefaultConfig())

	feats := trendingFeatures("BTCUSDT", 30)
	for i := range feats {
		feats[i].RealizedVol = 0.08
	}
	for _, f := range feats {
		d.Observe(f)
	}
	r := d.DetectRegime("BTCUSDT")

	assert.Equal(t, LevelHigh, r.Volatility)
	assert.InDelta(t, 0.8, r.VolatilityScore, 1e-9)
}

func TestObserveEvictsBeyondWindowCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowCapacity = 10
	d := NewDetector(cfg)

	for _, f := range trendingFeatures("BTCUSDT", 25) {
		d.Observe(f)
	}
	r := d.DetectRegime("BTCUSDT")
	assert.Equal(t, 10, r.SampleCount)

	last, ok := d.LatestFeature("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, trendingFeatures("BTCUSDT", 25)[24].Timestamp, last.Timestamp)
}

func TestHistoryCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 5
	d := NewDetector(cfg)

	for _, f := range trendingFeatures("BTCUSDT", 30) {
		d.Observe(f)
	}
	for i := 0; i < 12; i++ {
		d.DetectRegime("BTCUSDT")
	}

	hist := d.History("BTCUSDT", 0)
	assert.Len(t, hist, 5)

	latest, ok := d.LatestRegime("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, hist[len(hist)-1], latest)
}

func TestDetectorSymbolIsolation(t *testing.T) {
	d := NewDetector(DefaultConfig())

	for _, f := range trendingFeatures("BTCUSDT", 30) {
		d.Observe(f)
	}
	for _, f := range choppyFeatures("ETHUSDT", 30) {
		d.Observe(f)
	}

	btc := d.DetectRegime("BTCUSDT")
	eth := d.DetectRegime("ETHUSDT")

	assert.Equal(t, RegimeTrending, btc.Type)
	assert.Equal(t, RegimeMeanReverting, eth.Type)
}

func TestDetectorConcurrentObserveAndDetect(t *testing.T) {
	d := NewDetector(DefaultConfig())

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			symbol := fmt.Sprintf("SYM%d", g%2)
			for _, f := range trendingFeatures(symbol, 100) {
				d.Observe(f)
				d.DetectRegime(symbol)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	_, ok := d.LatestRegime("SYM0")
	assert.True(t, ok)
}
