// Package latency provides thread-safe rolling latency histograms for the
// decision and audit pipeline stages.
package latency

import (
	"math"
	"sort"
	"sync"
	"time"
)

// StageType names a pipeline stage tracked for latency.
type StageType string

const (
	StageData  StageType = "data"  // feed freshness query
	StageGate  StageType = "gate"  // N0..N5 evaluation
	StageOrder StageType = "order" // placement to fill
	StageAudit StageType = "audit" // per-trade audit
)

// Histogram tracks latencies over a rolling window with percentile
// calculation.
type Histogram struct {
	mu      sync.RWMutex
	buckets []float64 // milliseconds
	maxSize int
	current int
	full    bool
	stage   StageType
}

// NewHistogram creates a histogram for one stage with the given rolling
// window size.
func NewHistogram(stage StageType, maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Histogram{
		buckets: make([]float64, maxSize),
		maxSize: maxSize,
		stage:   stage,
	}
}

// Stage returns the stage this histogram tracks.
func (h *Histogram) Stage() StageType { return h.stage }

// Record adds a latency measurement.
func (h *Histogram) Record(duration time.Duration) {
	latencyMs := float64(duration.Nanoseconds()) / 1e6

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buckets[h.current] = latencyMs
	h.current = (h.current + 1) % h.maxSize
	if !h.full && h.current == 0 {
		h.full = true
	}
}

// RecordMs adds a latency measurement already expressed in milliseconds.
func (h *Histogram) RecordMs(latencyMs float64) {
	h.Record(time.Duration(latencyMs * float64(time.Millisecond)))
}

// Percentile calculates the given percentile (0.0-1.0) over the window.
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.size()
	if size == 0 {
		return 0.0
	}

	values := make([]float64, size)
	if h.full {
		copy(values, h.buckets)
	} else {
		copy(values, h.buckets[:h.current])
	}
	sort.Float64s(values)

	idx := int(math.Ceil(p*float64(size))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= size {
		idx = size - 1
	}
	return values[idx]
}

// Mean returns the average latency over the window in milliseconds.
func (h *Histogram) Mean() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.size()
	if size == 0 {
		return 0.0
	}

	sum := 0.0
	if h.full {
		for _, v := range h.buckets {
			sum += v
		}
	} else {
		for _, v := range h.buckets[:h.current] {
			sum += v
		}
	}
	return sum / float64(size)
}

// Count returns the number of samples currently in the window.
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size()
}

func (h *Histogram) size() int {
	if h.full {
		return h.maxSize
	}
	return h.current
}

// Summary is a point-in-time view of one stage's latency distribution.
type Summary struct {
	Stage  StageType `json:"stage"`
	Count  int       `json:"count"`
	MeanMs float64   `json:"mean_ms"`
	P50Ms  float64   `json:"p50_ms"`
	P95Ms  float64   `json:"p95_ms"`
	P99Ms  float64   `json:"p99_ms"`
}

// Snapshot produces a summary of the current window.
func (h *Histogram) Snapshot() Summary {
	return Summary{
		Stage:  h.stage,
		Count:  h.Count(),
		MeanMs: h.Mean(),
		P50Ms:  h.Percentile(0.50),
		P95Ms:  h.Percentile(0.95),
		P99Ms:  h.Percentile(0.99),
	}
}

// Registry holds one histogram per pipeline stage.
type Registry struct {
	mu    sync.RWMutex
	hists map[StageType]*Histogram
	size  int
}

// NewRegistry creates a registry whose histograms use the given window.
func NewRegistry(windowSize int) *Registry {
	return &Registry{
		hists: make(map[StageType]*Histogram),
		size:  windowSize,
	}
}

// Stage returns (creating if needed) the histogram for a stage.
func (r *Registry) Stage(stage StageType) *Histogram {
	r.mu.RLock()
	h, ok := r.hists[stage]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hists[stage]; ok {
		return h
	}
	h = NewHistogram(stage, r.size)
	r.hists[stage] = h
	return h
}

// Snapshots returns summaries for every tracked stage.
func (r *Registry) Snapshots() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.hists))
	for _, h := range r.hists {
		out = append(out, h.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
