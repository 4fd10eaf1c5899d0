package regime

import "github.com/quantfall/tradegate/internal/models"

// featureWindow is a fixed-capacity FIFO ring of feature snapshots.
type featureWindow struct {
	buf     []models.MicrostructuralFeature
	head    int
	count   int
	maxSize int
}

func newFeatureWindow(maxSize int) *featureWindow {
	return &featureWindow{
		buf:     make([]models.MicrostructuralFeature, maxSize),
		maxSize: maxSize,
	}
}

func (w *featureWindow) push(f models.MicrostructuralFeature) {
	w.buf[(w.head+w.count)%w.maxSize] = f
	if w.count < w.maxSize {
		w.count++
	} else {
		w.head = (w.head + 1) % w.maxSize
	}
}

func (w *featureWindow) size() int { return w.count }

func (w *featureWindow) last() models.MicrostructuralFeature {
	return w.buf[(w.head+w.count-1)%w.maxSize]
}

// snapshot returns the window contents oldest-first.
func (w *featureWindow) snapshot() []models.MicrostructuralFeature {
	out := make([]models.MicrostructuralFeature, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%w.maxSize]
	}
	return out
}
