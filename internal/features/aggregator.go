package features

import (
	"math"

	"sketchpad/internal/sample"
)

// Aggregator accumulates feature vectors over a recording and summarises them
// on Finalize. It is not safe for concurrent use; the session serialises
// access under its own lock.
type Aggregator struct {
	sum        [sample.FeatureDim]float64
	peak       [sample.FeatureDim]float64
	count      int
	peakBlend  bool
	meanWeight float64
}

// NewAggregator returns an empty Aggregator. With peakBlend set, Finalize
// returns meanWeight*mean + (1-meanWeight)*peak per component.
func NewAggregator(peakBlend bool, meanWeight float64) *Aggregator {
	return &Aggregator{peakBlend: peakBlend, meanWeight: meanWeight}
}

// Accumulate adds one frame.
func (a *Aggregator) Accumulate(fv sample.FeatureVector) {
	for i, v := range [sample.FeatureDim]float64{fv.Loudness, fv.Pitch, fv.Brightness, fv.Roughness} {
		a.sum[i] += v
		if a.count == 0 || v > a.peak[i] {
			a.peak[i] = v
		}
	}
	a.count++
}

// Count returns the number of frames accumulated since the last Reset.
func (a *Aggregator) Count() int {
	return a.count
}

// Finalize returns the summary vector, or the zero vector when no frame was
// accumulated.
func (a *Aggregator) Finalize() sample.FeatureVector {
	if a.count == 0 {
		return sample.FeatureVector{}
	}
	var out [sample.FeatureDim]float64
	n := float64(a.count)
	for i := range out {
		mean := a.sum[i] / n
		if a.peakBlend {
			out[i] = a.meanWeight*mean + (1-a.meanWeight)*a.peak[i]
		} else {
			out[i] = mean
		}
		// Floating error must not push a zero-mean component negative.
		out[i] = math.Max(0, out[i])
	}
	return sample.FeatureVector{Loudness: out[0], Pitch: out[1], Brightness: out[2], Roughness: out[3]}
}

// Reset clears all accumulated state.
func (a *Aggregator) Reset() {
	a.sum = [sample.FeatureDim]float64{}
	a.peak = [sample.FeatureDim]float64{}
	a.count = 0
}
