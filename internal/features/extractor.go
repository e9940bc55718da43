// Package features turns analyser frames into feature vectors and summarises
// recordings into a single vector.
package features

import (
	"math"

	"sketchpad/internal/config"
	"sketchpad/internal/sample"
)

// Extractor computes a FeatureVector from one analyser frame. It holds only
// immutable scaling constants, so a single Extractor may be shared between
// goroutines.
type Extractor struct {
	mid              float64
	midpoint         byte
	loudnessScale    float64
	pitchDivisor     float64
	brightnessScale  float64
	roughnessDivisor float64
}

// NewExtractor returns an Extractor using the constants in cfg.
func NewExtractor(cfg config.FeatureConfig) *Extractor {
	return &Extractor{
		mid:              float64(cfg.Midpoint),
		midpoint:         byte(cfg.Midpoint),
		loudnessScale:    cfg.LoudnessScale,
		pitchDivisor:     cfg.PitchDivisor,
		brightnessScale:  cfg.BrightnessScale,
		roughnessDivisor: cfg.RoughnessDivisor,
	}
}

// DefaultExtractor returns an Extractor with the default constants.
func DefaultExtractor() *Extractor {
	return NewExtractor(config.NewConfig().Features)
}

// Extract computes the features of a frame. freq holds byte frequency
// magnitudes and timeData byte time-domain samples centred on the midpoint.
// Either slice may be empty; an empty or silent frame yields the zero vector.
// Extract does not allocate.
func (e *Extractor) Extract(freq, timeData []byte) sample.FeatureVector {
	var fv sample.FeatureVector

	// Loudness: RMS of the centred, normalised waveform.
	if n := len(timeData); n > 0 {
		var sumSq float64
		for _, t := range timeData {
			v := (float64(t) - e.mid) / e.mid
			sumSq += v * v
		}
		fv.Loudness = math.Sqrt(sumSq/float64(n)) * e.loudnessScale
	}

	// Pitch: spectral centroid in bin units.
	var weighted, total float64
	for i, f := range freq {
		weighted += float64(i) * float64(f)
		total += float64(f)
	}
	if total > 0 {
		fv.Pitch = (weighted / total) / e.pitchDivisor
	}
	fv.Brightness = fv.Pitch * e.brightnessScale

	// Roughness: upward crossings of the midpoint.
	crossings := 0
	for i := 1; i < len(timeData); i++ {
		if timeData[i-1] <= e.midpoint && timeData[i] > e.midpoint {
			crossings++
		}
	}
	fv.Roughness = float64(crossings) / e.roughnessDivisor

	return fv
}
