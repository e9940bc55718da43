package utils

import (
	"math"
	"testing"
)

// upwardCrossings counts negative to non-negative transitions, the same
// crossings the feature extractor counts for roughness.
func upwardCrossings(buf []int32) int {
	n := 0
	for i := 1; i < len(buf); i++ {
		if buf[i-1] < 0 && buf[i] >= 0 {
			n++
		}
	}
	return n
}

func TestGenerateSquareWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
		crossings  int
	}{
		{"Four periods per 256", 512, 6400, 100, 7},
		{"Clip length", 4410, 6400, 100, 68},
		{"Single period", 64, 6400, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := GenerateSquareWave(tt.size, tt.sampleRate, tt.frequency, 0.5)
			if len(buf) != tt.size {
				t.Fatalf("len = %d, want %d", len(buf), tt.size)
			}
			amp := 0.5
			level := int32(amp * math.MaxInt32)
			for i, v := range buf {
				if v != level && v != -level {
					t.Fatalf("buf[%d] = %d, want ±%d", i, v, level)
				}
			}
			if buf[0] != level {
				t.Errorf("buf[0] = %d, want high half first", buf[0])
			}
			if got := upwardCrossings(buf); got != tt.crossings {
				t.Errorf("upward crossings = %d, want %d", got, tt.crossings)
			}
		})
	}
}

func TestGenerateSineWaveOnBin(t *testing.T) {
	const (
		size       = 512
		sampleRate = 44100.0
		bin        = 40
	)
	buf := GenerateSineWave(size, sampleRate, bin*sampleRate/size)

	// Exactly bin periods fit the buffer; the first starts at sample 0.
	if got := upwardCrossings(buf); got != bin-1 {
		t.Errorf("upward crossings = %d, want %d", got, bin-1)
	}

	var peak int32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	amp := 0.9
	if limit := int32(amp * math.MaxInt32); peak > limit || peak < limit/10*9 {
		t.Errorf("peak = %d, want close to %d", peak, limit)
	}
}

func TestGenerateComplexWavePeriodic(t *testing.T) {
	// 44000 Hz gives a 100 sample period for the 440 Hz fundamental.
	buf := GenerateComplexWave(1000, 44000)
	for i := 0; i+100 < len(buf); i++ {
		if d := int64(buf[i]) - int64(buf[i+100]); d > 4 || d < -4 {
			t.Fatalf("buf[%d] = %d, buf[%d] = %d, want equal", i, buf[i], i+100, buf[i+100])
		}
	}
	if buf[0] != 0 || buf[25] <= 0 {
		t.Errorf("buf[0] = %d, buf[25] = %d, want a rising start", buf[0], buf[25])
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name       string
		magnitudes []float64
		start, end int
		want       int
	}{
		{"Empty", nil, 0, 10, 0},
		{"Whole range", []float64{1, 5, 3, 9, 2}, 0, 4, 3},
		{"Sub range", []float64{1, 5, 3, 9, 2}, 0, 2, 1},
		{"Ties keep first", []float64{4, 7, 7, 1}, 0, 3, 1},
		{"Bounds clamped", []float64{2, 1, 8}, -3, 99, 2},
		{"Flat", []float64{0, 0, 0}, 0, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.magnitudes, tt.start, tt.end); got != tt.want {
				t.Errorf("FindPeakBin(%v, %d, %d) = %d, want %d", tt.magnitudes, tt.start, tt.end, got, tt.want)
			}
		})
	}
}
