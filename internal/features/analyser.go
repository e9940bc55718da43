// SPDX-License-Identifier: MIT
package features

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"
	"sync"

	"sketchpad/internal/config"
	"sketchpad/internal/log"
	"sketchpad/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// AnalyserOptions configures an Analyser.
type AnalyserOptions struct {
	FFTSize     int        // Number of points for the FFT (power of 2).
	Window      WindowFunc // Window applied before the FFT.
	Smoothing   float64    // Time smoothing constant in [0, 1).
	MinDecibels float64    // dB mapped to byte 0.
	MaxDecibels float64    // dB mapped to byte 255.
}

// AnalyserOptionsFrom derives analyser options from the audio configuration.
// The frames-per-buffer value doubles as the FFT size.
func AnalyserOptionsFrom(cfg config.AudioConfig) (AnalyserOptions, error) {
	win, err := ParseWindowFunc(cfg.FFTWindow)
	if err != nil {
		return AnalyserOptions{}, err
	}
	return AnalyserOptions{
		FFTSize:     cfg.FramesPerBuffer,
		Window:      win,
		Smoothing:   cfg.Smoothing,
		MinDecibels: cfg.MinDecibels,
		MaxDecibels: cfg.MaxDecibels,
	}, nil
}

// Pre-allocated buffers for FFT calculations.
type analyserWorkspace struct {
	samples   []float64    // Most recent FFTSize samples, oldest first, in [-1, 1).
	input     []float64    // Windowed copy of samples.
	fftOutput []complex128 // FFT complex results (N/2 + 1).
	smoothed  []float64    // Smoothed linear magnitudes, one per bin.
	window    []float64    // Pre-calculated window coefficients.
}

// Analyser converts a stream of PCM samples into the byte frequency and byte
// time-domain frames the feature extractor consumes. Frequency bytes are
// windowed FFT magnitudes, smoothed over time and mapped from the decibel
// range onto [0, 255]. Time bytes are 128 + sample*128 clamped to [0, 255].
//
// Write and Snapshot may be called from different goroutines.
type Analyser struct {
	fftCalculator *fourier.FFT
	fftSize       int
	bins          int
	smoothing     float64
	minDB         float64
	dbScale       float64
	mu            sync.Mutex
	workspace     analyserWorkspace
}

// NewAnalyser returns an Analyser for the given options.
func NewAnalyser(opts AnalyserOptions) (*Analyser, error) {
	if !bitint.IsPowerOfTwo(opts.FFTSize) || opts.FFTSize < 32 {
		return nil, fmt.Errorf("fft size must be a power of 2 >= 32, got %d", opts.FFTSize)
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %g", opts.Smoothing)
	}
	if opts.MinDecibels >= opts.MaxDecibels {
		return nil, fmt.Errorf("min decibels (%g) must be below max decibels (%g)", opts.MinDecibels, opts.MaxDecibels)
	}

	windowCoeffs := make([]float64, opts.FFTSize)
	applyWindow(windowCoeffs, opts.Window)

	log.Debugf("Analyser: Initializing (Size: %d, Window: %v, Smoothing: %.2f)", opts.FFTSize, opts.Window, opts.Smoothing)

	return &Analyser{
		fftCalculator: fourier.NewFFT(opts.FFTSize),
		fftSize:       opts.FFTSize,
		bins:          opts.FFTSize / 2,
		smoothing:     opts.Smoothing,
		minDB:         opts.MinDecibels,
		dbScale:       255 / (opts.MaxDecibels - opts.MinDecibels),
		workspace: analyserWorkspace{
			samples:   make([]float64, opts.FFTSize),
			input:     make([]float64, opts.FFTSize),
			fftOutput: make([]complex128, opts.FFTSize/2+1),
			smoothed:  make([]float64, opts.FFTSize/2),
			window:    windowCoeffs,
		},
	}, nil
}

// BinCount returns the number of frequency bins, half the FFT size. Callers
// size both frame arrays with it.
func (a *Analyser) BinCount() int {
	return a.bins
}

// FFTSize returns the configured FFT size.
func (a *Analyser) FFTSize() int {
	return a.fftSize
}

// Write appends PCM samples, keeping only the most recent FFTSize of them.
func (a *Analyser) Write(pcm []int32) {
	// Normalization factor for int32 to float64 range [-1.0, 1.0).
	const normFactor = 1.0 / float64(0x80000000)

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.workspace.samples
	if len(pcm) >= len(buf) {
		pcm = pcm[len(pcm)-len(buf):]
		for i, s := range pcm {
			buf[i] = float64(s) * normFactor
		}
		return
	}
	copy(buf, buf[len(pcm):])
	offset := len(buf) - len(pcm)
	for i, s := range pcm {
		buf[offset+i] = float64(s) * normFactor
	}
}

// Reset clears the sample history and the smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.workspace.samples)
	clear(a.workspace.smoothed)
}

// Snapshot fills freq with byte frequency data and timeData with byte
// time-domain data. Either may be nil. Slices longer than BinCount are only
// filled up to BinCount. Every call advances the smoothing state, as reading
// a browser analyser does.
func (a *Analyser) Snapshot(freq, timeData []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ws := &a.workspace

	if timeData != nil {
		n := min(len(timeData), a.bins)
		for i := range n {
			timeData[i] = clampByte(128 + ws.samples[i]*128)
		}
	}

	if freq == nil {
		return
	}

	for i := range a.fftSize {
		ws.input[i] = ws.samples[i] * ws.window[i]
	}
	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	scale := 1 / float64(a.fftSize)
	n := min(len(freq), a.bins)
	for i := range a.bins {
		mag := cmplx.Abs(ws.fftOutput[i]) * scale
		ws.smoothed[i] = a.smoothing*ws.smoothed[i] + (1-a.smoothing)*mag
		if i >= n {
			continue
		}
		if ws.smoothed[i] <= 0 {
			freq[i] = 0
			continue
		}
		db := 20 * math.Log10(ws.smoothed[i])
		freq[i] = clampByte(math.Floor((db - a.minDB) * a.dbScale))
	}
}

func clampByte(v float64) byte {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Blackman) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman", "":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Blackman, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// applyWindow fills coeffs with the selected window function. Unknown types
// fall back to Blackman.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window funcs scale the slice in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		log.Warnf("Analyser: Unknown window function type %d, defaulting to Blackman", windowType)
		window.Blackman(coeffs)
	}
}
