// SPDX-License-Identifier: MIT
package audio

import "math"

// Gate is a noise gate: buffers whose peak amplitude does not exceed the
// threshold are treated as silence.
type Gate struct {
	enabled   bool
	threshold int32 // Absolute amplitude threshold (0-2147483647)
}

// NewGate returns a Gate for a threshold in 0.0-1.0. Zero disables it.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	g.enabled = threshold > 0
	return g
}

func (g *Gate) Enable() {
	g.enabled = true
}

func (g *Gate) Disable() {
	g.enabled = false
}

// Enabled reports whether the gate is active.
func (g *Gate) Enabled() bool {
	return g.enabled
}

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	g.threshold = int32(threshold * float64(math.MaxInt32))
}

// Threshold returns the current noise gate threshold as a float64.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold) / float64(math.MaxInt32)
}

// Open reports whether buffer passes the gate. A disabled gate always passes.
// Runs on the audio thread, so it is branchless and allocation-free.
func (g *Gate) Open(buffer []int32) bool {
	if !g.enabled {
		return true
	}
	return peakAmplitude(buffer) > g.threshold
}

// Apply zeroes buffer in place when the gate is closed and reports whether
// it was open.
func (g *Gate) Apply(buffer []int32) bool {
	if g.Open(buffer) {
		return true
	}
	clear(buffer)
	return false
}

// peakAmplitude returns max |sample| without branching.
func peakAmplitude(buffer []int32) int32 {
	var maxAmplitude int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}
