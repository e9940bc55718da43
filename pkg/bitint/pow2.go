// Package bitint has the power-of-two helpers used to size analyser windows
// and audio buffers.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size, and 1 for
// non-positive sizes. Powers of two map to themselves because the highest
// set bit is taken from size-1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
