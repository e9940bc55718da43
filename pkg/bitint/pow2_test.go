package bitint

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-8, 1},
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{500, 512},
		{512, 512},
		{513, 1024},
		{44100, 65536},
	}
	for _, tt := range tests {
		if got := NextPowerOfTwo(tt.in); got != tt.want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 32, 512, 8192, 1 << 30} {
		if !IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = false, want true", n)
		}
	}
	for _, n := range []int{-512, 0, 3, 500, 511, 513} {
		if IsPowerOfTwo(n) {
			t.Errorf("IsPowerOfTwo(%d) = true, want false", n)
		}
	}
}

func TestNextPowerOfTwoIsPowerOfTwo(t *testing.T) {
	for n := 1; n <= 5000; n++ {
		p := NextPowerOfTwo(n)
		if !IsPowerOfTwo(p) || p < n || (p > 1 && p/2 >= n) {
			t.Fatalf("NextPowerOfTwo(%d) = %d", n, p)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NextPowerOfTwo(i & 0xffff)
	}
}
