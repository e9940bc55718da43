package learn

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// normalizer applies a per-feature z-score computed over the training inputs.
type normalizer struct {
	mean []float64
	std  []float64
}

// identityNormalizer leaves inputs unchanged. It is used with a single
// sample, where the variance is undefined.
func identityNormalizer(dim int) normalizer {
	n := normalizer{mean: make([]float64, dim), std: make([]float64, dim)}
	for i := range n.std {
		n.std[i] = 1
	}
	return n
}

// fitNormalizer computes column statistics of x (one row per sample).
// Constant columns keep a unit scale.
func fitNormalizer(x *mat.Dense) normalizer {
	rows, cols := x.Dims()
	if rows < 2 {
		return identityNormalizer(cols)
	}
	n := normalizer{mean: make([]float64, cols), std: make([]float64, cols)}
	col := make([]float64, rows)
	for j := range cols {
		mat.Col(col, j, x)
		n.mean[j], n.std[j] = stat.MeanStdDev(col, nil)
		if !(n.std[j] > 1e-12) {
			n.std[j] = 1
		}
	}
	return n
}

// apply returns the normalised copy of v.
func (n normalizer) apply(v []float64) *mat.VecDense {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - n.mean[i]) / n.std[i]
	}
	return mat.NewVecDense(len(out), out)
}
