package learn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// mlp is a single hidden layer network: tanh hidden units and sigmoid
// outputs, trained by per-sample gradient descent on squared error.
type mlp struct {
	w1 *mat.Dense    // hidden x in
	b1 *mat.VecDense // hidden
	w2 *mat.Dense    // out x hidden
	b2 *mat.VecDense // out
}

func newMLP(in, hidden, out int, rng *rand.Rand) *mlp {
	return &mlp{
		w1: randomDense(hidden, in, rng),
		b1: mat.NewVecDense(hidden, nil),
		w2: randomDense(out, hidden, rng),
		b2: mat.NewVecDense(out, nil),
	}
}

// randomDense fills a matrix with Glorot-uniform weights.
func randomDense(r, c int, rng *rand.Rand) *mat.Dense {
	limit := math.Sqrt(6 / float64(r+c))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(r, c, data)
}

// forward returns the hidden activations and the outputs for x.
func (m *mlp) forward(x mat.Vector) (hidden, out *mat.VecDense) {
	hidden = mat.NewVecDense(m.b1.Len(), nil)
	hidden.MulVec(m.w1, x)
	hidden.AddVec(hidden, m.b1)
	apply(hidden, math.Tanh)

	out = mat.NewVecDense(m.b2.Len(), nil)
	out.MulVec(m.w2, hidden)
	out.AddVec(out, m.b2)
	apply(out, sigmoid)
	return hidden, out
}

// step runs one backpropagation update towards target and returns the
// squared error before the update.
func (m *mlp) step(x, target mat.Vector, lr float64) float64 {
	hidden, out := m.forward(x)

	// Output delta: (y - t) * y * (1 - y).
	dOut := mat.NewVecDense(out.Len(), nil)
	var loss float64
	for i := range out.Len() {
		y := out.AtVec(i)
		diff := y - target.AtVec(i)
		loss += diff * diff
		dOut.SetVec(i, diff*y*(1-y))
	}

	// Hidden delta uses the weights before they are updated.
	dHidden := mat.NewVecDense(hidden.Len(), nil)
	dHidden.MulVec(m.w2.T(), dOut)
	for i := range hidden.Len() {
		h := hidden.AtVec(i)
		dHidden.SetVec(i, dHidden.AtVec(i)*(1-h*h))
	}

	m.w2.RankOne(m.w2, -lr, dOut, hidden)
	m.b2.AddScaledVec(m.b2, -lr, dOut)
	m.w1.RankOne(m.w1, -lr, dHidden, x)
	m.b1.AddScaledVec(m.b1, -lr, dHidden)

	return loss
}

func apply(v *mat.VecDense, fn func(float64) float64) {
	for i := range v.Len() {
		v.SetVec(i, fn(v.AtVec(i)))
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
