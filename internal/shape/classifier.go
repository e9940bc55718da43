// Package shape implements the rule-based mapping from a feature vector to one
// of the base shapes. It is used before a model is trained and whenever the
// model's output is unusable.
package shape

import (
	"errors"
	"fmt"
	"math"

	"sketchpad/internal/config"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
)

// Base shape indices.
const (
	Sphere = iota
	Cube
	Spike
	Torus
	Crystal
)

var names = []string{"sphere", "cube", "spike", "torus", "crystal"}

// Name returns the display name of a shape index.
func Name(shape int) string {
	if shape >= 0 && shape < len(names) {
		return names[shape]
	}
	return fmt.Sprintf("shape-%d", shape)
}

// ErrInvalidFeatures is returned for vectors containing NaN or infinities.
var ErrInvalidFeatures = errors.New("shape: non-finite feature vector")

// Classifier scores a feature vector against each shape and returns the best.
// It is stateless after construction.
type Classifier struct {
	count    int
	ceilings [sample.FeatureDim]float64
}

// NewClassifier returns a Classifier for cfg. Shapes beyond the five scored
// ones never win, so count only bounds the returned index.
func NewClassifier(cfg config.ShapeConfig) *Classifier {
	return &Classifier{count: cfg.Count, ceilings: cfg.Ceilings}
}

// Count returns the number of shapes.
func (c *Classifier) Count() int {
	return c.count
}

// Normalize divides each component by its ceiling and clamps to [0, 1].
func (c *Classifier) Normalize(fv sample.FeatureVector) sample.FeatureVector {
	n := func(v, ceil float64) float64 {
		return math.Max(0, math.Min(1, v/ceil))
	}
	return sample.FeatureVector{
		Loudness:   n(fv.Loudness, c.ceilings[0]),
		Pitch:      n(fv.Pitch, c.ceilings[1]),
		Brightness: n(fv.Brightness, c.ceilings[2]),
		Roughness:  n(fv.Roughness, c.ceilings[3]),
	}
}

// Scores returns the affinity of fv for each shape, indexed by shape.
func (c *Classifier) Scores(fv sample.FeatureVector) []float64 {
	n := c.Normalize(fv)
	return scoreNormalized(n, c.count)
}

func scoreNormalized(n sample.FeatureVector, count int) []float64 {
	l, p, b, r := n.Loudness, n.Pitch, n.Brightness, n.Roughness
	scores := make([]float64, count)

	all := [...]float64{
		Sphere:  (1-r)*0.6 + (1-math.Abs(p-0.5)*2)*0.3 + (1-l)*0.3 + bonus(r < 0.3 && l < 0.5, 0.2),
		Cube:    b*0.5 + bonus(r >= 0.3 && r <= 0.6, 0.4) + l*0.2,
		Spike:   l*0.6 + r*0.4 + bonus(l > 0.7, 0.3),
		Torus:   p*0.3 + (1-r)*0.2 + bonus(l >= 0.3 && l <= 0.7, 0.3),
		Crystal: b*0.4 + p*0.4 + bonus(p > 0.7, 0.2),
	}
	copy(scores, all[:])
	for i := len(all); i < count; i++ {
		scores[i] = math.Inf(-1)
	}
	return scores
}

func bonus(cond bool, v float64) float64 {
	if cond {
		return v
	}
	return 0
}

// Classify returns the shape with the highest score, ties going to the lower
// index. A non-finite vector yields Sphere and ErrInvalidFeatures.
func (c *Classifier) Classify(fv sample.FeatureVector) (int, error) {
	if !fv.Finite() {
		log.Warnf("ShapeClassifier: Non-finite features %+v, using %s", fv, Name(Sphere))
		return Sphere, ErrInvalidFeatures
	}
	return argmax(c.Scores(fv)), nil
}

// argmax scans left to right and only moves on a strictly greater score.
func argmax(scores []float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}
