// Package learn implements the incremental regression engine that maps a
// feature vector to a label vector. Samples are registered one at a time and
// every Fit retrains from scratch on all of them in the background. The
// engine never owns sample history; on startup it is replayed from the
// training store.
package learn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
	"sketchpad/internal/shape"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrModelNotReady is returned by Fit when no sample is registered.
	ErrModelNotReady = errors.New("learn: model not ready")
	// ErrFitInProgress is returned by Fit while another fit is running.
	ErrFitInProgress = errors.New("learn: fit already in progress")
)

// Options configures an Engine.
type Options struct {
	HiddenUnits  int
	LearningRate float64
	Epochs       int    // Used when Fit is given a non-positive epoch count.
	MinSamples   int    // Samples a fitted model needs before Predict uses it.
	Seed         uint64 // Weight initialisation and shuffle seed.
}

// OptionsFrom derives engine options from the configuration.
func OptionsFrom(cfg config.LearningConfig) Options {
	return Options{
		HiddenUnits:  cfg.HiddenUnits,
		LearningRate: cfg.LearningRate,
		Epochs:       cfg.Epochs,
		MinSamples:   cfg.MinSamples,
		Seed:         cfg.Seed,
	}
}

// Prediction is the outcome of Predict. Available is false when no usable
// model exists; Labels is then the zero value. Fallback marks a result that
// replaced a non-finite model output with neutral labels and a rule-based
// shape.
type Prediction struct {
	Labels    sample.LabelVector
	Available bool
	Fallback  bool
}

// model is an immutable fitted network with its input normalisation.
type model struct {
	net     *mlp
	norm    normalizer
	samples int
	loss    float64
}

// Engine registers samples, fits models asynchronously and predicts with the
// last fitted model. It is safe for concurrent use.
type Engine struct {
	opts       Options
	shapes     int
	classifier *shape.Classifier
	validator  *sample.Validator

	mu      sync.Mutex
	samples []sample.TrainingSample

	fitting atomic.Bool
	current atomic.Pointer[model]
	wg      sync.WaitGroup
}

// New returns an empty engine. The classifier supplies the fallback shape and
// the number of shapes.
func New(opts Options, classifier *shape.Classifier, v *sample.Validator) *Engine {
	if opts.HiddenUnits < 1 {
		opts.HiddenUnits = config.DefaultHiddenUnits
	}
	if !(opts.LearningRate > 0) {
		opts.LearningRate = config.DefaultLearningRate
	}
	if opts.Epochs < 1 {
		opts.Epochs = config.DefaultEpochs
	}
	return &Engine{
		opts:       opts,
		shapes:     classifier.Count(),
		classifier: classifier,
		validator:  v,
	}
}

// AddSample registers one training pair after validating it.
func (e *Engine) AddSample(s sample.TrainingSample) error {
	if err := e.validator.Sample(s); err != nil {
		return err
	}
	e.mu.Lock()
	e.samples = append(e.samples, s)
	e.mu.Unlock()
	return nil
}

// AddSampleValues registers a pair given as raw slices: four features and
// y1..y4 followed by the shape index.
func (e *Engine) AddSampleValues(xs, ys []float64) error {
	fv, err := sample.FeatureVectorFrom(xs)
	if err != nil {
		return err
	}
	lv, err := sample.LabelVectorFrom(ys)
	if err != nil {
		return err
	}
	return e.AddSample(sample.TrainingSample{XS: fv, YS: lv})
}

// Replay replaces the registered samples with history, typically the
// training store's contents at startup. Invalid samples are skipped. The
// current model is kept until the next Fit.
func (e *Engine) Replay(history []sample.TrainingSample) int {
	valid := make([]sample.TrainingSample, 0, len(history))
	for i, s := range history {
		if err := e.validator.Sample(s); err != nil {
			log.Warnf("LearningEngine: Skipping replayed sample %d: %v", i, err)
			continue
		}
		valid = append(valid, s)
	}
	e.mu.Lock()
	e.samples = valid
	e.mu.Unlock()
	return len(valid)
}

// Reset drops every registered sample and the fitted model.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.samples = nil
	e.mu.Unlock()
	e.current.Store(nil)
}

// Len returns the number of registered samples.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Ready reports whether Predict will return an available result.
func (e *Engine) Ready() bool {
	m := e.current.Load()
	return m != nil && m.samples >= e.opts.MinSamples
}

// Fitting reports whether a fit is running.
func (e *Engine) Fitting() bool {
	return e.fitting.Load()
}

// Fit retrains on a snapshot of the registered samples in a new goroutine.
// The returned channel receives exactly one value, nil on success, and is
// then closed. With epochs <= 0 the configured count is used.
func (e *Engine) Fit(ctx context.Context, epochs int) <-chan error {
	done := make(chan error, 1)
	if epochs <= 0 {
		epochs = e.opts.Epochs
	}

	e.mu.Lock()
	snapshot := slices.Clone(e.samples)
	e.mu.Unlock()

	if len(snapshot) == 0 {
		done <- ErrModelNotReady
		close(done)
		return done
	}
	if !e.fitting.CompareAndSwap(false, true) {
		done <- ErrFitInProgress
		close(done)
		return done
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		start := time.Now()
		m, err := e.train(ctx, snapshot, epochs)
		if err == nil {
			e.current.Store(m)
			log.Infof("LearningEngine: Fitted %d samples in %s (loss %.4f)", m.samples, time.Since(start).Round(time.Millisecond), m.loss)
		} else {
			log.Warnf("LearningEngine: Fit failed: %v", err)
		}
		// Clear the flag before signalling so callers can refit immediately.
		e.fitting.Store(false)
		done <- err
		close(done)
	}()
	return done
}

// Wait blocks until any running fit has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) train(ctx context.Context, samples []sample.TrainingSample, epochs int) (*model, error) {
	x := mat.NewDense(len(samples), sample.FeatureDim, nil)
	for i, s := range samples {
		x.SetRow(i, s.XS.Values())
	}
	norm := fitNormalizer(x)

	inputs := make([]*mat.VecDense, len(samples))
	targets := make([]*mat.VecDense, len(samples))
	for i, s := range samples {
		inputs[i] = norm.apply(s.XS.Values())
		targets[i] = mat.NewVecDense(sample.LabelDim, e.encode(s.YS))
	}

	rng := rand.New(rand.NewPCG(e.opts.Seed, e.opts.Seed^0x9e3779b97f4a7c15))
	net := newMLP(sample.FeatureDim, e.opts.HiddenUnits, sample.LabelDim, rng)
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	var loss float64
	for epoch := range epochs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fit cancelled at epoch %d: %w", epoch, err)
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		loss = 0
		for _, i := range order {
			loss += net.step(inputs[i], targets[i], e.opts.LearningRate)
		}
		loss /= float64(len(order))
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		log.Warnf("LearningEngine: Training diverged (loss %v)", loss)
	}
	return &model{net: net, norm: norm, samples: len(samples), loss: loss}, nil
}

// encode maps a label vector to network targets; the shape becomes
// shape/(K-1).
func (e *Engine) encode(l sample.LabelVector) []float64 {
	return []float64{l.Y1, l.Y2, l.Y3, l.Y4, float64(l.Shape) / float64(e.shapes-1)}
}

// decode inverts encode, rounding the shape output to the nearest index.
func (e *Engine) decode(out []float64) sample.LabelVector {
	l := sample.LabelVector{
		Y1:    out[0],
		Y2:    out[1],
		Y3:    out[2],
		Y4:    out[3],
		Shape: int(math.Round(out[4] * float64(e.shapes-1))),
	}
	return l.Clamp(e.shapes)
}

// Predict runs the fitted model on fv. Without a usable model it returns a
// Prediction with Available false and no error. A malformed vector is
// rejected with a *sample.ValidationError.
func (e *Engine) Predict(ctx context.Context, fv sample.FeatureVector) (Prediction, error) {
	if err := e.validator.Features(fv); err != nil {
		return Prediction{}, err
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	m := e.current.Load()
	if m == nil || m.samples < e.opts.MinSamples {
		return Prediction{}, nil
	}

	_, out := m.net.forward(m.norm.apply(fv.Values()))
	raw := out.RawVector().Data
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			s, _ := e.classifier.Classify(fv)
			log.Debugf("LearningEngine: Non-finite model output, falling back to %s", shape.Name(s))
			return Prediction{Labels: sample.Neutral(s), Available: true, Fallback: true}, nil
		}
	}
	return Prediction{Labels: e.decode(raw), Available: true}, nil
}
