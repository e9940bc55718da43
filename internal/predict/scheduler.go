// Package predict throttles model inference to every Nth animation frame and
// drops results that were overtaken by a newer request.
package predict

import (
	"context"
	"sync"
	"sync/atomic"

	"sketchpad/internal/learn"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
)

// Predictor is the inference side of the learning engine.
type Predictor interface {
	Predict(ctx context.Context, fv sample.FeatureVector) (learn.Prediction, error)
}

// ApplyFunc receives the features a prediction was made for and its result.
// It runs with the scheduler lock held, so it must not call back into the
// Scheduler.
type ApplyFunc func(fv sample.FeatureVector, p learn.Prediction)

// Scheduler dispatches a prediction every N frames. Each dispatch receives a
// new request id and cancels the previous request's context; a completed
// request is applied only if its id is still the active one.
type Scheduler struct {
	predictor Predictor
	every     uint64
	apply     ApplyFunc

	mu     sync.Mutex
	frame  uint64
	active uint64
	cancel context.CancelFunc

	wg        sync.WaitGroup
	applied   atomic.Uint64
	discarded atomic.Uint64
}

// NewScheduler returns a Scheduler that predicts on every Nth Tick.
func NewScheduler(p Predictor, every int, apply ApplyFunc) *Scheduler {
	if every < 1 {
		every = 1
	}
	return &Scheduler{predictor: p, every: uint64(every), apply: apply}
}

// Tick counts one frame and, on every Nth frame, dispatches a prediction for
// fv in the background. It reports whether a request was dispatched.
func (s *Scheduler) Tick(ctx context.Context, fv sample.FeatureVector) bool {
	s.mu.Lock()
	s.frame++
	if s.frame%s.every != 0 {
		s.mu.Unlock()
		return false
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.active++
	id := s.active
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()

		p, err := s.predictor.Predict(rctx, fv)

		s.mu.Lock()
		defer s.mu.Unlock()
		if id != s.active {
			s.discarded.Add(1)
			return
		}
		if err != nil {
			log.Debugf("PredictionScheduler: Request %d failed: %v", id, err)
			return
		}
		s.applied.Add(1)
		s.apply(fv, p)
	}()
	return true
}

// Invalidate makes every outstanding request stale. It is called on state
// transitions so that no prediction lands after the session left Idle.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.active++
	s.frame = 0
}

// Active returns the current request id.
func (s *Scheduler) Active() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stats returns how many results were applied and discarded as stale.
func (s *Scheduler) Stats() (applied, discarded uint64) {
	return s.applied.Load(), s.discarded.Load()
}

// Wait blocks until all dispatched requests have completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
