package predict

import (
	"context"
	"sync"
	"testing"
	"time"

	"sketchpad/internal/learn"
	"sketchpad/internal/sample"
)

// gatedPredictor blocks each call until the test releases it, so completion
// order can be controlled. The prediction carries the call number in Y1.
type gatedPredictor struct {
	gates []chan struct{}
	calls chan int
}

func newGatedPredictor(n int) *gatedPredictor {
	g := &gatedPredictor{calls: make(chan int, n)}
	for range n {
		g.gates = append(g.gates, make(chan struct{}))
	}
	return g
}

func (g *gatedPredictor) Predict(_ context.Context, fv sample.FeatureVector) (learn.Prediction, error) {
	call := int(fv.Loudness)
	g.calls <- call
	<-g.gates[call]
	return learn.Prediction{Labels: sample.LabelVector{Y1: float64(call)}, Available: true}, nil
}

type recorder struct {
	mu      sync.Mutex
	applied []float64
}

func (r *recorder) apply(_ sample.FeatureVector, p learn.Prediction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, p.Labels.Y1)
}

func (r *recorder) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.applied...)
}

// dispatch ticks until a request is sent and waits for it to reach the
// predictor.
func dispatch(t *testing.T, s *Scheduler, g *gatedPredictor, call int) {
	t.Helper()
	fv := sample.FeatureVector{Loudness: float64(call)}
	for !s.Tick(context.Background(), fv) {
	}
	select {
	case got := <-g.calls:
		if got != call {
			t.Fatalf("predictor received call %d, want %d", got, call)
		}
	case <-time.After(time.Second):
		t.Fatalf("call %d never reached the predictor", call)
	}
}

func TestTickCadence(t *testing.T) {
	g := newGatedPredictor(1)
	close(g.gates[0])
	s := NewScheduler(g, 5, func(sample.FeatureVector, learn.Prediction) {})

	for i := 1; i <= 4; i++ {
		if s.Tick(context.Background(), sample.FeatureVector{}) {
			t.Fatalf("tick %d dispatched, want only every 5th", i)
		}
	}
	if !s.Tick(context.Background(), sample.FeatureVector{}) {
		t.Fatal("5th tick did not dispatch")
	}
	s.Wait()
}

func TestStaleResultDiscarded(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"Newer completes first", []int{1, 0}},
		{"Older completes first", []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGatedPredictor(2)
			r := &recorder{}
			s := NewScheduler(g, 5, r.apply)

			dispatch(t, s, g, 0)
			dispatch(t, s, g, 1)

			for _, call := range tt.order {
				close(g.gates[call])
			}
			s.Wait()

			got := r.values()
			if len(got) != 1 || got[0] != 1 {
				t.Errorf("applied = %v, want only the newest result [1]", got)
			}
			if applied, discarded := s.Stats(); applied != 1 || discarded != 1 {
				t.Errorf("Stats() = %d applied, %d discarded; want 1, 1", applied, discarded)
			}
		})
	}
}

func TestInvalidateDropsInFlight(t *testing.T) {
	g := newGatedPredictor(1)
	r := &recorder{}
	s := NewScheduler(g, 1, r.apply)

	dispatch(t, s, g, 0)
	before := s.Active()
	s.Invalidate()
	if s.Active() <= before {
		t.Errorf("Active() = %d after Invalidate, want > %d", s.Active(), before)
	}

	close(g.gates[0])
	s.Wait()

	if got := r.values(); len(got) != 0 {
		t.Errorf("applied = %v after Invalidate, want none", got)
	}
}
