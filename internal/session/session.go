/*
Package session implements the Idle → Recording → Reviewing → Idle workflow.

A Session owns the microphone handle, the recording aggregator, the pending
feature vector and the clip kept for playback. It decides per frame which
source feeds the visual targets: live analysis, the frozen pending vector,
the replayed clip or silence.

Locking:
  - Session.mu guards all workflow state and is taken first.
  - The prediction scheduler lock and the label target lock nest inside it.
  - The microphone sink runs on the audio thread and only touches the live
    analyser and clipMu, never Session.mu.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/features"
	"sketchpad/internal/learn"
	"sketchpad/internal/log"
	"sketchpad/internal/predict"
	"sketchpad/internal/sample"
	"sketchpad/internal/shape"
	"sketchpad/internal/store"
)

// Microphone opens a capture stream delivering mono PCM to sink. On error
// the returned closer, if any, refers to a half-opened stream.
type Microphone interface {
	Open(ctx context.Context, sink func(pcm []int32)) (io.Closer, error)
}

// Speaker plays a mono clip.
type Speaker interface {
	Play(ctx context.Context, pcm []int32, sampleRate float64) (io.Closer, error)
}

// ClipWriter persists a finished recording and returns where it went.
type ClipWriter interface {
	WriteClip(pcm []int32, sampleRate float64) (string, error)
}

// FeatureExtractor turns one analysis frame into features.
type FeatureExtractor interface {
	Extract(freq, timeData []byte) sample.FeatureVector
}

// Learner is the part of the learning engine the session drives.
type Learner interface {
	predict.Predictor
	AddSample(s sample.TrainingSample) error
	Fit(ctx context.Context, epochs int) <-chan error
	Ready() bool
	Replay(history []sample.TrainingSample) int
	Reset()
	Len() int
	Wait()
}

// Sink receives every frame produced by Run.
type Sink interface {
	Send(state VisualState) error
}

// Options configures a Session.
type Options struct {
	Analyser       features.AnalyserOptions
	SampleRate     float64
	PeakBlend      bool
	MeanWeight     float64
	PredictEvery   int
	Epochs         int // Passed to Fit; non-positive uses the engine default.
	FPS            int
	ListenWhenIdle bool
	MaxClipSeconds int // Zero keeps the whole clip.
}

// OptionsFrom derives session options from the configuration.
func OptionsFrom(cfg *config.Config) (Options, error) {
	analyser, err := features.AnalyserOptionsFrom(cfg.Audio)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Analyser:       analyser,
		SampleRate:     cfg.Audio.SampleRate,
		PeakBlend:      cfg.Recording.PeakBlend,
		MeanWeight:     cfg.Recording.MeanWeight,
		PredictEvery:   cfg.Learning.PredictEvery,
		Epochs:         cfg.Learning.Epochs,
		FPS:            cfg.Session.FPS,
		ListenWhenIdle: cfg.Session.ListenWhenIdle,
		MaxClipSeconds: cfg.Recording.MaxDuration,
	}, nil
}

// Deps are the collaborators a Session drives. Speaker and Clips are
// optional.
type Deps struct {
	Store      *store.Store
	Engine     Learner
	Classifier *shape.Classifier
	Extractor  FeatureExtractor
	Validator  *sample.Validator
	Microphone Microphone
	Speaker    Speaker
	Clips      ClipWriter
}

// labelTarget holds the label vector the renderer is steering towards while
// idle. It is written from prediction callbacks.
type labelTarget struct {
	mu     sync.Mutex
	labels sample.LabelVector
}

func (t *labelTarget) Set(l sample.LabelVector) {
	t.mu.Lock()
	t.labels = l
	t.mu.Unlock()
}

func (t *labelTarget) Get() sample.LabelVector {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.labels
}

// Session is the workflow controller. All methods are safe for concurrent
// use.
type Session struct {
	opts Options
	deps Deps

	// ctx outlives individual calls; fits started by Confirm run under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	closed        bool
	busy          bool
	frame         uint64
	mic           io.Closer
	aggregator    *features.Aggregator
	pending       sample.FeatureVector
	pendingFrames int
	labels        sample.LabelVector // Slider values while reviewing.
	recorded      []int32            // Last finished clip.
	playing       bool
	playPos       int
	output        io.Closer
	freq          []byte
	timeData      []byte
	live          *features.Analyser
	playback      *features.Analyser

	clipMu    sync.Mutex
	capturing bool
	clip      []int32
	maxClip   int

	scheduler *predict.Scheduler
	target    labelTarget

	wg sync.WaitGroup
}

// New returns an idle Session. No device is opened until Start or Listen.
func New(opts Options, deps Deps) (*Session, error) {
	switch {
	case deps.Store == nil, deps.Engine == nil, deps.Classifier == nil,
		deps.Extractor == nil, deps.Validator == nil, deps.Microphone == nil:
		return nil, errors.New("session: missing dependency")
	}
	if opts.FPS <= 0 {
		opts.FPS = config.DefaultFPS
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = config.DefaultSampleRate
	}

	live, err := features.NewAnalyser(opts.Analyser)
	if err != nil {
		return nil, fmt.Errorf("live analyser: %w", err)
	}
	playback, err := features.NewAnalyser(opts.Analyser)
	if err != nil {
		return nil, fmt.Errorf("playback analyser: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:       opts,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		aggregator: features.NewAggregator(opts.PeakBlend, opts.MeanWeight),
		freq:       make([]byte, live.BinCount()),
		timeData:   make([]byte, live.BinCount()),
		live:       live,
		playback:   playback,
		maxClip:    opts.MaxClipSeconds * int(opts.SampleRate),
	}
	s.scheduler = predict.NewScheduler(deps.Engine, opts.PredictEvery, s.applyPrediction)
	s.target.Set(sample.Neutral(shape.Sphere))
	return s, nil
}

// applyPrediction runs under the scheduler lock.
func (s *Session) applyPrediction(fv sample.FeatureVector, p learn.Prediction) {
	if !p.Available {
		s.target.Set(s.ruleLabels(fv))
		return
	}
	s.target.Set(p.Labels)
}

// ruleLabels is the target used without a usable model.
func (s *Session) ruleLabels(fv sample.FeatureVector) sample.LabelVector {
	idx, _ := s.deps.Classifier.Classify(fv)
	return sample.Neutral(idx)
}

// sink receives microphone buffers on the audio thread.
func (s *Session) sink(pcm []int32) {
	s.live.Write(pcm)

	s.clipMu.Lock()
	if s.capturing {
		n := len(pcm)
		if s.maxClip > 0 {
			n = min(n, s.maxClip-len(s.clip))
		}
		if n > 0 {
			s.clip = append(s.clip, pcm[:n]...)
		}
	}
	s.clipMu.Unlock()
}

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a fit is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Listening reports whether a microphone stream is open.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mic != nil
}

// Pending returns the finalized recording summary and the current slider
// labels. ok is false outside Reviewing.
func (s *Session) Pending() (fv sample.FeatureVector, labels sample.LabelVector, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Reviewing {
		return sample.FeatureVector{}, sample.LabelVector{}, false
	}
	return s.pending, s.labels, true
}

// Samples returns the number of stored training samples.
func (s *Session) Samples() int {
	return s.deps.Store.Len()
}

// Export writes the training set as CSV.
func (s *Session) Export(w io.Writer) error {
	return s.deps.Store.ExportCSV(w)
}

// Resume loads the training history, replays it into the engine and fits a
// model when there is anything to fit. The session reports busy meanwhile.
func (s *Session) Resume(ctx context.Context) (store.Source, error) {
	src := s.deps.Store.LoadAtStartup(ctx)
	n := s.deps.Engine.Replay(s.deps.Store.Samples())
	log.Infof("Session: Resumed %d samples from %s", n, src)
	if n == 0 {
		return src, nil
	}

	s.mu.Lock()
	s.busy = true
	s.mu.Unlock()

	err := <-s.deps.Engine.Fit(ctx, s.opts.Epochs)

	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	s.scheduler.Invalidate()

	if err != nil {
		return src, fmt.Errorf("fit on resume: %w", err)
	}
	return src, nil
}

// Run produces a frame at the configured rate until ctx is done, handing
// each one to sink. Send errors are logged and do not stop the loop.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()

	log.Debugf("Session: Frame loop at %d fps", s.opts.FPS)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			vs := s.Frame(ctx)
			if sink == nil {
				continue
			}
			if err := sink.Send(vs); err != nil {
				log.Debugf("Session: Frame %d not delivered: %v", vs.Frame, err)
			}
		}
	}
}

// Close releases every device, cancels outstanding fits and predictions and
// waits for background work.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.stopPlaybackLocked()
	s.clipMu.Lock()
	s.capturing = false
	s.clipMu.Unlock()
	err := s.releaseMicLocked()
	s.state = Idle
	s.scheduler.Invalidate()
	s.mu.Unlock()

	s.wg.Wait()
	s.scheduler.Wait()
	s.deps.Engine.Wait()
	return err
}
