package session

import (
	"context"
	"fmt"

	"sketchpad/internal/log"
	"sketchpad/internal/sample"
)

// Start enters Recording from Idle or Reviewing. It opens the microphone
// unless a listening stream is already open, resets the aggregator and
// discards any pending recording. If the microphone cannot be opened the
// session returns to Idle and a *PermissionError is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

// ReRecord discards the pending recording and starts a new one. It is only
// valid while Reviewing.
func (s *Session) ReRecord(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Reviewing {
		return fmt.Errorf("%w: re-record from %s", ErrInvalidTransition, s.state)
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
	if s.state == Recording {
		return fmt.Errorf("%w: already recording", ErrInvalidTransition)
	}
	if s.busy {
		return ErrBusy
	}

	s.stopPlaybackLocked()
	if s.mic == nil {
		if err := s.openMicLocked(ctx); err != nil {
			s.toIdleLocked()
			log.Warnf("Session: Cannot start recording: %v", err)
			return err
		}
	}

	s.aggregator.Reset()
	s.live.Reset()
	s.clearPendingLocked()

	s.clipMu.Lock()
	s.clip = nil
	s.capturing = true
	s.clipMu.Unlock()

	s.state = Recording
	s.scheduler.Invalidate()
	log.Infof("Session: Recording")
	return nil
}

// Stop ends the recording, fully releases the microphone and moves to
// Reviewing. It returns the finalized feature summary and suggested labels:
// the model's prediction when one is ready, otherwise neutral values with
// the rule-based shape.
func (s *Session) Stop(ctx context.Context) (sample.FeatureVector, sample.LabelVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return sample.FeatureVector{}, sample.LabelVector{}, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, s.state)
	}

	// Capture ends before finalize so no frame lands in a finalized summary.
	s.clipMu.Lock()
	s.capturing = false
	s.recorded = s.clip
	s.clip = nil
	s.clipMu.Unlock()

	if err := s.releaseMicLocked(); err != nil {
		log.Warnf("Session: Closing microphone: %v", err)
	}

	s.pending = s.aggregator.Finalize()
	s.pendingFrames = s.aggregator.Count()
	s.labels = s.suggestLocked(ctx, s.pending)
	s.state = Reviewing

	log.Infof("Session: Reviewing %d frames, %d samples of audio", s.pendingFrames, len(s.recorded))
	if s.deps.Clips != nil && len(s.recorded) > 0 {
		s.saveClip(s.recorded)
	}
	return s.pending, s.labels, nil
}

func (s *Session) suggestLocked(ctx context.Context, fv sample.FeatureVector) sample.LabelVector {
	if s.deps.Engine.Ready() {
		p, err := s.deps.Engine.Predict(ctx, fv)
		if err == nil && p.Available {
			return p.Labels
		}
		if err != nil {
			log.Debugf("Session: Suggestion failed: %v", err)
		}
	}
	return s.ruleLabels(fv)
}

func (s *Session) saveClip(pcm []int32) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		path, err := s.deps.Clips.WriteClip(pcm, s.opts.SampleRate)
		if err != nil {
			log.Warnf("Session: Saving clip failed: %v", err)
			return
		}
		log.Infof("Session: Clip saved to %s", path)
	}()
}

// SetLabels overrides the suggested labels while Reviewing.
func (s *Session) SetLabels(labels sample.LabelVector) error {
	if err := s.deps.Validator.Labels(labels); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Reviewing {
		return fmt.Errorf("%w: labels can only be edited while reviewing", ErrInvalidTransition)
	}
	if s.busy {
		return ErrBusy
	}
	s.labels = labels
	return nil
}

// Confirm stores the pending recording with labels and retrains. The
// session stays busy until the fit finishes, then returns to Idle; the
// returned channel receives the fit result. Precondition failures are
// returned synchronously and leave the state unchanged.
func (s *Session) Confirm(ctx context.Context, labels sample.LabelVector) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, ErrBusy
	}
	switch {
	case s.state == Recording:
		return nil, fmt.Errorf("%w: stop the recording first", ErrInvalidTransition)
	case s.state != Reviewing, s.pendingFrames == 0:
		return nil, ErrNoPendingRecording
	}

	ts := sample.TrainingSample{XS: s.pending, YS: labels}
	if err := s.deps.Store.Add(ctx, ts); err != nil {
		if sample.IsValidationError(err) {
			return nil, err
		}
		log.Warnf("Session: Sample kept in memory only: %v", err)
	}
	if err := s.deps.Engine.AddSample(ts); err != nil {
		return nil, fmt.Errorf("register sample: %w", err)
	}

	s.stopPlaybackLocked()
	s.labels = labels
	s.busy = true
	fit := s.deps.Engine.Fit(s.ctx, s.opts.Epochs)
	done := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := <-fit
		s.finishFit(labels, err)
		done <- err
		close(done)
	}()

	log.Infof("Session: Training on %d samples", s.deps.Store.Len())
	return done, nil
}

func (s *Session) finishFit(labels sample.LabelVector, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	if err != nil {
		log.Errorf("Session: Training failed: %v", err)
	} else {
		log.Infof("Session: Model updated")
	}
	if s.state != Reviewing {
		return
	}
	s.toIdleLocked()
	s.target.Set(labels)
	if s.opts.ListenWhenIdle && !s.closed {
		if err := s.openMicLocked(s.ctx); err != nil {
			log.Warnf("Session: Not listening: %v", err)
		}
	}
}

// Clear removes every training sample and resets the model. It is not
// allowed while recording or training.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Recording {
		return fmt.Errorf("%w: cannot clear while recording", ErrInvalidTransition)
	}
	if s.busy {
		return ErrBusy
	}

	err := s.deps.Store.Clear(ctx)
	s.deps.Engine.Reset()
	s.stopPlaybackLocked()
	s.toIdleLocked()
	s.target.Set(sample.Neutral(0))
	if err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	log.Infof("Session: Training data cleared")
	return nil
}

// Listen opens the microphone while Idle so predictions follow live input.
func (s *Session) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle || s.closed {
		return fmt.Errorf("%w: listen from %s", ErrInvalidTransition, s.state)
	}
	if s.mic != nil {
		return nil
	}
	return s.openMicLocked(ctx)
}

// Unlisten releases an idle listening stream.
func (s *Session) Unlisten() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("%w: unlisten from %s", ErrInvalidTransition, s.state)
	}
	return s.releaseMicLocked()
}

// Play replays the last clip through the playback analyser, and the
// speaker when one is configured, while Reviewing.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Reviewing {
		return fmt.Errorf("%w: play from %s", ErrInvalidTransition, s.state)
	}
	if len(s.recorded) == 0 {
		return ErrNoPendingRecording
	}

	s.stopPlaybackLocked()
	s.playback.Reset()
	s.playPos = 0
	s.playing = true
	if s.deps.Speaker != nil {
		out, err := s.deps.Speaker.Play(ctx, s.recorded, s.opts.SampleRate)
		if err != nil {
			log.Warnf("Session: Playing without sound: %v", err)
		} else {
			s.output = out
		}
	}
	return nil
}

// Pause stops playback. The display returns to the pending summary.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPlaybackLocked()
}

func (s *Session) openMicLocked(ctx context.Context) error {
	closer, err := s.deps.Microphone.Open(ctx, s.sink)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return &PermissionError{Err: err}
	}
	s.mic = closer
	return nil
}

func (s *Session) releaseMicLocked() error {
	if s.mic == nil {
		return nil
	}
	err := s.mic.Close()
	s.mic = nil
	return err
}

func (s *Session) stopPlaybackLocked() {
	s.playing = false
	if s.output != nil {
		if err := s.output.Close(); err != nil {
			log.Debugf("Session: Stopping speaker: %v", err)
		}
		s.output = nil
	}
}

func (s *Session) clearPendingLocked() {
	s.pending = sample.FeatureVector{}
	s.pendingFrames = 0
	s.labels = sample.LabelVector{}
	s.recorded = nil
}

func (s *Session) toIdleLocked() {
	s.state = Idle
	s.clearPendingLocked()
	s.clipMu.Lock()
	s.capturing = false
	s.clip = nil
	s.clipMu.Unlock()
	s.scheduler.Invalidate()
}
