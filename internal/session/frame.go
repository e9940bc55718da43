package session

import (
	"context"

	"sketchpad/internal/features"
	"sketchpad/internal/sample"
)

// Frame advances the session by one animation frame and returns the raw
// targets for it.
//
//   - Recording: live features are added to the aggregator.
//   - Reviewing: the frozen pending summary, or the replayed clip while
//     playing; labels follow the sliders.
//   - Idle: live features or silence; labels come from the prediction
//     scheduler once a model is ready and from the rule-based classifier
//     before that.
func (s *Session) Frame(ctx context.Context) VisualState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame++
	vs := VisualState{
		State:   s.state,
		Samples: s.deps.Store.Len(),
		Busy:    s.busy,
		Frame:   s.frame,
	}

	switch s.state {
	case Recording:
		vs.Features, vs.Source = s.analyse(s.live), SourceLive
		s.aggregator.Accumulate(vs.Features)
		vs.Labels = s.target.Get()

	case Reviewing:
		if s.playing {
			s.advancePlaybackLocked()
		}
		if s.playing {
			vs.Features, vs.Source = s.analyse(s.playback), SourcePlayback
		} else {
			vs.Features, vs.Source = s.pending, SourcePending
		}
		vs.Labels = s.labels

	default:
		if s.mic != nil {
			vs.Features, vs.Source = s.analyse(s.live), SourceLive
		} else {
			vs.Source = SourceSilence
		}
		if s.deps.Engine.Ready() {
			s.scheduler.Tick(ctx, vs.Features)
		} else {
			s.target.Set(s.ruleLabels(vs.Features))
		}
		vs.Labels = s.target.Get()
	}

	vs.Playing = s.playing
	vs.Loudness = vs.Features.Loudness
	return vs
}

func (s *Session) analyse(a *features.Analyser) sample.FeatureVector {
	a.Snapshot(s.freq, s.timeData)
	return s.deps.Extractor.Extract(s.freq, s.timeData)
}

// advancePlaybackLocked feeds one frame's worth of the clip into the
// playback analyser and stops at the end of the clip.
func (s *Session) advancePlaybackLocked() {
	step := int(s.opts.SampleRate) / s.opts.FPS
	if step < 1 {
		step = 1
	}
	if s.playPos >= len(s.recorded) {
		s.stopPlaybackLocked()
		return
	}
	end := min(s.playPos+step, len(s.recorded))
	s.playback.Write(s.recorded[s.playPos:end])
	s.playPos = end
}
