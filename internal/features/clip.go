package features

import "sketchpad/internal/sample"

// ClipSummary is the offline analysis of a recorded clip.
type ClipSummary struct {
	Features sample.FeatureVector // Aggregated like a live recording.
	Frames   int                  // Animation frames the clip spans.
}

// SummarizeClip replays pcm through the analyser a the way the live loop sees it,
// step samples per animation frame, extracting one feature vector per frame
// into agg. a and agg are reset first.
func SummarizeClip(pcm []int32, step int, a *Analyser, e *Extractor, agg *Aggregator) ClipSummary {
	if step < 1 {
		step = 1
	}
	a.Reset()
	agg.Reset()

	freq := make([]byte, a.BinCount())
	timeData := make([]byte, a.BinCount())
	for pos := 0; pos < len(pcm); pos += step {
		a.Write(pcm[pos:min(pos+step, len(pcm))])
		a.Snapshot(freq, timeData)
		agg.Accumulate(e.Extract(freq, timeData))
	}
	return ClipSummary{Features: agg.Finalize(), Frames: agg.Count()}
}
