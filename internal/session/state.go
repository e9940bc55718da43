package session

import (
	"errors"
	"fmt"

	"sketchpad/internal/sample"
)

// State is the position of the session in the record/review cycle.
type State int

const (
	Idle State = iota
	Recording
	Reviewing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Reviewing:
		return "reviewing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrNoPendingRecording is returned by Confirm when no finalized recording
	// with at least one frame is waiting for labels.
	ErrNoPendingRecording = errors.New("session: no pending recording")
	// ErrInvalidTransition is returned when an operation is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrBusy is returned while a fit started by Confirm or Resume is running.
	ErrBusy = errors.New("session: training in progress")
)

// PermissionError reports that the microphone could not be opened.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "microphone unavailable: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Source names where the features of a frame came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceSilence  Source = "silence"
	SourcePending  Source = "pending"
	SourcePlayback Source = "playback"
)

// VisualState is the raw per-frame output consumed by renderers. Labels are
// targets; easing towards them is left to the consumer.
type VisualState struct {
	State    State                `json:"state"`
	Features sample.FeatureVector `json:"features"`
	Loudness float64              `json:"loudness"`
	Labels   sample.LabelVector   `json:"labels"`
	Source   Source               `json:"source"`
	Samples  int                  `json:"samples"`
	Busy     bool                 `json:"busy"`
	Playing  bool                 `json:"playing"`
	Frame    uint64               `json:"frame"`
}
