// Package sample defines the feature, label and training-sample types shared
// by the extractor, the learner, the store and the data server, together with
// the validity predicate every stored sample must satisfy.
package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// FeatureDim and LabelDim are the fixed widths of the model's input and output.
const (
	FeatureDim = 4
	LabelDim   = 5
)

// FeatureVector is the per-frame acoustic descriptor.
type FeatureVector struct {
	Loudness   float64 `json:"loudness" validate:"finite,gte=0"`
	Pitch      float64 `json:"pitch" validate:"finite,gte=0"`
	Brightness float64 `json:"brightness" validate:"finite,gte=0"`
	Roughness  float64 `json:"roughness" validate:"finite,gte=0"`
}

// LabelVector is the visual target: four continuous style knobs and a shape.
type LabelVector struct {
	Y1    float64 `json:"y1" validate:"finite,gte=0,lte=1"` // angularity
	Y2    float64 `json:"y2" validate:"finite,gte=0,lte=1"` // spikiness
	Y3    float64 `json:"y3" validate:"finite,gte=0,lte=1"` // texture roughness
	Y4    float64 `json:"y4" validate:"finite,gte=0,lte=1"` // density
	Shape int     `json:"shape" validate:"gte=0"`
}

// TrainingSample pairs a recording summary with its confirmed labels.
// ID is optional on the wire and only used for union merges.
type TrainingSample struct {
	ID string        `json:"id,omitempty"`
	XS FeatureVector `json:"xs"`
	YS LabelVector   `json:"ys"`
}

// Neutral is the mid-range label vector used when no better target exists.
func Neutral(shape int) LabelVector {
	return LabelVector{Y1: 0.5, Y2: 0.5, Y3: 0.5, Y4: 0.5, Shape: shape}
}

// Values returns the features in model input order.
func (f FeatureVector) Values() []float64 {
	return []float64{f.Loudness, f.Pitch, f.Brightness, f.Roughness}
}

// FeatureVectorFrom builds a FeatureVector from a slice in model input order.
func FeatureVectorFrom(v []float64) (FeatureVector, error) {
	if len(v) != FeatureDim {
		return FeatureVector{}, &ValidationError{Field: "xs", Reason: fmt.Sprintf("expected %d values, got %d", FeatureDim, len(v))}
	}
	return FeatureVector{Loudness: v[0], Pitch: v[1], Brightness: v[2], Roughness: v[3]}, nil
}

// Finite reports whether every component is a finite number.
func (f FeatureVector) Finite() bool {
	return allFinite(f.Loudness, f.Pitch, f.Brightness, f.Roughness)
}

// IsZero reports whether every component is exactly zero.
func (f FeatureVector) IsZero() bool {
	return f == FeatureVector{}
}

// Continuous returns y1..y4.
func (l LabelVector) Continuous() [4]float64 {
	return [4]float64{l.Y1, l.Y2, l.Y3, l.Y4}
}

// LabelVectorFrom builds a LabelVector from a slice ordered y1..y4, shape.
// The shape entry must hold an integral value.
func LabelVectorFrom(v []float64) (LabelVector, error) {
	if len(v) != LabelDim {
		return LabelVector{}, &ValidationError{Field: "ys", Reason: fmt.Sprintf("expected %d values, got %d", LabelDim, len(v))}
	}
	if v[4] != math.Trunc(v[4]) || math.IsInf(v[4], 0) {
		return LabelVector{}, &ValidationError{Field: "ys.shape", Reason: fmt.Sprintf("not an integer: %v", v[4])}
	}
	return LabelVector{Y1: v[0], Y2: v[1], Y3: v[2], Y4: v[3], Shape: int(v[4])}, nil
}

// Clamp limits y1..y4 to [0,1] and shape to [0, shapes-1].
func (l LabelVector) Clamp(shapes int) LabelVector {
	l.Y1 = clamp01(l.Y1)
	l.Y2 = clamp01(l.Y2)
	l.Y3 = clamp01(l.Y3)
	l.Y4 = clamp01(l.Y4)
	if l.Shape < 0 {
		l.Shape = 0
	}
	if shapes > 0 && l.Shape >= shapes {
		l.Shape = shapes - 1
	}
	return l
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// UnmarshalJSON enforces the exact four feature keys.
func (f *FeatureVector) UnmarshalJSON(b []byte) error {
	vals, err := decodeExact(b, "xs", []string{"loudness", "pitch", "brightness", "roughness"})
	if err != nil {
		return err
	}
	*f = FeatureVector{Loudness: vals[0], Pitch: vals[1], Brightness: vals[2], Roughness: vals[3]}
	return nil
}

// UnmarshalJSON enforces the exact five label keys and an integral shape.
func (l *LabelVector) UnmarshalJSON(b []byte) error {
	vals, err := decodeExact(b, "ys", []string{"y1", "y2", "y3", "y4", "shape"})
	if err != nil {
		return err
	}
	lv, err := LabelVectorFrom(vals)
	if err != nil {
		return err
	}
	*l = lv
	return nil
}

// decodeExact decodes a flat JSON object whose key set must equal keys, every
// value being a JSON number. Values are returned in the order of keys.
func decodeExact(b []byte, field string, keys []string) ([]float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, &ValidationError{Field: field, Reason: err.Error()}
	}
	if raw == nil {
		return nil, &ValidationError{Field: field, Reason: "missing"}
	}
	if len(raw) != len(keys) {
		got := make([]string, 0, len(raw))
		for k := range raw {
			got = append(got, k)
		}
		sort.Strings(got)
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("expected keys %s, got %s", strings.Join(keys, ","), strings.Join(got, ","))}
	}
	out := make([]float64, len(keys))
	for i, k := range keys {
		msg, ok := raw[k]
		if !ok {
			return nil, &ValidationError{Field: field + "." + k, Reason: "missing"}
		}
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			return nil, &ValidationError{Field: field + "." + k, Reason: "null"}
		}
		if err := json.Unmarshal(msg, &out[i]); err != nil {
			return nil, &ValidationError{Field: field + "." + k, Reason: "not a number"}
		}
	}
	return out, nil
}

// UnmarshalJSON requires both xs and ys to be present.
func (s *TrainingSample) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID string         `json:"id"`
		XS *FeatureVector `json:"xs"`
		YS *LabelVector   `json:"ys"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.XS == nil {
		return &ValidationError{Field: "xs", Reason: "missing"}
	}
	if raw.YS == nil {
		return &ValidationError{Field: "ys", Reason: "missing"}
	}
	*s = TrainingSample{ID: raw.ID, XS: *raw.XS, YS: *raw.YS}
	return nil
}
