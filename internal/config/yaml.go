// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"sketchpad/pkg/bitint"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// configCandidates are searched, in order, when no explicit path is given.
var configCandidates = []string{
	"config.yaml",
	"sketchpad.yaml",
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. A ".env" file in the working directory is loaded into the environment
// first (existing variables win). After loading defaults or from file, it applies
// environment variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if path == "" {
		for _, candidate := range configCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges that would otherwise fail deep inside the
// analyser, the learner or the store.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f out of range [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if n := c.Audio.FramesPerBuffer; !bitint.IsPowerOfTwo(n) || n > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer must be a power of 2 <= %d, got %d (try %d)",
			MaxBufferFrames, n, min(bitint.NextPowerOfTwo(n), MaxBufferFrames))
	}
	if c.Audio.InputChannels < 1 {
		return fmt.Errorf("audio.input_channels must be positive, got %d", c.Audio.InputChannels)
	}
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, c.Audio.InputDevice)
	}
	if c.Audio.Smoothing < 0 || c.Audio.Smoothing >= 1 {
		return fmt.Errorf("audio.smoothing must be in [0, 1), got %g", c.Audio.Smoothing)
	}
	if c.Audio.MinDecibels >= c.Audio.MaxDecibels {
		return fmt.Errorf("audio.min_decibels (%g) must be below audio.max_decibels (%g)", c.Audio.MinDecibels, c.Audio.MaxDecibels)
	}

	if c.Features.Midpoint <= 0 || c.Features.Midpoint >= 256 {
		return fmt.Errorf("features.midpoint must be in (0, 256), got %d", c.Features.Midpoint)
	}
	for name, v := range map[string]float64{
		"features.loudness_scale":    c.Features.LoudnessScale,
		"features.pitch_divisor":     c.Features.PitchDivisor,
		"features.brightness_scale":  c.Features.BrightnessScale,
		"features.roughness_divisor": c.Features.RoughnessDivisor,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a positive number, got %g", name, v)
		}
	}

	if c.Recording.MeanWeight < 0 || c.Recording.MeanWeight > 1 {
		return fmt.Errorf("recording.mean_weight must be in [0, 1], got %g", c.Recording.MeanWeight)
	}

	if c.Shape.Count < MinShapeCount || c.Shape.Count > MaxShapeCount {
		return fmt.Errorf("shape.count must be in [%d, %d], got %d", MinShapeCount, MaxShapeCount, c.Shape.Count)
	}
	for i, ceil := range c.Shape.Ceilings {
		if !(ceil > 0) {
			return fmt.Errorf("shape.ceilings[%d] must be positive, got %g", i, ceil)
		}
	}

	if c.Learning.HiddenUnits < 1 {
		return fmt.Errorf("learning.hidden_units must be positive, got %d", c.Learning.HiddenUnits)
	}
	if !(c.Learning.LearningRate > 0) {
		return fmt.Errorf("learning.learning_rate must be positive, got %g", c.Learning.LearningRate)
	}
	if c.Learning.Epochs < 1 {
		return fmt.Errorf("learning.epochs must be positive, got %d", c.Learning.Epochs)
	}
	if c.Learning.MinSamples < 0 {
		return fmt.Errorf("learning.min_samples must be >= 0, got %d", c.Learning.MinSamples)
	}
	if c.Learning.PredictEvery < 1 {
		return fmt.Errorf("learning.predict_every must be positive, got %d", c.Learning.PredictEvery)
	}

	if c.Store.LocalKey == "" {
		return errors.New("store.local_key must be set")
	}
	if c.Store.RemoteTimeout <= 0 {
		return fmt.Errorf("store.remote_timeout must be positive, got %s", c.Store.RemoteTimeout)
	}
	if c.Store.Merge != MergeRemote && c.Store.Merge != MergeUnion {
		return fmt.Errorf("store.merge must be %q or %q, got %q", MergeRemote, MergeUnion, c.Store.Merge)
	}

	if c.Server.DataFile == "" {
		return errors.New("server.data_file must be set")
	}

	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return errors.New("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return errors.New("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	if c.Session.FPS < 1 || c.Session.FPS > 240 {
		return fmt.Errorf("session.fps must be in [1, 240], got %d", c.Session.FPS)
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables (and PORT, as the original server
// honoured it) on top of file or default values.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			if bVal {
				cfg.LogLevel = "debug"
			}
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok && val != "" {
		cfg.LogLevel = val
	}

	// ENV_REMOTE_URL
	if val, ok := os.LookupEnv("ENV_REMOTE_URL"); ok {
		cfg.Store.RemoteURL = val
	}

	// PORT
	if val, ok := os.LookupEnv("PORT"); ok && val != "" {
		if _, err := strconv.Atoi(val); err == nil {
			cfg.Server.Addr = ":" + val
		}
	}
	// ENV_DATA_FILE
	if val, ok := os.LookupEnv("ENV_DATA_FILE"); ok && val != "" {
		cfg.Server.DataFile = val
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}
}
