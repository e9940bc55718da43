// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the sketchpad session and data server.
const (
	// Audio capture defaults
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultChannels        = 1           // Mono audio
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 512         // Also the analyser FFT size
	DefaultFFTWindow       = "Blackman"
	DefaultSmoothing       = 0.8
	DefaultMinDecibels     = -100.0
	DefaultMaxDecibels     = -30.0

	// Feature extraction constants
	DefaultMidpoint         = 128
	DefaultLoudnessScale    = 10.0
	DefaultPitchDivisor     = 50.0
	DefaultBrightnessScale  = 1.2
	DefaultRoughnessDivisor = 40.0

	// Recording defaults
	DefaultPeakBlend  = true
	DefaultMeanWeight = 0.3 // 30% mean + 70% peak

	// Shape classification
	DefaultShapeCount = 5

	// Learning defaults
	DefaultHiddenUnits  = 16
	DefaultLearningRate = 0.3
	DefaultEpochs       = 30
	DefaultMinSamples   = 0
	DefaultPredictEvery = 5
	DefaultSeed         = 7

	// Store defaults
	DefaultSchemaVersion = 1
	DefaultLocalKey      = "iml:training"
	DefaultRemoteTimeout = 5 * time.Second
	MergeRemote          = "remote"
	MergeUnion           = "union"

	// Server defaults
	DefaultServerAddr = ":3000"
	DefaultDataFile   = "training-data.json"
	DefaultBodyLimit  = 10 * 1024 * 1024 // 10MB

	// Session defaults
	DefaultFPS = 60

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinShapeCount   = 2
	MaxShapeCount   = 8
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`          // Optional rotated JSON log file.
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of the session (e.g., "list").
	Audio     AudioConfig     `yaml:"audio"`
	Features  FeatureConfig   `yaml:"features"`
	Recording RecordingConfig `yaml:"recording"`
	Shape     ShapeConfig     `yaml:"shape"`
	Learning  LearningConfig  `yaml:"learning"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`

	// Populated by the CLI only.
	Args []string `yaml:"-"`
}

// AudioConfig holds settings related to audio input and the analyser.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per buffer; also the analyser FFT size.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture.
	FFTWindow       string  `yaml:"fft_window"`        // Window function name (e.g., "Blackman", "Hann").
	Smoothing       float64 `yaml:"smoothing"`         // Analyser time smoothing constant (0-1).
	MinDecibels     float64 `yaml:"min_decibels"`      // dB mapped to byte 0.
	MaxDecibels     float64 `yaml:"max_decibels"`      // dB mapped to byte 255.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Noise gate threshold (0-1), 0 disables.
}

// FeatureConfig holds the scaling constants of the feature extractor.
type FeatureConfig struct {
	Midpoint         int     `yaml:"midpoint"`
	LoudnessScale    float64 `yaml:"loudness_scale"`
	PitchDivisor     float64 `yaml:"pitch_divisor"`
	BrightnessScale  float64 `yaml:"brightness_scale"`
	RoughnessDivisor float64 `yaml:"roughness_divisor"`
}

// RecordingConfig holds settings for clip capture and aggregation.
type RecordingConfig struct {
	PeakBlend   bool    `yaml:"peak_blend"`           // Blend the mean with tracked peaks on finalize.
	MeanWeight  float64 `yaml:"mean_weight"`          // Weight of the mean in the blend.
	SaveClips   bool    `yaml:"save_clips"`           // Write each recording to a WAV file.
	OutputDir   string  `yaml:"output_dir"`           // Directory to save recorded clips.
	MaxDuration int     `yaml:"max_duration_seconds"` // Maximum clip length kept for playback (0 for unlimited).
}

// ShapeConfig configures the rule-based classifier.
type ShapeConfig struct {
	Count    int        `yaml:"count"`
	Ceilings [4]float64 `yaml:"ceilings"` // loudness, pitch, brightness, roughness
}

// LearningConfig configures the regression model and prediction cadence.
type LearningConfig struct {
	HiddenUnits  int     `yaml:"hidden_units"`
	LearningRate float64 `yaml:"learning_rate"`
	Epochs       int     `yaml:"epochs"`
	MinSamples   int     `yaml:"min_samples"`   // Samples required before learned predictions replace rules.
	PredictEvery int     `yaml:"predict_every"` // Frames between prediction requests.
	Seed         uint64  `yaml:"seed"`
}

// StoreConfig configures local and remote persistence of training samples.
type StoreConfig struct {
	LocalDir      string        `yaml:"local_dir"` // Badger directory; empty keeps data in memory.
	LocalKey      string        `yaml:"local_key"`
	SchemaVersion int           `yaml:"schema_version"`
	RemoteURL     string        `yaml:"remote_url"` // Base URL of the shared data server; empty disables.
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	Merge         string        `yaml:"merge"` // "remote" or "union"
}

// ServerConfig configures the shared training-data HTTP service.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	DataFile     string `yaml:"data_file"`
	BodyLimit    int    `yaml:"body_limit"`
	AllowOrigins string `yaml:"allow_origins"`
}

// TransportConfig holds settings related to sending visual state to renderers.
type TransportConfig struct {
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`
	WebSocketAddr     string        `yaml:"websocket_addr"`
	WebSocketInterval time.Duration `yaml:"websocket_interval"`
	UDPEnabled        bool          `yaml:"udp_enabled"`        // Enable sending visual state over UDP.
	UDPTargetAddress  string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval   time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
}

// SessionConfig configures the frame loop.
type SessionConfig struct {
	FPS            int  `yaml:"fps"`
	ListenWhenIdle bool `yaml:"listen_when_idle"` // Keep a live mic open while idle for continuous prediction.
}

// NewConfig creates a new Config instance with default values.
// This is used as the base configuration before applying a
// configuration file, environment overrides or command line flags.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			FFTWindow:       DefaultFFTWindow,
			Smoothing:       DefaultSmoothing,
			MinDecibels:     DefaultMinDecibels,
			MaxDecibels:     DefaultMaxDecibels,
		},
		Features: FeatureConfig{
			Midpoint:         DefaultMidpoint,
			LoudnessScale:    DefaultLoudnessScale,
			PitchDivisor:     DefaultPitchDivisor,
			BrightnessScale:  DefaultBrightnessScale,
			RoughnessDivisor: DefaultRoughnessDivisor,
		},
		Recording: RecordingConfig{
			PeakBlend:  DefaultPeakBlend,
			MeanWeight: DefaultMeanWeight,
			OutputDir:  "./recordings",
		},
		Shape: ShapeConfig{
			Count:    DefaultShapeCount,
			Ceilings: [4]float64{3, 3, 3.6, 2},
		},
		Learning: LearningConfig{
			HiddenUnits:  DefaultHiddenUnits,
			LearningRate: DefaultLearningRate,
			Epochs:       DefaultEpochs,
			MinSamples:   DefaultMinSamples,
			PredictEvery: DefaultPredictEvery,
			Seed:         DefaultSeed,
		},
		Store: StoreConfig{
			LocalDir:      "./data/local",
			LocalKey:      DefaultLocalKey,
			SchemaVersion: DefaultSchemaVersion,
			RemoteTimeout: DefaultRemoteTimeout,
			Merge:         MergeRemote,
		},
		Server: ServerConfig{
			Addr:         DefaultServerAddr,
			DataFile:     DefaultDataFile,
			BodyLimit:    DefaultBodyLimit,
			AllowOrigins: "*",
		},
		Transport: TransportConfig{
			WebSocketEnabled:  true,
			WebSocketAddr:     ":8080",
			WebSocketInterval: 16 * time.Millisecond,
			UDPTargetAddress:  "127.0.0.1:9090",
			UDPSendInterval:   33 * time.Millisecond, // ~30Hz.
		},
		Session: SessionConfig{
			FPS:            DefaultFPS,
			ListenWhenIdle: true,
		},
	}
}
