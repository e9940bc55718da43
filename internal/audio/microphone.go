// SPDX-License-Identifier: MIT
/*
Package audio implements PortAudio capture and playback for the session:
- Microphone capture with mono downmix and a branchless noise gate
- Clip playback on the default output device
- WAV clip writing and reading

Thread Safety:
- Pre-allocates buffers to avoid GC in hot path
- Locks OS thread during audio processing
- The sink is called on the audio thread and must not block
*/
package audio

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Microphone opens capture streams on the configured input device.
type Microphone struct {
	config config.AudioConfig
}

// NewMicrophone returns a Microphone for cfg. No device is touched until Open.
func NewMicrophone(cfg config.AudioConfig) *Microphone {
	return &Microphone{config: cfg}
}

// Capture is one open input stream. Closing it stops the stream and releases
// the device.
type Capture struct {
	stream    *portaudio.Stream
	channels  int
	sink      func(pcm []int32)
	gate      *Gate
	monoInput []int32 // Mono buffer handed to the sink.
	closeOnce sync.Once
	closeErr  error
}

// Open starts capturing and calls sink with each mono buffer. Only the first
// channel of multichannel input is used. The sink must not retain the slice.
// On failure nothing is left open.
func (m *Microphone) Open(_ context.Context, sink func(pcm []int32)) (io.Closer, error) {
	inputDevice, err := InputDevice(m.config.InputDevice)
	if err != nil {
		return nil, err
	}

	inputLatency := inputDevice.DefaultHighInputLatency
	if m.config.LowLatency {
		inputLatency = inputDevice.DefaultLowInputLatency
	}

	c := &Capture{
		channels:  m.config.InputChannels,
		sink:      sink,
		gate:      NewGate(m.config.GateThreshold),
		monoInput: make([]int32, m.config.FramesPerBuffer),
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: m.config.InputChannels,
			Device:   inputDevice,
			Latency:  inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: m.config.FramesPerBuffer,
		SampleRate:      m.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, c.processInputStream)
	if err != nil {
		return nil, fmt.Errorf("open input stream on %q: %w", inputDevice.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream on %q: %w", inputDevice.Name, err)
	}
	c.stream = stream

	log.Infof("Microphone: Capturing from %q (%.0f Hz, %d ch, latency %s)",
		inputDevice.Name, m.config.SampleRate, m.config.InputChannels, inputLatency.Round(time.Millisecond))
	return c, nil
}

// processInputStream is the core audio processing callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (c *Capture) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	frames := len(in) / c.channels
	if frames > len(c.monoInput) {
		frames = len(c.monoInput)
	}
	mono := c.monoInput[:frames]
	for i := range mono {
		mono[i] = in[i*c.channels]
	}

	c.gate.Apply(mono)
	c.sink(mono)
}

// Close stops the stream and releases the device. It is safe to call more
// than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		if c.stream == nil {
			return
		}
		if err := c.stream.Stop(); err != nil {
			c.closeErr = err
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.stream = nil
		log.Debugf("Microphone: Capture released")
	})
	return c.closeErr
}
