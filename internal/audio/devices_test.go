package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost replaces the PortAudio device queries for the duration of a test.
func fakeHost(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	origDevices, origDefault := paLibDevicesFunc, paLibDefaultInputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultInputDeviceFunc = origDevices, origDefault
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		for _, info := range infos {
			if info.MaxInputChannels > 0 {
				return info, nil
			}
		}
		return nil, errors.New("no default input device")
	}
}

func hostInfos() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{
			Name:                    "Built-in Mic",
			MaxInputChannels:        1,
			DefaultSampleRate:       44100,
			DefaultLowInputLatency:  5 * time.Millisecond,
			DefaultHighInputLatency: 20 * time.Millisecond,
		},
		{Name: "Interface", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 96000},
	}
}

func TestHostDevices(t *testing.T) {
	fakeHost(t, hostInfos(), nil)

	devices, err := HostDevices()
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, Device{
		ID:                1,
		Name:              "Built-in Mic",
		MaxInputChannels:  1,
		DefaultSampleRate: 44100,
		LowLatencyMs:      5,
		HighLatencyMs:     20,
	}, devices[1])

	types := make([]string, len(devices))
	for i, d := range devices {
		types[i] = d.Type()
	}
	assert.Equal(t, []string{"Output", "Input", "Input/Output"}, types)
	assert.Equal(t, "Unknown", Device{}.Type())
}

func TestHostDevicesError(t *testing.T) {
	fakeHost(t, nil, errors.New("host unavailable"))

	_, err := HostDevices()
	assert.ErrorContains(t, err, "host unavailable")
}

func TestInputDevice(t *testing.T) {
	fakeHost(t, hostInfos(), nil)

	dev, err := InputDevice(-1)
	require.NoError(t, err)
	assert.Equal(t, "Built-in Mic", dev.Name)

	dev, err = InputDevice(2)
	require.NoError(t, err)
	assert.Equal(t, "Interface", dev.Name)

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", 13, "invalid device ID"},
		{"Output only", 0, "does not support input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InputDevice(tt.id)
			assert.ErrorContains(t, err, tt.substr)
		})
	}
}

func TestInputDeviceDefaultError(t *testing.T) {
	fakeHost(t, []*portaudio.DeviceInfo{{Name: "Speakers", MaxOutputChannels: 2}}, nil)

	_, err := InputDevice(-1)
	assert.ErrorContains(t, err, "no default input device")
}

func TestListDevices(t *testing.T) {
	fakeHost(t, hostInfos(), nil)

	var buf bytes.Buffer
	require.NoError(t, ListDevices(&buf))
	out := buf.String()
	assert.Contains(t, out, "[1] Built-in Mic (Input)")
	assert.Contains(t, out, "Default sample rate: 96000 Hz")
	assert.Contains(t, out, "Latency: Low=5.00ms, High=20.00ms")
}

func TestPaDevicesNeverNil(t *testing.T) {
	fakeHost(t, nil, nil)

	devices, err := paDevices()
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestInitializeTerminate(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	t.Cleanup(func() { paLibInitialize, paLibTerminate = origInit, origTerm })

	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { return nil }
	assert.NoError(t, Initialize())
	assert.NoError(t, Terminate())

	cause := errors.New("no audio host")
	paLibInitialize = func() error { return cause }
	paLibTerminate = func() error { return cause }

	err := Initialize()
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "failed to initialize PortAudio")
	assert.ErrorIs(t, Terminate(), cause)
}
