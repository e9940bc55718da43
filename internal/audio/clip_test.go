package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	pcm := []int32{0, 1 << 20, -(1 << 20), math.MaxInt32, math.MinInt32 + 1, 12345}

	require.NoError(t, SaveWAV(path, pcm, 44100))

	got, rate, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, rate)
	assert.Equal(t, pcm, got)
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o644))

	_, _, err := LoadWAV(path)
	assert.Error(t, err)

	_, _, err = LoadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestClipWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "clips")
	w := ClipWriter{Dir: dir}

	path, err := w.WriteClip([]int32{1, 2, 3}, 48000)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	got, rate, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, rate)
	assert.Equal(t, []int32{1, 2, 3}, got)
}
