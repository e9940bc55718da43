package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sketchpad/internal/audio"
	"sketchpad/internal/config"
	"sketchpad/internal/kv"
	"sketchpad/internal/sample"
	"sketchpad/internal/store"
	"sketchpad/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points local storage at a fresh Badger directory.
func writeConfig(t *testing.T) (path, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "local")
	path = filepath.Join(dir, "config.yaml")
	content := "log_level: warn\nstore:\n  local_dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dataDir
}

func seed(t *testing.T, dataDir string, samples ...sample.TrainingSample) {
	t.Helper()
	cfg := config.NewConfig()
	local, err := kv.NewBadger(kv.BadgerOptions{Dir: dataDir})
	require.NoError(t, err)
	s := store.New(local, nil, sample.NewValidator(cfg.Shape.Count), store.OptionsFrom(cfg.Store))
	for _, ts := range samples {
		require.NoError(t, s.Add(context.Background(), ts))
	}
	require.NoError(t, s.Close())
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func trainingSet() []sample.TrainingSample {
	return []sample.TrainingSample{
		{XS: sample.FeatureVector{Loudness: 0.2, Pitch: 0.5, Brightness: 0.6, Roughness: 0.1}, YS: sample.LabelVector{Y1: 0.1, Y2: 0.2, Y3: 0.3, Y4: 0.4, Shape: 0}},
		{XS: sample.FeatureVector{Loudness: 2.5, Pitch: 2.0, Brightness: 2.4, Roughness: 1.5}, YS: sample.LabelVector{Y1: 0.9, Y2: 0.8, Y3: 0.7, Y4: 0.6, Shape: 2}},
	}
}

func TestExportAndClear(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)
	seed(t, dataDir, trainingSet()...)

	csvPath := filepath.Join(t.TempDir(), "out.csv")
	run(t, "export", "--config", cfgPath, "-o", csvPath)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(store.CSVHeader, ","), lines[0])

	out := run(t, "clear", "--config", cfgPath)
	assert.Contains(t, out, "All data cleared")

	out = run(t, "export", "--config", cfgPath)
	assert.Equal(t, strings.Join(store.CSVHeader, ","), strings.TrimSpace(out))
}

func TestAnalyse(t *testing.T) {
	cfgPath, dataDir := writeConfig(t)
	wavPath := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, audio.SaveWAV(wavPath, utils.GenerateSquareWave(22050, 44100, 440, 0.5), 44100))

	out := run(t, "analyse", wavPath, "--config", cfgPath)
	assert.Contains(t, out, "0.50s at 44100 Hz, 30 frames")
	assert.Contains(t, out, "(rules)")
	assert.NotContains(t, out, "learned")

	out = run(t, "analyse", wavPath, "--config", cfgPath, "--predict")
	assert.Contains(t, out, "no training samples")

	seed(t, dataDir, trainingSet()...)
	out = run(t, "analyse", wavPath, "--config", cfgPath, "--predict")
	assert.Contains(t, out, "learned")
}

func TestAnalyseMissingFile(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"analyse", filepath.Join(t.TempDir(), "missing.wav"), "--config", cfgPath})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestInvalidFlagOverride(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"export", "--config", cfgPath, "--frames-per-buffer", "500"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frames_per_buffer")
}
