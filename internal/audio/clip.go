package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ClipWriter saves recorded clips as 32-bit mono WAV files in a directory.
type ClipWriter struct {
	Dir string
}

// WriteClip writes pcm to a new timestamped file and returns its path.
func (w ClipWriter) WriteClip(pcm []int32, sampleRate float64) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(w.Dir, fmt.Sprintf("clip-%s.wav", time.Now().Format("20060102-150405.000")))
	return path, SaveWAV(path, pcm, int(sampleRate))
}

// SaveWAV writes mono 32-bit PCM to path.
func SaveWAV(path string, pcm []int32, sampleRate int) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	encoder := wav.NewEncoder(file, sampleRate, 32, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 32,
	}
	for i, sample := range pcm {
		buf.Data[i] = int(sample)
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return encoder.Close()
}

// LoadWAV reads a PCM WAV file and returns its first channel scaled to the
// full int32 range, with the file's sample rate.
func LoadWAV(path string) ([]int32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("not a valid WAV file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	depth := int(decoder.BitDepth)
	if depth < 8 || depth > 32 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", depth)
	}
	shift := uint(32 - depth)

	frames := len(buf.Data) / channels
	pcm := make([]int32, frames)
	for i := range pcm {
		v := buf.Data[i*channels]
		if depth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		pcm[i] = int32(v) << shift
	}
	return pcm, buf.Format.SampleRate, nil
}
