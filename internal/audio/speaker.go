package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"sketchpad/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Speaker plays clips on the default output device.
type Speaker struct {
	framesPerBuffer int
}

// NewSpeaker returns a Speaker writing framesPerBuffer frames per callback.
func NewSpeaker(framesPerBuffer int) *Speaker {
	return &Speaker{framesPerBuffer: framesPerBuffer}
}

type playback struct {
	mu        sync.Mutex
	pcm       []int32
	pos       int
	stream    *portaudio.Stream
	closeOnce sync.Once
}

// Play starts playing pcm (mono) at sampleRate. Playback ends on its own
// when the clip is exhausted; Close stops it early. The context is not
// retained.
func (s *Speaker) Play(_ context.Context, pcm []int32, sampleRate float64) (io.Closer, error) {
	p := &playback{pcm: pcm}
	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, s.framesPerBuffer, p.fill)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	p.stream = stream
	log.Debugf("Speaker: Playing %d samples at %.0f Hz", len(pcm), sampleRate)
	return p, nil
}

// fill is the output callback; past the end of the clip it writes silence.
func (p *playback) fill(out []int32) {
	p.mu.Lock()
	n := copy(out, p.pcm[p.pos:])
	p.pos += n
	p.mu.Unlock()
	clear(out[n:])
}

func (p *playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if stopErr := p.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := p.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
