package device

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/room4-2/tutorvoice/audio"
)

// ErrSpeakerClosed is returned by Play after Close.
var ErrSpeakerClosed = errors.New("speaker closed")

const speakerFramesPerBuffer = 480 // 20ms at 24kHz

type voice struct {
	start   uint64
	samples []float32
	onEnded func()
}

// Speaker is a portaudio output device. Its clock counts rendered samples,
// so scheduled start times are sample accurate.
type Speaker struct {
	rate int

	mu       sync.Mutex
	stream   *portaudio.Stream
	position uint64
	voices   map[*voice]struct{}
	recent   []float32
	closed   bool
}

// OpenSpeaker starts a mono float32 output stream at sampleRate.
func OpenSpeaker(sampleRate int) (*Speaker, error) {
	if sampleRate <= 0 {
		sampleRate = audio.PlaybackSampleRate
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: init portaudio: %w", err)
	}

	sp := &Speaker{
		rate:   sampleRate,
		voices: make(map[*voice]struct{}),
	}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), speakerFramesPerBuffer, sp.render)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("device: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("device: start output: %w", err)
	}
	sp.stream = stream

	log.Printf("🔊 Speaker started (%d Hz)", sampleRate)
	return sp, nil
}

// SampleRate returns the device rate.
func (sp *Speaker) SampleRate() int { return sp.rate }

// Now returns seconds of audio rendered so far.
func (sp *Speaker) Now() float64 {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return float64(sp.position) / float64(sp.rate)
}

// Play implements playback.Sink. samples must already be at the device rate;
// the scheduler converts before calling. A start time already in the past
// plays immediately.
func (sp *Speaker) Play(samples []float32, sampleRate int, at float64, onEnded func()) (func(), error) {
	if sampleRate != sp.rate {
		return nil, fmt.Errorf("device: %d Hz buffer on a %d Hz speaker", sampleRate, sp.rate)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return nil, ErrSpeakerClosed
	}

	start := uint64(math.Round(at * float64(sp.rate)))
	if start < sp.position {
		start = sp.position
	}
	v := &voice{start: start, samples: samples, onEnded: onEnded}
	sp.voices[v] = struct{}{}

	return func() {
		sp.mu.Lock()
		delete(sp.voices, v)
		sp.mu.Unlock()
	}, nil
}

// render runs on the portaudio thread.
func (sp *Speaker) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	var ended []func()

	sp.mu.Lock()
	from := sp.position
	to := from + uint64(len(out))
	for v := range sp.voices {
		end := v.start + uint64(len(v.samples))
		if v.start < to && end > from {
			lo := max(v.start, from)
			hi := min(end, to)
			for t := lo; t < hi; t++ {
				out[t-from] += v.samples[t-v.start]
			}
		}
		if end <= to {
			delete(sp.voices, v)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	sp.position = to
	sp.recent = append(sp.recent[:0], out...)
	sp.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	if len(ended) > 0 {
		go func() {
			for _, fn := range ended {
				fn()
			}
		}()
	}
}

// Snapshot copies the most recently rendered samples into dst.
func (sp *Speaker) Snapshot(dst []float32) int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return copy(dst, sp.recent)
}

// Close silences all voices and releases the device. Safe to call twice.
func (sp *Speaker) Close() error {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return nil
	}
	sp.closed = true
	clear(sp.voices)
	sp.mu.Unlock()

	var errs []error
	if err := sp.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("device: stop output: %w", err))
	}
	if err := sp.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("device: close output: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("device: terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}
