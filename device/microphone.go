// Package device binds capture and playback to the host audio hardware
// through portaudio.
package device

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/room4-2/tutorvoice/audio"
)

const frameQueueSize = 16

// Microphone captures mono float32 frames from the default input device.
// Frames are handed to onFrame from a single delivery goroutine, never from
// the audio thread.
type Microphone struct {
	sampleRate int
	frameSize  int

	mu      sync.Mutex
	stream  *portaudio.Stream
	frames  chan []float32
	done    chan struct{}
	started bool
	stopped bool
	dropped atomic.Int64

	tap audio.Tap
}

// NewMicrophone prepares a capture stream; the device is acquired by Start.
func NewMicrophone(sampleRate, frameSize int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = audio.CaptureSampleRate
	}
	if frameSize <= 0 {
		frameSize = audio.FrameSize
	}
	return &Microphone{sampleRate: sampleRate, frameSize: frameSize}
}

// Start opens the input device and begins delivering frames.
func (m *Microphone) Start(onFrame func(frame []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return audio.ErrCaptureStopped
	}
	if m.started {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: init portaudio: %w", err)
	}

	m.frames = make(chan []float32, frameQueueSize)
	m.done = make(chan struct{})

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frameSize, m.onAudio)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("device: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("device: start capture: %w", err)
	}

	m.stream = stream
	m.started = true
	go m.deliver(onFrame, m.frames, m.done)

	log.Printf("🎤 Microphone started (%d Hz, %d samples/frame)", m.sampleRate, m.frameSize)
	return nil
}

// onAudio runs on the portaudio thread.
func (m *Microphone) onAudio(in []float32) {
	frame := make([]float32, len(in))
	copy(frame, in)
	m.tap.Store(frame)
	select {
	case m.frames <- frame:
	default:
		m.dropped.Add(1)
	}
}

func (m *Microphone) deliver(onFrame func([]float32), frames <-chan []float32, done chan<- struct{}) {
	defer close(done)
	for frame := range frames {
		if onFrame != nil {
			onFrame(frame)
		}
	}
}

// Stop releases the device. Safe to call repeatedly and before Start.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	if !m.started {
		return nil
	}

	var errs []error
	if err := m.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("device: stop capture: %w", err))
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("device: close capture: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("device: terminate portaudio: %w", err))
	}
	close(m.frames)
	<-m.done

	if dropped := m.dropped.Load(); dropped > 0 {
		log.Printf("⚠️ Microphone dropped %d frames", dropped)
	}
	return errors.Join(errs...)
}

// Snapshot copies the most recent captured samples into dst.
func (m *Microphone) Snapshot(dst []float32) int {
	return m.tap.Load(dst)
}
