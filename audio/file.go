package audio

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const wavHeaderSize = 44

// LoadPCMFile reads a 16-bit mono PCM file, skipping a canonical WAV header.
func LoadPCMFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) > wavHeaderSize && string(data[0:4]) == "RIFF" {
		log.Println("📁 Detected WAV file, skipping header")
		data = data[wavHeaderSize:]
	} else {
		log.Println("📁 Detected raw PCM file")
	}

	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	return data, nil
}

// FileCapture replays PCM samples as if they came from a microphone, one
// frame per frame period.
type FileCapture struct {
	samples   []float32
	frameSize int
	period    time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
	stopped bool

	tap Tap
}

// NewFileCapture loads path and paces it at sampleRate.
func NewFileCapture(path string, sampleRate, frameSize int) (*FileCapture, error) {
	raw, err := LoadPCMFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: load %s: %w", path, err)
	}
	samples, err := FromPCM16(raw)
	if err != nil {
		return nil, err
	}
	return NewSampleCapture(samples, sampleRate, frameSize), nil
}

// NewSampleCapture replays in-memory samples.
func NewSampleCapture(samples []float32, sampleRate, frameSize int) *FileCapture {
	if sampleRate <= 0 {
		sampleRate = CaptureSampleRate
	}
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	return &FileCapture{
		samples:   samples,
		frameSize: frameSize,
		period:    time.Duration(frameSize) * time.Second / time.Duration(sampleRate),
	}
}

// SetFramePeriod overrides the real-time pacing.
func (f *FileCapture) SetFramePeriod(d time.Duration) {
	f.mu.Lock()
	f.period = d
	f.mu.Unlock()
}

// Start begins delivering frames. The final frame is zero-padded.
func (f *FileCapture) Start(onFrame func(frame []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return ErrCaptureStopped
	}
	if f.started {
		return nil
	}
	f.started = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(onFrame, f.period, f.stop, f.done)
	return nil
}

func (f *FileCapture) run(onFrame func([]float32), period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for offset := 0; offset < len(f.samples); offset += f.frameSize {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		frame := make([]float32, f.frameSize)
		copy(frame, f.samples[offset:])
		f.tap.Store(frame)
		if onFrame != nil {
			onFrame(frame)
		}
	}
	log.Printf("📁 File capture finished (%d samples)", len(f.samples))
}

// Stop halts delivery. Safe to call repeatedly and before Start.
func (f *FileCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return nil
	}
	f.stopped = true
	if f.started {
		close(f.stop)
		<-f.done
	}
	return nil
}

// Snapshot copies the most recent frame into dst.
func (f *FileCapture) Snapshot(dst []float32) int {
	return f.tap.Load(dst)
}
