// Package playback schedules decoded assistant audio back-to-back on an
// output device clock.
package playback

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/room4-2/tutorvoice/audio"
)

// Clock reports the output device's monotonic time in seconds.
type Clock interface {
	Now() float64
}

// Sink starts samples at an absolute clock time. onEnded fires at most once,
// when the samples finish playing naturally; stop silences them early.
// Play must not invoke onEnded before it returns.
type Sink interface {
	Play(samples []float32, sampleRate int, at float64, onEnded func()) (stop func(), err error)
}

// ScheduledBuffer describes one buffer handed to the sink.
type ScheduledBuffer struct {
	ID       uint64
	Start    float64
	Duration float64
}

// Scheduler plays buffers with no gap and no overlap regardless of arrival
// jitter. It is the only owner of the in-flight handles.
type Scheduler struct {
	clock Clock
	sink  Sink
	rate  int

	mu        sync.Mutex
	nextStart float64
	seq       uint64
	scheduled map[uint64]func()
}

// NewScheduler returns a scheduler writing to sink at the sink's sampleRate.
// A zero sampleRate keeps each buffer's own rate.
func NewScheduler(clock Clock, sink Sink, sampleRate int) *Scheduler {
	return &Scheduler{
		clock:     clock,
		sink:      sink,
		rate:      sampleRate,
		scheduled: make(map[uint64]func()),
	}
}

// Schedule queues buf to start right after the previous buffer ends, or
// now if the cursor is already in the past.
func (s *Scheduler) Schedule(buf *audio.Buffer) (ScheduledBuffer, error) {
	if buf == nil || len(buf.Samples) == 0 {
		return ScheduledBuffer{}, nil
	}

	samples, rate := buf.Samples, buf.SampleRate
	if s.rate > 0 && rate != s.rate {
		samples = audio.Resample(samples, rate, s.rate)
		rate = s.rate
	}
	duration := float64(len(samples)) / float64(rate)

	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := math.Max(s.clock.Now(), s.nextStart)
	s.seq++
	id := s.seq

	stop, err := s.sink.Play(samples, rate, startAt, func() { s.ended(id) })
	if err != nil {
		return ScheduledBuffer{}, fmt.Errorf("schedule buffer: %w", err)
	}

	s.nextStart = startAt + duration
	s.scheduled[id] = stop
	return ScheduledBuffer{ID: id, Start: startAt, Duration: duration}, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.scheduled, id)
	s.mu.Unlock()
}

// Flush stops every scheduled buffer and resets the cursor to zero so the
// next turn starts a fresh run. It returns how many buffers were stopped.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.scheduled))
	for id, stop := range s.scheduled {
		stops = append(stops, stop)
		delete(s.scheduled, id)
	}
	s.nextStart = 0
	s.mu.Unlock()

	for _, stop := range stops {
		if stop != nil {
			stop()
		}
	}
	if len(stops) > 0 {
		log.Printf("🔇 Flushed %d scheduled buffer(s)", len(stops))
	}
	return len(stops)
}

// NextStartTime returns the cursor where the next buffer will begin.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Pending returns the number of buffers queued or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

// Playing reports whether any buffer is queued or playing.
func (s *Scheduler) Playing() bool {
	return s.Pending() > 0
}
