package playback

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/tutorvoice/audio"
)

type fakeClock struct{ now float64 }

func (c *fakeClock) Now() float64 { return c.now }

type playCall struct {
	at      float64
	samples int
	onEnded func()
	stopped bool
}

type fakeSink struct {
	mu    sync.Mutex
	calls []*playCall
	err   error
}

func (s *fakeSink) Play(samples []float32, sampleRate int, at float64, onEnded func()) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	c := &playCall{at: at, samples: len(samples), onEnded: onEnded}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		c.stopped = true
		s.mu.Unlock()
	}, nil
}

func seconds(d float64, rate int) *audio.Buffer {
	return &audio.Buffer{Samples: make([]float32, int(d*float64(rate))), SampleRate: rate, Channels: 1}
}

func TestScheduler_BackToBackFromZero(t *testing.T) {
	clock := &fakeClock{}
	sink := &fakeSink{}
	s := NewScheduler(clock, sink, 24000)

	first, err := s.Schedule(seconds(1.0, 24000))
	require.NoError(t, err)
	second, err := s.Schedule(seconds(0.5, 24000))
	require.NoError(t, err)

	assert.Equal(t, 0.0, first.Start)
	assert.Equal(t, 1.0, second.Start)
	assert.Equal(t, 1.5, s.NextStartTime())
	assert.Equal(t, 2, s.Pending())
}

func TestScheduler_LateBufferStartsNow(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(clock, &fakeSink{}, 24000)

	_, err := s.Schedule(seconds(0.5, 24000))
	require.NoError(t, err)

	clock.now = 3.25
	late, err := s.Schedule(seconds(0.5, 24000))
	require.NoError(t, err)

	assert.Equal(t, 3.25, late.Start)
	assert.Equal(t, 3.75, s.NextStartTime())
}

func TestScheduler_MonotonicUnderJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	clock := &fakeClock{}
	s := NewScheduler(clock, &fakeSink{}, 24000)

	var prevEnd float64
	for i := 0; i < 200; i++ {
		clock.now += rng.Float64() * 0.3
		d := 0.02 + rng.Float64()*0.4
		sb, err := s.Schedule(seconds(d, 24000))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, sb.Start, prevEnd-1e-9, "buffer %d overlaps its predecessor", i)
		assert.GreaterOrEqual(t, sb.Start, clock.now)
		prevEnd = sb.Start + sb.Duration
	}
}

func TestScheduler_NaturalEndRemovesHandle(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(&fakeClock{}, sink, 24000)

	_, err := s.Schedule(seconds(0.1, 24000))
	require.NoError(t, err)
	_, err = s.Schedule(seconds(0.1, 24000))
	require.NoError(t, err)
	require.Equal(t, 2, s.Pending())

	sink.calls[0].onEnded()
	assert.Equal(t, 1, s.Pending())
	assert.True(t, s.Playing())

	sink.calls[1].onEnded()
	assert.False(t, s.Playing())
}

func TestScheduler_FlushStopsEverythingAndResetsCursor(t *testing.T) {
	sink := &fakeSink{}
	clock := &fakeClock{now: 2}
	s := NewScheduler(clock, sink, 24000)

	for i := 0; i < 5; i++ {
		_, err := s.Schedule(seconds(0.25, 24000))
		require.NoError(t, err)
	}
	sink.calls[0].onEnded()

	assert.Equal(t, 4, s.Flush())
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0.0, s.NextStartTime())
	for i, c := range sink.calls[1:] {
		assert.True(t, c.stopped, "buffer %d not stopped", i+1)
	}

	// a stale completion after the flush is harmless
	sink.calls[1].onEnded()
	assert.Equal(t, 0, s.Pending())

	assert.Equal(t, 0, s.Flush())
}

func TestScheduler_ResamplesToSinkRate(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(&fakeClock{}, sink, 24000)

	sb, err := s.Schedule(seconds(1.0, 16000))
	require.NoError(t, err)

	assert.Equal(t, 24000, sink.calls[0].samples)
	assert.InDelta(t, 1.0, sb.Duration, 1e-9)
}

func TestScheduler_SinkErrorLeavesCursor(t *testing.T) {
	s := NewScheduler(&fakeClock{}, &fakeSink{err: errors.New("device gone")}, 24000)

	_, err := s.Schedule(seconds(1.0, 24000))
	require.Error(t, err)
	assert.Equal(t, 0.0, s.NextStartTime())
	assert.False(t, s.Playing())
}

func TestScheduler_IgnoresEmptyBuffers(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler(&fakeClock{}, sink, 24000)

	_, err := s.Schedule(&audio.Buffer{SampleRate: 24000})
	require.NoError(t, err)
	assert.Empty(t, sink.calls)
}
