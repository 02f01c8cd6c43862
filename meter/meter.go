// Package meter reduces the live audio path to a single 0..1 activity level
// for UI animation. It never influences protocol or scheduling decisions.
package meter

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultSize     = 1024
	DefaultCeiling  = 0.02
	DefaultInterval = 16 * time.Millisecond
)

// Source exposes the most recent time-domain samples of an audio path.
type Source interface {
	Snapshot(dst []float32) int
}

// Meter computes the mean magnitude of a windowed spectrum, normalized
// against an empirical ceiling.
type Meter struct {
	size     int
	ceiling  float64
	interval time.Duration

	mu      sync.Mutex
	fft     *fourier.FFT
	window  []float64
	samples []float32
	seq     []float64
	coeffs  []complex128
}

// New returns a meter analysing size samples per tick.
func New(size int, ceiling float64, interval time.Duration) *Meter {
	if size <= 1 {
		size = DefaultSize
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}

	return &Meter{
		size:     size,
		ceiling:  ceiling,
		interval: interval,
		fft:      fourier.NewFFT(size),
		window:   window,
		samples:  make([]float32, size),
		seq:      make([]float64, size),
	}
}

// Level samples src once and returns the normalized activity level.
func (m *Meter) Level(src Source) float64 {
	if src == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := src.Snapshot(m.samples)
	if n == 0 {
		return 0
	}
	for i := range m.seq {
		if i < n {
			m.seq[i] = float64(m.samples[i]) * m.window[i]
		} else {
			m.seq[i] = 0
		}
	}

	m.coeffs = m.fft.Coefficients(m.coeffs, m.seq)

	// skip DC; scale so a full-scale bin reads ~1
	var sum float64
	bins := m.coeffs[1:]
	for _, c := range bins {
		sum += math.Hypot(real(c), imag(c))
	}
	mean := sum / float64(len(bins)) * 2 / float64(m.size)

	level := mean / m.ceiling
	switch {
	case math.IsNaN(level) || level < 0:
		return 0
	case level > 1:
		return 1
	}
	return level
}

// Run samples on every tick until ctx is cancelled. source is re-evaluated
// each tick so the caller can switch between input and output paths.
func (m *Meter) Run(ctx context.Context, source func() Source, onLevel func(float64)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level := m.Level(source())
			if onLevel != nil {
				onLevel(level)
			}
		}
	}
}
