package audio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPCMFile_SkipsWAVHeader(t *testing.T) {
	dir := t.TempDir()
	header := make([]byte, wavHeaderSize)
	copy(header, "RIFF")
	path := filepath.Join(dir, "speech.wav")
	require.NoError(t, os.WriteFile(path, append(header, 0x01, 0x00, 0x02, 0x00), 0o600))

	data, err := LoadPCMFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, data)
}

func TestLoadPCMFile_RawTruncatesOddByte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speech.pcm")
	require.NoError(t, os.WriteFile(path, []byte{0x01, 0x00, 0x02}, 0o600))

	data, err := LoadPCMFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, data)
}

func TestFileCapture_DeliversFramesInOrder(t *testing.T) {
	samples := make([]float32, 10)
	for i := range samples {
		samples[i] = float32(i+1) / 10
	}
	fc := NewSampleCapture(samples, CaptureSampleRate, 4)
	fc.SetFramePeriod(time.Millisecond)

	var mu sync.Mutex
	var frames [][]float32
	require.NoError(t, fc.Start(func(frame []float32) {
		mu.Lock()
		frames = append(frames, frame)
		mu.Unlock()
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, fc.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, frames[0])
	assert.Equal(t, []float32{0.9, 1.0, 0, 0}, frames[2], "last frame is zero padded")

	snap := make([]float32, 4)
	assert.Equal(t, 4, fc.Snapshot(snap))
	assert.Equal(t, frames[2], snap)
}

func TestFileCapture_StopIsIdempotentAndBlocksRestart(t *testing.T) {
	fc := NewSampleCapture(make([]float32, 8), CaptureSampleRate, 4)

	require.NoError(t, fc.Stop())
	require.NoError(t, fc.Stop())
	assert.ErrorIs(t, fc.Start(nil), ErrCaptureStopped)
}
