package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/tutorvoice/store"
)

// ErrBufferFull is returned when a turn's audio exceeds the recorder limit
var ErrBufferFull = errors.New("audio buffer full")

// TurnRecorder accumulates one turn for persistence. Recording is
// best-effort and never affects playback.
type TurnRecorder struct {
	user        string
	assistant   strings.Builder
	chunks      [][]byte
	totalSize   int
	maxSize     int
	sampleRate  int
	interrupted bool
	mu          sync.Mutex
}

// NewTurnRecorder creates a recorder keeping at most maxSize audio bytes
func NewTurnRecorder(maxSize int) *TurnRecorder {
	return &TurnRecorder{maxSize: maxSize}
}

// SetUser replaces the user's transcript for the turn
func (tr *TurnRecorder) SetUser(text string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.user = text
}

// AppendAssistant adds a fragment of the assistant's transcript
func (tr *TurnRecorder) AppendAssistant(text string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.assistant.WriteString(text)
}

// AppendAudio adds a PCM16 chunk
// Returns ErrBufferFull if adding the chunk would exceed maxSize
func (tr *TurnRecorder) AppendAudio(chunk []byte, sampleRate int) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	newSize := tr.totalSize + len(chunk)
	if newSize > tr.maxSize {
		return ErrBufferFull
	}

	if tr.sampleRate == 0 {
		tr.sampleRate = sampleRate
	}
	tr.chunks = append(tr.chunks, chunk)
	tr.totalSize = newSize
	return nil
}

// Interrupt drops the assistant audio heard so far and flags the turn
func (tr *TurnRecorder) Interrupt() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.chunks = nil
	tr.totalSize = 0
	tr.interrupted = true
}

// Finish returns the recorded turn and resets the recorder. ok is false
// when nothing happened during the turn.
func (tr *TurnRecorder) Finish() (turn store.Turn, ok bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	turn = store.Turn{
		User:        tr.user,
		Assistant:   tr.assistant.String(),
		Interrupted: tr.interrupted,
		SampleRate:  tr.sampleRate,
		CompletedAt: time.Now(),
	}
	if tr.totalSize > 0 {
		turn.Audio = make([]byte, 0, tr.totalSize)
		for _, chunk := range tr.chunks {
			turn.Audio = append(turn.Audio, chunk...)
		}
	}
	ok = turn.User != "" || turn.Assistant != "" || len(turn.Audio) > 0 || turn.Interrupted

	tr.user = ""
	tr.assistant.Reset()
	tr.chunks = nil
	tr.totalSize = 0
	tr.sampleRate = 0
	tr.interrupted = false
	return turn, ok
}

// Size returns the current total recorded audio bytes
func (tr *TurnRecorder) Size() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.totalSize
}
