// Package session runs one live tutoring conversation: it captures the
// microphone, streams it to the live service, plays the spoken reply and
// tracks the state shown to the user.
package session

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/room4-2/tutorvoice/audio"
	"github.com/room4-2/tutorvoice/bootstrap"
	"github.com/room4-2/tutorvoice/gemini"
	"github.com/room4-2/tutorvoice/messages"
	"github.com/room4-2/tutorvoice/meter"
	"github.com/room4-2/tutorvoice/playback"
	"github.com/room4-2/tutorvoice/store"
)

const (
	inboxSize                   = 64
	defaultTranscriptClearDelay = 1500 * time.Millisecond
	defaultMaxTurnAudio         = 5 * 1024 * 1024
	persistTimeout              = 5 * time.Second
)

// Capture is the microphone side of a session.
type Capture interface {
	Start(onFrame func(frame []float32)) error
	// Stop is idempotent and safe before Start.
	Stop() error
	meter.Source
}

// Output is the speaker side of a session.
type Output interface {
	playback.Clock
	playback.Sink
	meter.Source
}

// Options configures a Session. Capture, Channel and Output are required.
type Options struct {
	ID        string
	Setup     messages.SetupOptions
	Bootstrap bootstrap.Provider
	Capture   Capture
	Channel   gemini.Channel
	Output    Output
	Store     store.Store
	Meter     *meter.Meter

	CaptureRate          int
	PlaybackRate         int
	TranscriptClearDelay time.Duration
	MaxTurnAudio         int

	// OnUpdate is called after every status or transcript change, from
	// whichever goroutine made it. It must not block.
	OnUpdate func(Snapshot)
	// OnLevel runs on every meter tick.
	OnLevel func(level float64)
}

type frameMsg struct{ samples []float32 }
type eventMsg struct{ ev messages.ServerEvent }
type errorMsg struct{ err error }
type clearMsg struct{ gen uint64 }

// Session is a single conversation. It is started once and, once Closed,
// never reused.
type Session struct {
	id        string
	opts      Options
	capture   Capture
	channel   gemini.Channel
	scheduler *playback.Scheduler
	recorder  *TurnRecorder

	inbox    chan interface{}
	quit     chan struct{}
	quitOnce sync.Once
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	level        atomic.Uint64
	lastActivity atomic.Int64

	// notifyMu orders snapshots with their delivery to OnUpdate.
	notifyMu sync.Mutex

	mu            sync.RWMutex
	state         Status
	message       string
	transcript    string
	awaitingReply bool
	clearGen      uint64
	clearTimer    *time.Timer
	turnIndex     int
	decodeErrors  int
	recorderFull  bool
}

// New prepares a session in the Idle state.
func New(opts Options) *Session {
	if opts.Bootstrap == nil {
		opts.Bootstrap = bootstrap.Direct{}
	}
	if opts.Store == nil {
		opts.Store = store.Nop{}
	}
	if opts.CaptureRate <= 0 {
		opts.CaptureRate = audio.CaptureSampleRate
	}
	if opts.PlaybackRate <= 0 {
		opts.PlaybackRate = audio.PlaybackSampleRate
	}
	if opts.TranscriptClearDelay <= 0 {
		opts.TranscriptClearDelay = defaultTranscriptClearDelay
	}
	if opts.MaxTurnAudio <= 0 {
		opts.MaxTurnAudio = defaultMaxTurnAudio
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        opts.ID,
		opts:      opts,
		capture:   opts.Capture,
		channel:   opts.Channel,
		scheduler: playback.NewScheduler(opts.Output, opts.Output, opts.PlaybackRate),
		recorder:  NewTurnRecorder(opts.MaxTurnAudio),
		inbox:     make(chan interface{}, inboxSize),
		quit:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		state:     Idle,
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) short() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}

// Start acquires the microphone, connects and sends the setup message. It
// blocks until the session is Listening or has failed. Calling Start on a
// session that already left Idle does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Idle:
	case Closed:
		s.mu.Unlock()
		return ErrSessionClosed
	default:
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.message = "Connecting"
	s.mu.Unlock()
	s.notify()

	log.Printf("🔌 [%s] Starting session", s.short())
	go s.loop()

	// Stop cancels an in-flight connect
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.ctx, cancel)
	defer unhook()

	if err := s.capture.Start(s.onFrame); err != nil {
		return s.fail(&CaptureError{Op: "start", Err: err})
	}
	log.Printf("🎤 [%s] Microphone open", s.short())

	url, err := s.opts.Bootstrap.URL(ctx)
	if err != nil {
		return s.fail(&TransportError{Op: "bootstrap", Err: err})
	}

	err = s.channel.Open(ctx, url, gemini.Handlers{
		OnEvent: func(ev messages.ServerEvent) { s.post(eventMsg{ev}) },
		OnError: func(err error) { s.post(errorMsg{err}) },
	})
	if err != nil {
		return s.fail(&TransportError{Op: "connect", Err: err})
	}

	if err := s.channel.Send(messages.NewSetup(s.opts.Setup)); err != nil {
		return s.fail(&TransportError{Op: "setup", Err: err})
	}
	log.Printf("📤 [%s] Sent setup (model %s, voice %s)", s.short(), s.opts.Setup.Model, s.opts.Setup.Voice)

	s.mu.Lock()
	switch s.state {
	case Connecting:
	case Error:
		msg := s.message
		s.mu.Unlock()
		return &TransportError{Op: "connect", Err: errors.New(msg)}
	default:
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = Listening
	s.message = "Listening"
	s.mu.Unlock()
	s.notify()

	if s.opts.Meter != nil {
		go s.opts.Meter.Run(s.ctx, s.levelSource, s.onLevel)
	}

	log.Printf("✅ [%s] Session live", s.short())
	return nil
}

// Stop ends the session from any state. Every resource is released even
// when an earlier release fails.
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = Closed
		s.message = "Session ended"
		s.awaitingReply = false
		if s.clearTimer != nil {
			s.clearTimer.Stop()
		}
		s.mu.Unlock()

		err = s.release()
		s.notify()
		log.Printf("🔌 [%s] Session closed (was %s)", s.short(), prev)
	})
	return err
}

// release tears down capture, channel, playback and the meter.
func (s *Session) release() error {
	s.quitOnce.Do(func() { close(s.quit) })
	s.cancel()

	var errs []error
	if err := s.capture.Stop(); err != nil {
		errs = append(errs, &CaptureError{Op: "stop", Err: err})
	}
	if err := s.channel.Close(); err != nil {
		errs = append(errs, &TransportError{Op: "close", Err: err})
	}
	s.scheduler.Flush()
	s.level.Store(0)
	return errors.Join(errs...)
}

// fail moves the session to Error. A session already stopped stays Closed.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == Error {
		s.mu.Unlock()
		return err
	}
	s.state = Error
	s.message = userMessage(err)
	s.awaitingReply = false
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	s.mu.Unlock()

	log.Printf("❌ [%s] Session failed: %v", s.short(), err)
	if rerr := s.release(); rerr != nil {
		log.Printf("⚠️ [%s] Release after failure: %v", s.short(), rerr)
	}
	s.notify()
	return err
}

// Status returns the displayed status, deriving Thinking.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayStatus()
}

func (s *Session) displayStatus() Status {
	if s.state == Listening && s.awaitingReply {
		return Thinking
	}
	return s.state
}

// Snapshot returns the current display state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg := s.message
	if s.awaitingReply && s.state == Listening {
		msg = "Thinking"
	}
	return Snapshot{
		ID:           s.id,
		Status:       s.displayStatus(),
		Message:      msg,
		Transcript:   s.transcript,
		Level:        s.Level(),
		Playing:      s.scheduler.Playing(),
		DecodeErrors: s.decodeErrors,
	}
}

// Level returns the latest meter reading.
func (s *Session) Level() float64 {
	return math.Float64frombits(s.level.Load())
}

// LastActivity is the last time the service sent anything.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// notify reports the current snapshot. Start and the event loop both call
// it; taking the snapshot under notifyMu keeps the last delivered snapshot
// the newest one.
func (s *Session) notify() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.opts.OnUpdate(s.Snapshot())
}

// post hands a message to the event loop, giving up once the session ended.
func (s *Session) post(m interface{}) {
	select {
	case s.inbox <- m:
	case <-s.quit:
	}
}

func (s *Session) onFrame(frame []float32) {
	s.post(frameMsg{samples: frame})
}

func (s *Session) loop() {
	for {
		select {
		case <-s.quit:
			return
		case m := <-s.inbox:
			if frame, ok := m.(frameMsg); ok {
				if err := s.sendFrame(frame.samples); err != nil {
					s.fail(err)
				}
				continue
			}
			changed, err := s.dispatch(m)
			if err != nil {
				s.fail(err)
				continue
			}
			if changed {
				s.notify()
			}
		}
	}
}

// sendFrame forwards captured audio while the session is active. Frames
// captured while connecting are dropped.
func (s *Session) sendFrame(samples []float32) error {
	s.mu.RLock()
	active := s.state.Active()
	s.mu.RUnlock()
	if !active {
		return nil
	}

	err := s.channel.Send(messages.NewRealtimeInput(audio.Encode(samples, s.opts.CaptureRate)))
	if err != nil && !errors.Is(err, gemini.ErrNotOpen) {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (s *Session) dispatch(m interface{}) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Closed || s.state == Error {
		return false, nil
	}

	switch m := m.(type) {
	case eventMsg:
		s.touch()
		// nothing is expected before setup has been sent
		if s.state == Connecting {
			log.Printf("⚠️ [%s] Dropping %T received while connecting", s.short(), m.ev)
			return false, nil
		}
		return s.apply(m.ev), nil
	case errorMsg:
		return false, &TransportError{Op: "receive", Err: m.err}
	case clearMsg:
		if m.gen == s.clearGen && s.transcript != "" {
			s.transcript = ""
			return true, nil
		}
	}
	return false, nil
}

// apply advances the state machine for one server event. Caller holds mu.
func (s *Session) apply(ev messages.ServerEvent) bool {
	switch ev := ev.(type) {
	case messages.InterruptedEvent:
		n := s.scheduler.Flush()
		s.recorder.Interrupt()
		s.awaitingReply = false
		log.Printf("✋ [%s] Interrupted, dropped %d scheduled buffers", s.short(), n)
		if s.state == Speaking {
			s.state = Listening
			s.message = "Listening"
		}
		return true

	case messages.TranscriptEvent:
		s.transcript = ev.Text
		s.clearGen++
		s.recorder.SetUser(ev.Text)
		if s.state == Listening {
			s.awaitingReply = true
		}
		return true

	case messages.ModelTranscriptEvent:
		s.recorder.AppendAssistant(ev.Text)
		return false

	case messages.AudioEvent:
		return s.play(ev)

	case messages.TurnCompleteEvent:
		s.awaitingReply = false
		if s.state == Speaking {
			s.state = Listening
			s.message = "Listening"
		}
		log.Printf("📥 [%s] Turn complete", s.short())
		s.scheduleClear()
		s.persist()
		return true

	default:
		log.Printf("⚠️ [%s] Unhandled server event %T", s.short(), ev)
		return false
	}
}

func (s *Session) play(ev messages.AudioEvent) bool {
	rate, err := ev.SampleRate(s.opts.PlaybackRate)
	if err != nil {
		log.Printf("⚠️ [%s] %v, assuming %d Hz", s.short(), err, rate)
	}

	buf, err := audio.Decode(ev.Data, rate)
	if err != nil {
		s.decodeErrors++
		log.Printf("⚠️ [%s] Dropping audio payload: %v", s.short(), err)
		return false
	}

	if _, err := s.scheduler.Schedule(buf); err != nil {
		log.Printf("❌ [%s] Playback failed: %v", s.short(), err)
		return false
	}

	if err := s.recorder.AppendAudio(audio.PCM16(buf.Samples), buf.SampleRate); errors.Is(err, ErrBufferFull) && !s.recorderFull {
		s.recorderFull = true
		log.Printf("⚠️ [%s] Turn recording full at %d bytes, playback continues", s.short(), s.recorder.Size())
	}

	s.awaitingReply = false
	if s.state == Listening {
		s.state = Speaking
		s.message = "Speaking"
		log.Printf("🔊 [%s] Assistant speaking", s.short())
		return true
	}
	return false
}

// scheduleClear blanks the transcript after a delay unless a newer
// transcript arrives first. Caller holds mu.
func (s *Session) scheduleClear() {
	gen := s.clearGen
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	s.clearTimer = time.AfterFunc(s.opts.TranscriptClearDelay, func() {
		s.post(clearMsg{gen: gen})
	})
}

// persist hands the finished turn to the store without waiting. Caller
// holds mu.
func (s *Session) persist() {
	turn, ok := s.recorder.Finish()
	s.recorderFull = false
	if !ok {
		return
	}
	turn.SessionID = s.id
	turn.Index = s.turnIndex
	s.turnIndex++

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.opts.Store.SaveTurn(ctx, turn); err != nil {
			log.Printf("⚠️ [%s] Failed to save turn %d: %v", s.short(), turn.Index, err)
		}
	}()
}

// levelSource picks the output path while the assistant is audible and the
// microphone otherwise.
func (s *Session) levelSource() meter.Source {
	s.mu.RLock()
	speaking := s.state == Speaking
	s.mu.RUnlock()

	if speaking || s.scheduler.Playing() {
		return s.opts.Output
	}
	return s.capture
}

func (s *Session) onLevel(level float64) {
	s.level.Store(math.Float64bits(level))
	if s.opts.OnLevel != nil {
		s.opts.OnLevel(level)
	}
}
