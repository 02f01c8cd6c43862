package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/tutorvoice/gemini"
	"github.com/room4-2/tutorvoice/store"
)

// ClientConfig builds the per-session collaborators. NewCapture and
// NewChannel are called once per session; everything else is shared.
type ClientConfig struct {
	Options     Options
	NewCapture  func() (Capture, error)
	NewChannel  func() gemini.Channel
	IdleTimeout time.Duration
}

// Client owns at most one active session.
type Client struct {
	cfg   ClientConfig
	store store.Store

	mu      sync.Mutex
	current *Session
}

// NewClient creates a client. cfg.Options.Store is used for registration
// and turn persistence.
func NewClient(cfg ClientConfig) *Client {
	st := cfg.Options.Store
	if st == nil {
		st = store.Nop{}
		cfg.Options.Store = st
	}
	return &Client{cfg: cfg, store: st}
}

// brokenCapture stands in for a device that could not be opened, so the
// failure surfaces through the session's own error path.
type brokenCapture struct{ err error }

func (b brokenCapture) Start(func([]float32)) error { return b.err }
func (brokenCapture) Stop() error                   { return nil }
func (brokenCapture) Snapshot([]float32) int        { return 0 }

// Start returns the active session, or starts a new one when there is none
// or the previous one was stopped. The returned error is the start error
// of a new session.
func (c *Client) Start(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.current != nil && c.current.Status() != Closed {
		s := c.current
		c.mu.Unlock()
		return s, nil
	}

	opts := c.cfg.Options
	opts.ID = uuid.New().String()

	capture, err := c.cfg.NewCapture()
	if err != nil {
		capture = brokenCapture{err: err}
	}
	opts.Capture = capture
	opts.Channel = c.cfg.NewChannel()

	s := New(opts)
	c.current = s
	c.mu.Unlock()

	c.register(s)

	if err := s.Start(ctx); err != nil {
		return s, err
	}
	if c.cfg.IdleTimeout > 0 {
		go c.watchIdle(s)
	}
	return s, nil
}

func (c *Client) register(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := c.store.Register(ctx, store.Meta{
		ID:        s.ID(),
		Model:     c.cfg.Options.Setup.Model,
		Voice:     c.cfg.Options.Setup.Voice,
		StartedAt: time.Now(),
	})
	if err != nil {
		log.Printf("⚠️ [%s] Failed to register session: %v", s.short(), err)
	}
}

// Current returns the latest session, which may be Closed, or nil.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop stops the active session. It is a no-op without one.
func (c *Client) Stop() error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return c.end(s)
}

func (c *Client) end(s *Session) error {
	if s.Status() == Closed {
		return nil
	}
	err := s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if serr := c.store.End(ctx, s.ID()); serr != nil {
		log.Printf("⚠️ [%s] Failed to mark session ended: %v", s.short(), serr)
	}
	return err
}

// watchIdle stops s when the service has been silent for IdleTimeout.
func (c *Client) watchIdle(s *Session) {
	interval := c.cfg.IdleTimeout / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if s.Status() == Closed {
			return
		}
		if idle := time.Since(s.LastActivity()); idle > c.cfg.IdleTimeout {
			log.Printf("⏰ [%s] No server traffic for %s, stopping", s.short(), idle.Round(time.Second))
			c.end(s)
			return
		}
	}
}

// Turns returns the stored turns of the current session.
func (c *Client) Turns(ctx context.Context) ([]store.Turn, error) {
	s := c.Current()
	if s == nil {
		return nil, nil
	}
	return c.store.Turns(ctx, s.ID())
}

// ActiveSessions lists sessions the store still considers live, including
// ones left behind by an earlier process.
func (c *Client) ActiveSessions(ctx context.Context) ([]string, error) {
	return c.store.ActiveSessions(ctx)
}

// Shutdown stops the active session and closes the store.
func (c *Client) Shutdown() error {
	err := c.Stop()
	if cerr := c.store.Close(); cerr != nil {
		log.Printf("⚠️ Failed to close store: %v", cerr)
	}
	return err
}
