// Package store persists completed conversation turns.
package store

import (
	"context"
	"time"
)

// Meta describes a session when it is registered.
type Meta struct {
	ID        string
	Model     string
	Voice     string
	StartedAt time.Time
}

// Turn is one completed exchange. Audio holds the assistant's PCM16 reply
// and is stored apart from the JSON record.
type Turn struct {
	SessionID   string    `json:"sessionId"`
	Index       int       `json:"index"`
	User        string    `json:"user"`
	Assistant   string    `json:"assistant"`
	Interrupted bool      `json:"interrupted"`
	SampleRate  int       `json:"sampleRate"`
	AudioBytes  int       `json:"audioBytes"`
	CompletedAt time.Time `json:"completedAt"`
	Audio       []byte    `json:"-"`
}

// Store is the persistence collaborator. Calls are made fire and forget,
// so implementations must be safe for concurrent use.
type Store interface {
	Register(ctx context.Context, meta Meta) error
	SaveTurn(ctx context.Context, turn Turn) error
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	End(ctx context.Context, sessionID string) error
	// ActiveSessions lists registered sessions that have not ended.
	ActiveSessions(ctx context.Context) ([]string, error)
	Close() error
}

// Nop discards everything. Used when Redis is unavailable.
type Nop struct{}

func (Nop) Register(context.Context, Meta) error             { return nil }
func (Nop) SaveTurn(context.Context, Turn) error             { return nil }
func (Nop) Turns(context.Context, string) ([]Turn, error)    { return nil, nil }
func (Nop) End(context.Context, string) error                { return nil }
func (Nop) ActiveSessions(context.Context) ([]string, error) { return nil, nil }
func (Nop) Close() error                                     { return nil }
