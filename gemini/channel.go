// Package gemini carries the conversation to the remote live audio service.
package gemini

import (
	"context"
	"errors"

	"github.com/room4-2/tutorvoice/messages"
)

// ErrNotOpen is returned by Send when the channel is not connected.
// Callers sending high-frequency audio treat it as a silent drop.
var ErrNotOpen = errors.New("channel is not open")

// Handlers receive what the channel reads. They run on the channel's read
// goroutine and must not block.
type Handlers struct {
	OnEvent func(messages.ServerEvent)
	// OnError reports a connection that ended without Close being called.
	OnError func(error)
}

// Channel is one bidirectional connection to the live service.
type Channel interface {
	// Open blocks until the connection is usable or fails.
	Open(ctx context.Context, url string, h Handlers) error
	Send(msg *messages.ClientMessage) error
	IsOpen() bool
	// Close is idempotent. Nothing read after it is delivered.
	Close() error
}
