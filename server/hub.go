package server

import (
	"sync"

	"github.com/room4-2/tutorvoice/messages"
	"github.com/room4-2/tutorvoice/session"
)

// Hub fans session updates out to every connected status page.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*uiConn]struct{}
	sessionID      string
	lastStatus     string
	lastMessage    string
	lastTranscript string
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*uiConn]struct{})}
}

func (h *Hub) add(c *uiConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *uiConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Count returns the number of connected status pages.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues msg on every connection.
func (h *Hub) Broadcast(msg *messages.UIMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.queue(msg)
	}
}

// PublishSnapshot sends status and transcript changes. Wire it to
// session.Options.OnUpdate.
func (h *Hub) PublishSnapshot(snap session.Snapshot) {
	status := snap.Status.String()

	h.mu.Lock()
	newSession := snap.ID != h.sessionID
	h.sessionID = snap.ID
	statusChanged := newSession || status != h.lastStatus || snap.Message != h.lastMessage
	transcriptChanged := newSession || snap.Transcript != h.lastTranscript
	h.lastStatus = status
	h.lastMessage = snap.Message
	h.lastTranscript = snap.Transcript
	h.mu.Unlock()

	if statusChanged {
		h.Broadcast(messages.NewStatusMessage(snap.ID, status, snap.Message))
	}
	if transcriptChanged {
		h.Broadcast(messages.NewTextMessage(snap.ID, snap.Transcript))
	}
}

// PublishLevel sends a meter reading. Wire it to session.Options.OnLevel.
func (h *Hub) PublishLevel(level float64) {
	h.mu.RLock()
	id := h.sessionID
	h.mu.RUnlock()
	h.Broadcast(messages.NewLevelMessage(id, level))
}
