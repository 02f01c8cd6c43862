package server

import (
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/tutorvoice/messages"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	readLimit       = 64 * 1024
)

// uiConn is one status page connection. All writes go through writePump.
type uiConn struct {
	id   string
	conn *websocket.Conn

	writeChan chan *messages.UIMessage
	closeChan chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newUIConn(id string, conn *websocket.Conn) *uiConn {
	conn.SetReadLimit(readLimit)
	return &uiConn{
		id:        id,
		conn:      conn,
		writeChan: make(chan *messages.UIMessage, writeBufferSize),
		closeChan: make(chan struct{}),
	}
}

func (c *uiConn) short() string {
	if len(c.id) > 8 {
		return c.id[:8]
	}
	return c.id
}

// writePump handles all outgoing messages in a single goroutine
func (c *uiConn) writePump() {
	defer func() {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closeChan:
			return
		case msg := <-c.writeChan:
			if err := c.write(msg); err != nil {
				log.Printf("⚠️ [%s] UI write failed: %v", c.short(), err)
				return
			}

			// drain what queued up while writing
			n := len(c.writeChan)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.writeChan); err != nil {
					return
				}
			}
		}
	}
}

func (c *uiConn) write(msg *messages.UIMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// queue adds a message to the write queue (non-blocking)
func (c *uiConn) queue(msg *messages.UIMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.writeChan <- msg:
	default:
		// queue full, drop; level ticks are the usual casualty
	}
}

func (c *uiConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeChan)
}
