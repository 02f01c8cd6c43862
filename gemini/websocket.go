package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/tutorvoice/messages"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
	maxMessageSize   = 4 * 1024 * 1024
)

// WSChannel speaks the live protocol over a raw websocket.
type WSChannel struct {
	dialer *websocket.Dialer

	writeMu sync.Mutex

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
}

// NewWSChannel returns an unopened channel.
func NewWSChannel() *WSChannel {
	return &WSChannel{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Open dials url and starts the read loop.
func (c *WSChannel) Open(ctx context.Context, rawURL string, h Handlers) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("channel already open")
	}
	c.mu.Unlock()

	conn, resp, err := c.dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", redact(rawURL), resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", redact(rawURL), err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.closed {
		// Close raced with the handshake
		c.mu.Unlock()
		conn.Close()
		return ErrNotOpen
	}
	c.conn = conn
	c.mu.Unlock()

	log.Printf("🔌 Connected to live service at %s", redact(rawURL))
	go c.readLoop(conn, h)
	return nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn, h Handlers) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.markClosed()
			conn.Close()
			if h.OnError != nil {
				h.OnError(describeReadError(err))
			}
			return
		}

		events, err := messages.ParseServerMessage(data)
		if err != nil {
			log.Printf("⚠️ Dropping malformed server message: %v", err)
			continue
		}
		for _, ev := range events {
			if c.isClosed() {
				return
			}
			if h.OnEvent != nil {
				h.OnEvent(ev)
			}
		}
	}
}

func describeReadError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return fmt.Errorf("connection closed by service (%d): %s: %w", ce.Code, ce.Text, err)
		}
		return fmt.Errorf("connection closed by service (%d): %w", ce.Code, err)
	}
	return fmt.Errorf("read from live service: %w", err)
}

// Send writes one message. It returns ErrNotOpen instead of queueing.
func (c *WSChannel) Send(msg *messages.ClientMessage) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()
	if closed || conn == nil {
		return ErrNotOpen
	}

	data, err := messages.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write to live service: %w", err)
	}
	return nil
}

// IsOpen reports whether Send can write.
func (c *WSChannel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.closed
}

// Close sends a close frame and drops the connection.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close live connection: %w", err)
	}
	log.Println("🔌 Live connection closed")
	return nil
}

func (c *WSChannel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *WSChannel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// redact strips the query string so API keys never reach the log.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
