package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"

	"github.com/room4-2/tutorvoice/messages"
)

// SDKChannel speaks the live protocol through the genai SDK. The connection
// itself is made when the setup message is sent, since the SDK needs the
// model and config at connect time.
type SDKChannel struct {
	apiKey string

	mu       sync.RWMutex
	ctx      context.Context
	client   *genai.Client
	session  *genai.Session
	handlers Handlers
	closed   bool
}

// NewSDKChannel returns an unopened channel authenticating with apiKey.
func NewSDKChannel(apiKey string) *SDKChannel {
	return &SDKChannel{apiKey: apiKey}
}

// Open creates the SDK client. url is unused; the SDK knows its endpoint.
func (c *SDKChannel) Open(ctx context.Context, _ string, h Handlers) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNotOpen
	}
	if c.client != nil {
		return errors.New("channel already open")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %w", err)
	}

	c.ctx = ctx
	c.client = client
	c.handlers = h
	return nil
}

// Send connects on setup and forwards realtime input afterwards.
func (c *SDKChannel) Send(msg *messages.ClientMessage) error {
	switch {
	case msg.Setup != nil:
		return c.connect(msg.Setup)
	case msg.RealtimeInput != nil:
		return c.sendRealtimeInput(msg.RealtimeInput)
	}
	return nil
}

func (c *SDKChannel) connect(setup *messages.Setup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.client == nil {
		return ErrNotOpen
	}
	if c.session != nil {
		return errors.New("setup already sent")
	}

	session, err := c.client.Live.Connect(c.ctx, setup.Model, LiveConfig(setup))
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}
	c.session = session
	log.Printf("✅ Connected to Gemini Live via SDK (%s)", setup.Model)

	go c.receive(session, c.handlers)
	return nil
}

// LiveConfig maps a setup descriptor onto the SDK's connect config.
func LiveConfig(setup *messages.Setup) *genai.LiveConnectConfig {
	return &genai.LiveConnectConfig{
		ResponseModalities:       setup.GenerationConfig.ResponseModalities,
		SpeechConfig:             setup.GenerationConfig.SpeechConfig,
		SystemInstruction:        setup.SystemInstruction,
		InputAudioTranscription:  setup.InputAudioTranscription,
		OutputAudioTranscription: setup.OutputAudioTranscription,
	}
}

func (c *SDKChannel) receive(session *genai.Session, h Handlers) {
	for {
		resp, err := session.Receive()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			session.Close()

			log.Printf("❌ Gemini receive error: %v", err)
			if h.OnError != nil {
				h.OnError(fmt.Errorf("receive from live service: %w", err))
			}
			return
		}

		for _, ev := range messages.FromLive(resp) {
			if c.isClosed() {
				return
			}
			if h.OnEvent != nil {
				h.OnEvent(ev)
			}
		}
	}
}

func (c *SDKChannel) sendRealtimeInput(in *messages.RealtimeInput) error {
	c.mu.RLock()
	session, closed := c.session, c.closed
	c.mu.RUnlock()
	if closed || session == nil {
		return ErrNotOpen
	}

	for _, chunk := range in.MediaChunks {
		data, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			return fmt.Errorf("invalid base64: %w", err)
		}
		err = session.SendRealtimeInput(genai.LiveRealtimeInput{
			Media: &genai.Blob{
				MIMEType: chunk.MimeType,
				Data:     data,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
	return nil
}

// IsOpen reports whether realtime input can be sent.
func (c *SDKChannel) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && !c.closed
}

func (c *SDKChannel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close terminates the live session.
func (c *SDKChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
