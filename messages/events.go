package messages

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"github.com/room4-2/tutorvoice/audio"
)

// ServerEvent is the closed set of events the session reacts to.
type ServerEvent interface {
	serverEvent()
}

// TranscriptEvent is the latest partial transcript of the user's speech.
type TranscriptEvent struct{ Text string }

// ModelTranscriptEvent is a text fragment of the assistant's spoken reply.
type ModelTranscriptEvent struct{ Text string }

// AudioEvent carries base64 PCM of the assistant's reply.
type AudioEvent struct {
	Data     string
	MimeType string
}

// TurnCompleteEvent marks the end of the assistant's turn.
type TurnCompleteEvent struct{}

// InterruptedEvent reports that the user barged in.
type InterruptedEvent struct{}

func (TranscriptEvent) serverEvent()      {}
func (ModelTranscriptEvent) serverEvent() {}
func (AudioEvent) serverEvent()           {}
func (TurnCompleteEvent) serverEvent()    {}
func (InterruptedEvent) serverEvent()     {}

// SampleRate returns the rate declared by the payload, or fallback with the
// parse error when the descriptor is missing or unusable.
func (e AudioEvent) SampleRate(fallback int) (int, error) {
	rate, err := audio.ParseRate(e.MimeType)
	if err != nil {
		return fallback, err
	}
	return rate, nil
}

// ProtocolParseError reports an inbound message that could not be understood.
type ProtocolParseError struct {
	Reason string
	Err    error
}

func (e *ProtocolParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse server message: %s: %v", e.Reason, e.Err)
	}
	return "parse server message: " + e.Reason
}

func (e *ProtocolParseError) Unwrap() error { return e.Err }

// top-level keys the service may send that carry nothing for this client
var ignoredKeys = map[string]bool{
	"setupComplete":           true,
	"usageMetadata":           true,
	"goAway":                  true,
	"sessionResumptionUpdate": true,
	"toolCall":                true,
	"toolCallCancellation":    true,
}

type wireTranscription struct {
	Text string `json:"text"`
}

type wireInlineData struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type wirePart struct {
	Text       string          `json:"text"`
	InlineData *wireInlineData `json:"inlineData"`
}

type wireServerContent struct {
	ModelTurn *struct {
		Parts []wirePart `json:"parts"`
	} `json:"modelTurn"`
	TurnComplete        bool               `json:"turnComplete"`
	Interrupted         bool               `json:"interrupted"`
	InputTranscription  *wireTranscription `json:"inputTranscription"`
	OutputTranscription *wireTranscription `json:"outputTranscription"`
}

// ParseServerMessage decodes one inbound frame into events, in the order
// the session must apply them.
func ParseServerMessage(data []byte) ([]ServerEvent, error) {
	var envelope map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &envelope); err != nil {
		return nil, &ProtocolParseError{Reason: "invalid JSON", Err: err}
	}

	raw, ok := envelope["serverContent"]
	if !ok {
		for key := range envelope {
			if ignoredKeys[key] {
				return nil, nil
			}
		}
		return nil, &ProtocolParseError{Reason: "unrecognized message"}
	}

	var content wireServerContent
	if err := sonic.Unmarshal(raw, &content); err != nil {
		return nil, &ProtocolParseError{Reason: "invalid serverContent", Err: err}
	}
	return content.events(), nil
}

func (c *wireServerContent) events() []ServerEvent {
	var events []ServerEvent
	if c.Interrupted {
		events = append(events, InterruptedEvent{})
	}
	if c.InputTranscription != nil && c.InputTranscription.Text != "" {
		events = append(events, TranscriptEvent{Text: c.InputTranscription.Text})
	}
	if c.OutputTranscription != nil && c.OutputTranscription.Text != "" {
		events = append(events, ModelTranscriptEvent{Text: c.OutputTranscription.Text})
	}
	if c.ModelTurn != nil {
		for _, part := range c.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				events = append(events, AudioEvent{Data: part.InlineData.Data, MimeType: part.InlineData.MimeType})
			}
		}
	}
	if c.TurnComplete {
		events = append(events, TurnCompleteEvent{})
	}
	return events
}

// FromLive converts a message received through the genai SDK.
func FromLive(resp *genai.LiveServerMessage) []ServerEvent {
	if resp == nil || resp.ServerContent == nil {
		return nil
	}
	sc := resp.ServerContent
	content := wireServerContent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.InputTranscription != nil {
		content.InputTranscription = &wireTranscription{Text: sc.InputTranscription.Text}
	}
	if sc.OutputTranscription != nil {
		content.OutputTranscription = &wireTranscription{Text: sc.OutputTranscription.Text}
	}
	if sc.ModelTurn != nil {
		content.ModelTurn = &struct {
			Parts []wirePart `json:"parts"`
		}{}
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			content.ModelTurn.Parts = append(content.ModelTurn.Parts, wirePart{
				InlineData: &wireInlineData{
					// SDK hands us raw bytes; keep one payload format downstream
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MimeType: part.InlineData.MIMEType,
				},
			})
		}
	}
	return content.events()
}
