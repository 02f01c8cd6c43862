package messages

import "encoding/json"

// Error codes
const (
	ErrCodeInvalidMessage  = "INVALID_MESSAGE"
	ErrCodeSessionFailed   = "SESSION_FAILED"
	ErrCodeCaptureFailed   = "CAPTURE_FAILED"
	ErrCodeTransportFailed = "TRANSPORT_FAILED"
)

// Message types
const (
	TypeStatus = "status"
	TypeText   = "text"
	TypeLevel  = "level"
	TypeError  = "error"
	TypePong   = "pong"
)

// Control actions accepted from UI clients
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionPing  = "ping"
)

// UIRequest is a message from a status page client
type UIRequest struct {
	Type    string          `json:"type"` // "control"
	Payload json.RawMessage `json:"payload"`
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"` // "start", "stop", "ping"
}

// UIMessage is pushed to status page clients
type UIMessage struct {
	Type      string      `json:"type"` // "status", "text", "level", "error", "pong"
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StatusPayload mirrors the session status
type StatusPayload struct {
	Status  string `json:"status"` // "idle", "connecting", "listening", "thinking", "speaking", "error", "closed"
	Message string `json:"message,omitempty"`
}

// TextPayload carries the live transcript
type TextPayload struct {
	Text string `json:"text"`
}

// LevelPayload carries the meter reading
type LevelPayload struct {
	Level float64 `json:"level"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *UIMessage {
	return &UIMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewTextMessage creates a transcript message
func NewTextMessage(sessionID, text string) *UIMessage {
	return &UIMessage{
		Type:      TypeText,
		SessionID: sessionID,
		Payload:   TextPayload{Text: text},
	}
}

// NewLevelMessage creates a meter message
func NewLevelMessage(sessionID string, level float64) *UIMessage {
	return &UIMessage{
		Type:      TypeLevel,
		SessionID: sessionID,
		Payload:   LevelPayload{Level: level},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *UIMessage {
	return &UIMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}

func NewPongMessage(sessionID string) *UIMessage {
	return &UIMessage{Type: TypePong, SessionID: sessionID}
}
