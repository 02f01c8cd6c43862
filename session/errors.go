package session

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when starting a session that was stopped.
var ErrSessionClosed = errors.New("session closed")

// CaptureError reports an unavailable or denied input device.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// TransportError reports a failed connect or a connection lost mid-session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// userMessage turns a fatal error into the short text shown in the UI.
func userMessage(err error) string {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return "Microphone unavailable"
	}
	var te *TransportError
	if errors.As(err, &te) {
		switch te.Op {
		case "bootstrap", "connect", "setup":
			return "Could not connect to the tutor"
		}
		return "Connection lost"
	}
	return "Something went wrong"
}
