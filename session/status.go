package session

// Status is the high-level state shown to the user.
type Status int

const (
	Idle Status = iota
	Connecting
	Listening
	// Thinking is never stored. It is reported while Listening once the
	// user's speech has been transcribed and no reply has started yet.
	Thinking
	Speaking
	Error
	Closed
)

var statusNames = [...]string{
	Idle:       "idle",
	Connecting: "connecting",
	Listening:  "listening",
	Thinking:   "thinking",
	Speaking:   "speaking",
	Error:      "error",
	Closed:     "closed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Active reports whether captured audio is being forwarded.
func (s Status) Active() bool {
	return s == Listening || s == Thinking || s == Speaking
}

// Snapshot is a consistent view of a session for display.
type Snapshot struct {
	ID           string
	Status       Status
	Message      string
	Transcript   string
	Level        float64
	Playing      bool
	DecodeErrors int
}
