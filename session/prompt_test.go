package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTutorInstruction(t *testing.T) {
	got := TutorInstruction("algebra", "French", "")
	assert.Contains(t, got, "**algebra**")
	assert.Contains(t, got, "Always reply in French")
	assert.NotContains(t, got, "{{")

	assert.Contains(t, TutorInstruction("", "", ""), "general studies")
	assert.Equal(t, "Custom.", TutorInstruction("algebra", "French", "Custom."))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "thinking", Thinking.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.True(t, Speaking.Active())
	assert.False(t, Connecting.Active())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Microphone unavailable", userMessage(&CaptureError{Op: "start", Err: errors.New("x")}))
	assert.Equal(t, "Connection lost", userMessage(&TransportError{Op: "receive", Err: errors.New("x")}))
	assert.Equal(t, "Could not connect to the tutor", userMessage(&TransportError{Op: "setup", Err: errors.New("x")}))
	assert.Equal(t, "Something went wrong", userMessage(errors.New("x")))
}
