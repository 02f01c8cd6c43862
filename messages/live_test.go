package messages

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/tutorvoice/audio"
)

func decodeMap(t *testing.T, msg *ClientMessage) map[string]interface{} {
	t.Helper()
	data, err := Marshal(msg)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &out))
	return out
}

func TestNewSetup_Shape(t *testing.T) {
	out := decodeMap(t, NewSetup(SetupOptions{
		Model:         "models/test-model",
		Voice:         "Zephyr",
		Instruction:   "You are a tutor.",
		Transcription: true,
	}))

	require.Len(t, out, 1)
	setup := out["setup"].(map[string]interface{})
	assert.Equal(t, "models/test-model", setup["model"])

	gen := setup["generationConfig"].(map[string]interface{})
	assert.Equal(t, []interface{}{"AUDIO"}, gen["responseModalities"])

	voice := gen["speechConfig"].(map[string]interface{})["voiceConfig"].(map[string]interface{})
	assert.Equal(t, "Zephyr", voice["prebuiltVoiceConfig"].(map[string]interface{})["voiceName"])

	parts := setup["systemInstruction"].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 1)
	assert.Equal(t, "You are a tutor.", parts[0].(map[string]interface{})["text"])

	assert.Contains(t, setup, "inputAudioTranscription")
	assert.Contains(t, setup, "outputAudioTranscription")
}

func TestNewSetup_OmitsOptionalFields(t *testing.T) {
	out := decodeMap(t, NewSetup(SetupOptions{Model: "m"}))
	setup := out["setup"].(map[string]interface{})

	assert.NotContains(t, setup, "systemInstruction")
	assert.NotContains(t, setup, "inputAudioTranscription")
	assert.NotContains(t, setup["generationConfig"], "speechConfig")
}

func TestNewRealtimeInput_Shape(t *testing.T) {
	chunk := audio.Encode([]float32{0, 0.5}, audio.CaptureSampleRate)
	out := decodeMap(t, NewRealtimeInput(chunk))

	require.Len(t, out, 1)
	chunks := out["realtimeInput"].(map[string]interface{})["mediaChunks"].([]interface{})
	require.Len(t, chunks, 1)

	first := chunks[0].(map[string]interface{})
	assert.Equal(t, "audio/pcm;rate=16000", first["mimeType"])
	assert.Equal(t, chunk.Data, first["data"])
}
