package messages

import (
	"github.com/bytedance/sonic"
	"google.golang.org/genai"

	"github.com/room4-2/tutorvoice/audio"
)

// ClientMessage is one outbound frame to the conversational service. Exactly
// one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
}

// Setup is sent once, immediately after the channel opens.
type Setup struct {
	Model                    string                          `json:"model"`
	GenerationConfig         GenerationConfig                `json:"generationConfig"`
	SystemInstruction        *genai.Content                  `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *genai.AudioTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *genai.AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig requests audio output in a prebuilt voice.
type GenerationConfig struct {
	ResponseModalities []genai.Modality    `json:"responseModalities"`
	SpeechConfig       *genai.SpeechConfig `json:"speechConfig,omitempty"`
}

// RealtimeInput carries captured audio.
type RealtimeInput struct {
	MediaChunks []audio.EncodedChunk `json:"mediaChunks"`
}

// SetupOptions describes the session the client asks for.
type SetupOptions struct {
	Model         string
	Voice         string
	Instruction   string
	Transcription bool
}

// NewSetup builds the setup descriptor.
func NewSetup(opts SetupOptions) *ClientMessage {
	setup := &Setup{
		Model: opts.Model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityAudio},
		},
	}
	if opts.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
			},
		}
	}
	if opts.Instruction != "" {
		setup.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.Instruction}},
		}
	}
	if opts.Transcription {
		setup.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		setup.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return &ClientMessage{Setup: setup}
}

// NewRealtimeInput wraps one or more encoded chunks.
func NewRealtimeInput(chunks ...audio.EncodedChunk) *ClientMessage {
	return &ClientMessage{RealtimeInput: &RealtimeInput{MediaChunks: chunks}}
}

// Marshal encodes an outbound message.
func Marshal(msg *ClientMessage) ([]byte, error) {
	return sonic.Marshal(msg)
}
