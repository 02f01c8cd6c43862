package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// CaptureSampleRate is the microphone rate sent to the service.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the service's output rate when the payload does not declare one.
	PlaybackSampleRate = 24000
	// FrameSize is the canonical capture frame (2048 samples, ~128ms at 16kHz).
	FrameSize = 2048
)

const pcmMimePrefix = "audio/pcm"

// EncodedChunk is a transport-ready block of base64 PCM audio.
type EncodedChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Buffer holds decoded mono samples ready for playback scheduling.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	channels := b.Channels
	if channels <= 0 {
		channels = 1
	}
	return float64(len(b.Samples)/channels) / float64(b.SampleRate)
}

// DecodeError reports an inbound audio payload that cannot be played.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode audio: %s: %v", e.Reason, e.Err)
	}
	return "decode audio: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MimeType returns the self-describing descriptor for PCM at the given rate.
func MimeType(sampleRate int) string {
	return pcmMimePrefix + ";rate=" + strconv.Itoa(sampleRate)
}

// PCM16 converts normalized float samples to 16-bit little-endian PCM.
// Samples are clamped to [-1,1]; NaN and Inf become silence.
func PCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}

// Encode converts a frame of normalized samples into an EncodedChunk.
func Encode(samples []float32, sampleRate int) EncodedChunk {
	return EncodedChunk{
		MimeType: MimeType(sampleRate),
		Data:     base64.StdEncoding.EncodeToString(PCM16(samples)),
	}
}

// ParseRate extracts the sample rate from a descriptor such as
// "audio/pcm;rate=24000".
func ParseRate(mimeType string) (int, error) {
	if strings.TrimSpace(mimeType) == "" {
		return 0, &DecodeError{Reason: "missing mime type"}
	}
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rate") {
			continue
		}
		rate, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, &DecodeError{Reason: "invalid rate in " + strconv.Quote(mimeType), Err: err}
		}
		if rate <= 0 {
			return 0, &DecodeError{Reason: "non-positive rate in " + strconv.Quote(mimeType)}
		}
		return rate, nil
	}
	return 0, &DecodeError{Reason: "no rate in " + strconv.Quote(mimeType)}
}

// Decode turns a base64 PCM16 payload into a mono Buffer at sampleRate.
func Decode(payload string, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	samples, err := FromPCM16(raw)
	if err != nil {
		return nil, err
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate, Channels: 1}, nil
}

// FromPCM16 reinterprets little-endian int16 bytes as normalized floats.
func FromPCM16(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd PCM byte length %d", len(raw))}
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return samples, nil
}

// Resample converts samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}
