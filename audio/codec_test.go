package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_PacksLittleEndianAndDescribesRate(t *testing.T) {
	chunk := Encode([]float32{0, 1, -1, 0.5}, CaptureSampleRate)

	assert.Equal(t, "audio/pcm;rate=16000", chunk.MimeType)

	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x01, 0x80, // -32767
		0x00, 0x40, // round(16383.5) = 16384
	}, raw)
}

func TestPCM16_ClampsAndZeroesNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	raw := PCM16([]float32{2, -3, nan, inf, -inf})

	samples, err := FromPCM16(raw)
	require.NoError(t, err)
	assert.InDelta(t, 32767.0/32768.0, samples[0], 1e-9)
	assert.InDelta(t, -32767.0/32768.0, samples[1], 1e-9)
	assert.Zero(t, samples[2])
	assert.Zero(t, samples[3])
	assert.Zero(t, samples[4])
}

func TestDecodeEncode_RoundTripWithinQuantization(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	in := make([]float32, 4096)
	for i := range in {
		in[i] = rng.Float32()*2 - 1
	}
	in[0], in[1], in[2] = 1, -1, 0

	buf, err := Decode(Encode(in, CaptureSampleRate).Data, CaptureSampleRate)
	require.NoError(t, err)
	require.Len(t, buf.Samples, len(in))

	// Encoding scales by 32767 and decoding divides by 32768, so the bound is
	// half a step of rounding plus the scale mismatch.
	const tolerance = 1.5 / 32768
	for i := range in {
		assert.InDelta(t, in[i], buf.Samples[i], tolerance, "sample %d", i)
	}
}

func TestDecode_Duration(t *testing.T) {
	buf, err := Decode(base64.StdEncoding.EncodeToString(make([]byte, 48000)), PlaybackSampleRate)
	require.NoError(t, err)
	assert.Equal(t, 1, buf.Channels)
	assert.InDelta(t, 1.0, buf.Duration(), 1e-9)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		rate    int
	}{
		{name: "odd byte length", payload: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), rate: 24000},
		{name: "bad base64", payload: "***", rate: 24000},
		{name: "zero rate", payload: "", rate: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload, tt.rate)
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		mime    string
		want    int
		wantErr bool
	}{
		{mime: "audio/pcm;rate=24000", want: 24000},
		{mime: "audio/pcm; rate=16000", want: 16000},
		{mime: "audio/L16;codec=pcm;RATE=8000", want: 8000},
		{mime: "", wantErr: true},
		{mime: "audio/pcm", wantErr: true},
		{mime: "audio/pcm;rate=fast", wantErr: true},
		{mime: "audio/pcm;rate=-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, err := ParseRate(tt.mime)
			if tt.wantErr {
				var decodeErr *DecodeError
				assert.True(t, errors.As(err, &decodeErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 0, -1}

	assert.Equal(t, in, Resample(in, 24000, 24000))

	up := Resample(in, 16000, 32000)
	require.Len(t, up, 8)
	assert.InDelta(t, 0.5, up[1], 1e-6)
	assert.InDelta(t, 1.0, up[2], 1e-6)

	down := Resample(in, 32000, 16000)
	require.Len(t, down, 2)
	assert.InDelta(t, 0.0, down[0], 1e-6)
	assert.InDelta(t, 0.0, down[1], 1e-6)
}
