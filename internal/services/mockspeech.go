package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"

	"github.com/bobarin/lessoncast/internal/models"
)

// ---------------------------------------------------------------------------
// Mock speech provider
// Produces silent WAV audio whose length matches the estimated speaking
// time, so development runs and degraded runs still yield a playable track.
// ---------------------------------------------------------------------------

const (
	mockSampleRate = 8000
	mockSilence    = 0x80 // unsigned 8-bit PCM midpoint
)

// MockVoices is served when no speech provider is reachable.
var MockVoices = []Voice{
	{VoiceID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Description: "Clear and professional female voice", Category: "premade"},
	{VoiceID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Description: "Energetic and engaging female voice", Category: "premade"},
}

type MockSpeechProvider struct{}

var _ SpeechProvider = MockSpeechProvider{}

func (MockSpeechProvider) Name() string { return "mock" }

func (MockSpeechProvider) Synthesize(_ context.Context, text string, _ models.VoiceSettings) (*TTSResponse, error) {
	secs := EstimateDuration(text)
	return &TTSResponse{
		AudioData:  SilentWAV(secs),
		DurationMs: int(secs * 1000),
		Format:     "wav",
	}, nil
}

func (MockSpeechProvider) ListVoices(context.Context) ([]Voice, error) {
	out := make([]Voice, len(MockVoices))
	copy(out, MockVoices)
	return out, nil
}

// SilentWAV returns a mono 8 kHz unsigned 8-bit PCM WAV of the given length.
// Output depends only on seconds.
func SilentWAV(seconds float64) []byte {
	if seconds < 0 {
		seconds = 0
	}
	samples := int(math.Round(seconds * mockSampleRate))

	var buf bytes.Buffer
	buf.Grow(44 + samples)

	le := func(v interface{}) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	le(uint32(36 + samples))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	le(uint32(16))             // PCM chunk size
	le(uint16(1))              // PCM
	le(uint16(1))              // mono
	le(uint32(mockSampleRate)) // sample rate
	le(uint32(mockSampleRate)) // byte rate
	le(uint16(1))              // block align
	le(uint16(8))              // bits per sample

	buf.WriteString("data")
	le(uint32(samples))
	buf.Write(bytes.Repeat([]byte{mockSilence}, samples))

	return buf.Bytes()
}
