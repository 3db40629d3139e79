package services

import (
	"context"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
)

// ---------------------------------------------------------------------------
// SpeechProvider: common interface for text-to-speech backends
// ElevenLabs, Cartesia and the mock provider implement it so the synthesizer can
// pick one at construction without knowing the underlying provider.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any speech provider.
type TTSResponse struct {
	AudioData  []byte
	DurationMs int    // 0 when the provider does not report it
	Format     string // "mp3", "wav", etc.
}

// Voice describes a selectable narrator voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type SpeechProvider interface {
	Name() string
	// Synthesize converts text to audio. Zero-valued voice fields use the
	// provider defaults.
	Synthesize(ctx context.Context, text string, voice models.VoiceSettings) (*TTSResponse, error)
	ListVoices(ctx context.Context) ([]Voice, error)
}

// SpeechProviderConfig names the credentials available for speech.
type SpeechProviderConfig struct {
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModel   string
	CartesiaKey       string
	CartesiaURL       string
	CartesiaVoiceID   string
}

// SelectSpeechProvider picks the provider once at startup: ElevenLabs, then
// Cartesia, else nil so every narration is mock audio.
func SelectSpeechProvider(cfg SpeechProviderConfig, log *logger.Logger) SpeechProvider {
	switch {
	case cfg.ElevenLabsKey != "":
		return NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModel, log)
	case cfg.CartesiaKey != "":
		return NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
	default:
		return nil
	}
}
