package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech Service
// Uses ElevenLabs REST API to convert narration scripts into speech audio.
// ---------------------------------------------------------------------------

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io"
	elevenLabsDefaultModel = "eleven_monolingual_v1"
	elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel
	elevenLabsOutputFormat = "mp3_44100_128"

	elevenLabsDefaultStability  = 0.5
	elevenLabsDefaultSimilarity = 0.5
	elevenLabsDefaultStyle      = 0.3

	elevenLabsVoicesTimeout = 10 * time.Second
)

// ElevenLabsService handles text-to-speech via ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// Ensure ElevenLabsService implements SpeechProvider at compile time.
var _ SpeechProvider = (*ElevenLabsService)(nil)

// NewElevenLabsService creates an ElevenLabs service. Empty voice and model
// use the defaults.
func NewElevenLabsService(apiKey, voiceID, modelID string, log *logger.Logger) *ElevenLabsService {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	if modelID == "" {
		modelID = elevenLabsDefaultModel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: 90 * time.Second},
		log:     log.With("component", "ElevenLabs"),
	}
}

// WithBaseURL overrides the API host. Used by tests.
func (s *ElevenLabsService) WithBaseURL(baseURL string) *ElevenLabsService {
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

func (s *ElevenLabsService) Name() string { return "elevenlabs" }

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID     string `json:"voice_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
	} `json:"voices"`
}

// voiceSettingsFor fills unset fields with the service defaults. An explicit
// zero is kept.
func voiceSettingsFor(v models.VoiceSettings) *elevenLabsVoiceSettings {
	return &elevenLabsVoiceSettings{
		Stability:       floatOr(v.Stability, elevenLabsDefaultStability),
		SimilarityBoost: floatOr(v.SimilarityBoost, elevenLabsDefaultSimilarity),
		Style:           floatOr(v.Style, elevenLabsDefaultStyle),
		UseSpeakerBoost: v.UseSpeakerBoost == nil || *v.UseSpeakerBoost,
	}
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Synthesize converts text to speech using ElevenLabs.
// voice.VoiceID overrides the service-level default when non-empty.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text string, voice models.VoiceSettings) (*TTSResponse, error) {
	effectiveVoice := s.voiceID
	if voice.VoiceID != "" {
		effectiveVoice = voice.VoiceID
	}

	reqBody := elevenLabsRequest{
		Text:          text,
		ModelID:       s.modelID,
		VoiceSettings: voiceSettingsFor(voice),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	// POST /v1/text-to-speech/{voice_id}?output_format=mp3_44100_128
	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.baseURL, effectiveVoice, elevenLabsOutputFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.apiKey)

	s.log.Debug("generating speech", "voice_id", effectiveVoice, "model", s.modelID, "text_len", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	// The response body is the audio file
	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read ElevenLabs audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned empty audio")
	}

	s.log.Debug("speech generated", "bytes", len(audioData))

	return &TTSResponse{
		AudioData: audioData,
		Format:    "mp3",
	}, nil
}

// ListVoices returns the voices available to the configured account.
func (s *ElevenLabsService) ListVoices(ctx context.Context) ([]Voice, error) {
	ctx, cancel := context.WithTimeout(ctx, elevenLabsVoicesTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ElevenLabs voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs returned status %d: %s", resp.StatusCode, string(body))
	}

	var out elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode ElevenLabs voices: %w", err)
	}

	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
			Category:    v.Category,
		})
	}
	return voices, nil
}
