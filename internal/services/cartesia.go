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

	"github.com/bobarin/lessoncast/internal/models"
)

const (
	CartesiaAPIVersion     = "2024-06-10"
	cartesiaDefaultURL     = "https://api.cartesia.ai"
	cartesiaDefaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"
	cartesiaModel          = "sonic-english"
)

// CartesiaService is the secondary speech provider, used when no ElevenLabs
// key is configured.
type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	defaultVoiceID string
	client         *http.Client
}

var _ SpeechProvider = (*CartesiaService)(nil)

func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if apiURL == "" {
		apiURL = cartesiaDefaultURL
	}
	if voiceID == "" {
		voiceID = cartesiaDefaultVoiceID
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		apiVersion:     CartesiaAPIVersion,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *CartesiaService) Name() string { return "cartesia" }

type cartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        cartesiaVoiceSpecifier `json:"voice"`
	Language     string                 `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat   `json:"output_format"`
}

type cartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaVoice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *CartesiaService) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Cartesia-Version", s.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Synthesize generates MP3 audio from text using Cartesia TTS.
func (s *CartesiaService) Synthesize(ctx context.Context, text string, voice models.VoiceSettings) (*TTSResponse, error) {
	voiceID := s.defaultVoiceID
	if voice.VoiceID != "" {
		voiceID = voice.VoiceID
	}

	jsonData, err := json.Marshal(cartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice:      cartesiaVoiceSpecifier{Mode: "id", ID: voiceID},
		Language:   "en",
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/tts/bytes", jsonData)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cartesia returned status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	return &TTSResponse{AudioData: audioData, Format: "mp3"}, nil
}

func (s *CartesiaService) ListVoices(ctx context.Context) ([]Voice, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, "/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia returned status %d", resp.StatusCode)
	}

	var raw []cartesiaVoice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode cartesia voices: %w", err)
	}
	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		voices = append(voices, Voice{VoiceID: v.ID, Name: v.Name, Description: v.Description})
	}
	return voices, nil
}
