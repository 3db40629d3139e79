package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody elevenLabsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	svc := NewElevenLabsService("key-1", "", "", nil).WithBaseURL(srv.URL)
	off := false
	stability, style := 0.8, 0.0
	resp, err := svc.Synthesize(context.Background(), "Hello learners", models.VoiceSettings{
		VoiceID:         "voice-x",
		Stability:       &stability,
		Style:           &style,
		UseSpeakerBoost: &off,
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3audio"), resp.AudioData)
	assert.Equal(t, "mp3", resp.Format)
	assert.Equal(t, "/v1/text-to-speech/voice-x", gotPath)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "eleven_monolingual_v1", gotBody.ModelID)
	require.NotNil(t, gotBody.VoiceSettings)
	assert.Equal(t, 0.8, gotBody.VoiceSettings.Stability)
	assert.Equal(t, 0.5, gotBody.VoiceSettings.SimilarityBoost)
	// an explicit zero is not replaced by the default
	assert.Equal(t, 0.0, gotBody.VoiceSettings.Style)
	assert.False(t, gotBody.VoiceSettings.UseSpeakerBoost)
}

func TestVoiceSettingsDefaults(t *testing.T) {
	got := voiceSettingsFor(models.VoiceSettings{})
	assert.Equal(t, elevenLabsDefaultStability, got.Stability)
	assert.Equal(t, elevenLabsDefaultSimilarity, got.SimilarityBoost)
	assert.Equal(t, elevenLabsDefaultStyle, got.Style)
	assert.True(t, got.UseSpeakerBoost)

	zero := 0.0
	got = voiceSettingsFor(models.VoiceSettings{Stability: &zero, SimilarityBoost: &zero, Style: &zero})
	assert.Zero(t, got.Stability)
	assert.Zero(t, got.SimilarityBoost)
	assert.Zero(t, got.Style)
}

func TestElevenLabsDefaultVoiceAndErrors(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	svc := NewElevenLabsService("key-1", "", "", nil).WithBaseURL(srv.URL)
	_, err := svc.Synthesize(context.Background(), "Hello", models.VoiceSettings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "/v1/text-to-speech/"+elevenLabsDefaultVoice, gotPath)
}

func TestElevenLabsListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/voices", r.URL.Path)
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"a","name":"Ann","category":"cloned"}]}`))
	}))
	defer srv.Close()

	svc := NewElevenLabsService("key-1", "", "", nil).WithBaseURL(srv.URL)
	voices, err := svc.ListVoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Voice{{VoiceID: "a", Name: "Ann", Category: "cloned"}}, voices)
}
