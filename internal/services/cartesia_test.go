package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
)

func TestCartesiaSynthesize(t *testing.T) {
	var gotVersion, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts/bytes", r.URL.Path)
		gotVersion = r.Header.Get("Cartesia-Version")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	svc := NewCartesiaService("ck", srv.URL, "")
	resp, err := svc.Synthesize(context.Background(), "Hello", models.VoiceSettings{})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), resp.AudioData)
	assert.Equal(t, CartesiaAPIVersion, gotVersion)
	assert.Equal(t, "Bearer ck", gotAuth)
}

func TestSelectSpeechProvider(t *testing.T) {
	assert.Nil(t, SelectSpeechProvider(SpeechProviderConfig{}, nil))

	p := SelectSpeechProvider(SpeechProviderConfig{ElevenLabsKey: "e", CartesiaKey: "c"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "elevenlabs", p.Name())

	p = SelectSpeechProvider(SpeechProviderConfig{CartesiaKey: "c"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "cartesia", p.Name())
}
