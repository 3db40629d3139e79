package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/metrics"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/usage"
)

// ---------------------------------------------------------------------------
// Speech Synthesizer
// Optimizes a script, enforces the monthly character quota, calls the speech
// provider and stores the resulting audio. Outside production a provider
// failure degrades to mock audio instead of failing the slide.
// ---------------------------------------------------------------------------

const defaultSpeechTimeout = 60 * time.Second

var ErrQuotaExceeded = errors.New("monthly speech character quota exceeded")

// QuotaError reports a synthesis refused before any provider call.
type QuotaError struct {
	Used      int64
	Remaining int64
	Limit     int64
	Needed    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("insufficient characters remaining: need %d, have %d (used %d of %d)",
		e.Needed, e.Remaining, e.Used, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// SynthesisError is a provider failure that is not masked by mock audio.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s speech synthesis failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// AudioStore receives uploaded narration audio.
type AudioStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	GetPublicURL(path string) string
}

type SpeechRequest struct {
	Script        string
	Template      models.TemplateKind
	Voice         models.VoiceSettings
	SlideNumber   int
	StoragePrefix string // e.g. "lessons/<id>"; empty skips the upload
}

// Narration is one synthesized slide track.
type Narration struct {
	Script          string // optimized text actually spoken
	Audio           []byte
	Format          string // file extension of Audio
	DurationSeconds float64
	CharactersUsed  int // characters billed against the quota, 0 for mock audio
	IsMock          bool
	AudioURL        string
	StoragePath     string
}

type SpeechConfig struct {
	Production       bool
	MonthlyCharLimit int64
	MaxScriptChars   int
	Timeout          time.Duration
}

type SpeechSynthesizer struct {
	provider SpeechProvider // nil = mock only
	mock     MockSpeechProvider
	ledger   usage.Ledger
	store    AudioStore
	cfg      SpeechConfig
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSpeechSynthesizer fixes the provider for the lifetime of the
// synthesizer. A nil provider means every narration is mock audio.
func NewSpeechSynthesizer(provider SpeechProvider, ledger usage.Ledger, store AudioStore, cfg SpeechConfig, log *logger.Logger, m *metrics.Metrics) *SpeechSynthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSpeechTimeout
	}
	if cfg.MaxScriptChars <= 0 {
		cfg.MaxScriptChars = DefaultMaxScriptChars
	}
	if ledger == nil {
		ledger = usage.NewMemoryLedger()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SpeechSynthesizer{
		provider: provider,
		ledger:   ledger,
		store:    store,
		cfg:      cfg,
		log:      log.With("component", "SpeechSynthesizer"),
		metrics:  m,
		now:      time.Now,
	}
}

// UsesMock reports whether no real provider is configured.
func (s *SpeechSynthesizer) UsesMock() bool { return s.provider == nil }

func (s *SpeechSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (*Narration, error) {
	script := OptimizeScriptLimit(req.Script, req.Template, s.cfg.MaxScriptChars)

	if s.provider == nil {
		s.metrics.SpeechFallback("no_provider")
		return s.mockNarration(ctx, script)
	}

	needed := utf8.RuneCountInString(script)
	period := usage.PeriodKey(s.now())

	used, err := s.ledger.Consumed(ctx, period)
	if err != nil {
		if s.cfg.Production {
			return nil, fmt.Errorf("failed to check speech quota: %w", err)
		}
		s.log.Warn("usage ledger unavailable, using mock audio", "error", err)
		s.metrics.SpeechFallback("ledger_error")
		return s.mockNarration(ctx, script)
	}
	remaining := s.cfg.MonthlyCharLimit - used
	if remaining < 0 {
		remaining = 0
	}
	if remaining < int64(needed) {
		return nil, &QuotaError{Used: used, Remaining: remaining, Limit: s.cfg.MonthlyCharLimit, Needed: needed}
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	resp, err := s.provider.Synthesize(pctx, script, req.Voice)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.cfg.Production {
			return nil, &SynthesisError{Provider: s.provider.Name(), Err: err}
		}
		s.log.Warn("speech provider failed, using mock audio",
			"provider", s.provider.Name(), "slide", req.SlideNumber, "error", err)
		s.metrics.SpeechFallback("provider_error")
		return s.mockNarration(ctx, script)
	}

	if _, err := s.ledger.Record(ctx, period, int64(needed)); err != nil {
		s.log.Error("failed to record speech usage", "period", period, "chars", needed, "error", err)
	}
	s.metrics.AddTTSCharacters(needed)

	n := &Narration{
		Script:          script,
		Audio:           resp.AudioData,
		Format:          orDefault(resp.Format, "mp3"),
		DurationSeconds: EstimateDuration(script),
		CharactersUsed:  needed,
	}
	if resp.DurationMs > 0 {
		n.DurationSeconds = float64(resp.DurationMs) / 1000
	}

	if s.store != nil && req.StoragePrefix != "" {
		path := fmt.Sprintf("%s/narration/slide_%d_%s.%s", req.StoragePrefix, req.SlideNumber, uuid.New().String(), n.Format)
		if err := s.store.Upload(ctx, path, n.Audio, contentTypeFor(n.Format)); err != nil {
			// the local copy still feeds the video; only the standalone track is lost
			s.log.Warn("failed to upload narration audio", "path", path, "error", err)
		} else {
			n.StoragePath = path
			n.AudioURL = s.store.GetPublicURL(path)
		}
	}

	return n, nil
}

func (s *SpeechSynthesizer) mockNarration(ctx context.Context, script string) (*Narration, error) {
	resp, err := s.mock.Synthesize(ctx, script, models.VoiceSettings{})
	if err != nil {
		return nil, err
	}
	return &Narration{
		Script:          script,
		Audio:           resp.AudioData,
		Format:          resp.Format,
		DurationSeconds: float64(resp.DurationMs) / 1000,
		IsMock:          true,
	}, nil
}

// ListVoices returns the provider's voices, or the built-in list when the
// provider is missing or failing.
func (s *SpeechSynthesizer) ListVoices(ctx context.Context) []Voice {
	if s.provider != nil {
		voices, err := s.provider.ListVoices(ctx)
		if err == nil {
			return voices
		}
		s.log.Warn("failed to list voices, serving built-in list", "provider", s.provider.Name(), "error", err)
	}
	voices, _ := s.mock.ListVoices(ctx)
	return voices
}

// UsageStats summarizes this month's consumption.
func (s *SpeechSynthesizer) UsageStats(ctx context.Context) (usage.Stats, error) {
	return usage.GetStats(ctx, s.ledger, usage.PeriodKey(s.now()), s.cfg.MonthlyCharLimit)
}

func contentTypeFor(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "mp4":
		return "video/mp4"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
