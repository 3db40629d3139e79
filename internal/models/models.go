package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type VideoStatus string

const (
	VideoStatusNone       VideoStatus = ""
	VideoStatusGenerating VideoStatus = "generating"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunReason records what triggered a generation run.
type RunReason string

const (
	RunReasonCreated        RunReason = "created"
	RunReasonContentChanged RunReason = "content_changed"
	RunReasonManual         RunReason = "manual"
)

// TemplateKind is the slide layout. Every switch over it has a default arm
// for TemplateUnknown so a new kind degrades to generic handling.
type TemplateKind string

const (
	TemplateTitle       TemplateKind = "title"
	TemplateContent     TemplateKind = "content"
	TemplateQuiz        TemplateKind = "quiz"
	TemplateInteractive TemplateKind = "interactive"
	TemplateUnknown     TemplateKind = "unknown"
)

// ParseTemplateKind accepts both the short form ("quiz") and the legacy
// template id form ("quiz-slide").
func ParseTemplateKind(s string) TemplateKind {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "-slide")
	switch TemplateKind(s) {
	case TemplateTitle, TemplateContent, TemplateQuiz, TemplateInteractive:
		return TemplateKind(s)
	default:
		return TemplateUnknown
	}
}

func (k *TemplateKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseTemplateKind(s)
	return nil
}

type InteractionKind string

const (
	InteractionMultipleChoice InteractionKind = "multiple_choice"
	InteractionTrueFalse      InteractionKind = "true_false"
	InteractionReflection     InteractionKind = "reflection"
	InteractionKnowledgeCheck InteractionKind = "knowledge_check"
	InteractionDragDrop       InteractionKind = "drag_drop"
	InteractionClickHotspot   InteractionKind = "click_hotspot"
	InteractionTextInput      InteractionKind = "text_input"
)

// Quality selects the output resolution of the muxed video.
type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4K"
)

const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// SlideContent is the free-form payload authored for a slide.
type SlideContent map[string]interface{}

func (c SlideContent) str(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (c SlideContent) Title() string        { return c.str("title") }
func (c SlideContent) Subtitle() string     { return c.str("subtitle") }
func (c SlideContent) Body() string         { return c.str("content") }
func (c SlideContent) Question() string     { return c.str("question") }
func (c SlideContent) Instructions() string { return c.str("instructions") }
func (c SlideContent) Background() string   { return c.str("background") }

// Options returns the quiz options as strings, in authored order.
func (c SlideContent) Options() []string {
	if c == nil {
		return nil
	}
	switch v := c["options"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, o := range v {
			if s := strings.TrimSpace(fmt.Sprint(o)); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ContextSummary is the text carried to the next slide's script prompt.
func (c SlideContent) ContextSummary() string {
	if t := c.Title(); t != "" {
		return t
	}
	return c.Body()
}

// Models

type Interaction struct {
	Kind        InteractionKind `json:"type"`
	TriggerTime float64         `json:"trigger_time"` // seconds from slide start
	Config      JSONB           `json:"config,omitempty"`
	Position    JSONB           `json:"position,omitempty"`
}

type Slide struct {
	Position        int           `json:"slide_number"`
	Template        TemplateKind  `json:"template_id"`
	Content         SlideContent  `json:"content"`
	NarrationScript string        `json:"narration_script,omitempty"`
	Interactions    []Interaction `json:"interactions,omitempty"`
	Duration        float64       `json:"duration,omitempty"` // declared minimum seconds, 0 = computed
}

// Slides is stored as a JSONB array on the lesson row.
type Slides []Slide

func (s Slides) Value() (driver.Value, error) { return json.Marshal(s) }
func (s *Slides) Scan(value interface{}) error { return scanJSON(value, s) }

type VoiceSettings struct {
	VoiceID         string   `json:"voice_id,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

func (v VoiceSettings) Value() (driver.Value, error) { return json.Marshal(v) }
func (v *VoiceSettings) Scan(value interface{}) error { return scanJSON(value, v) }

type VideoSettings struct {
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	Quality     Quality `json:"resolution,omitempty"`
}

func (v VideoSettings) Value() (driver.Value, error) { return json.Marshal(v) }
func (v *VideoSettings) Scan(value interface{}) error { return scanJSON(value, v) }

// Portrait reports whether frames and output are laid out 9:16.
func (v VideoSettings) Portrait() bool {
	return strings.TrimSpace(v.AspectRatio) == AspectPortrait
}

// Cue is an interaction placed on the absolute video timeline.
type Cue struct {
	SlideNumber int             `json:"slide_number"`
	TriggerTime float64         `json:"trigger_time"`
	Kind        InteractionKind `json:"type"`
	Config      JSONB           `json:"config,omitempty"`
	Position    JSONB           `json:"position,omitempty"`
}

type Timeline []Cue

func (t Timeline) Value() (driver.Value, error) { return json.Marshal(t) }
func (t *Timeline) Scan(value interface{}) error { return scanJSON(value, t) }

// SlideNarration is the persisted summary of one slide's synthesized speech.
type SlideNarration struct {
	SlideNumber     int     `json:"slide_number"`
	Script          string  `json:"script"`
	AudioURL        string  `json:"audio_url,omitempty"`
	StoragePath     string  `json:"storage_path,omitempty"`
	DurationSeconds float64 `json:"duration"`
	CharactersUsed  int     `json:"characters_used"`
	IsMock          bool    `json:"is_mock"`
}

type Narrations []SlideNarration

func (n Narrations) Value() (driver.Value, error) { return json.Marshal(n) }
func (n *Narrations) Scan(value interface{}) error { return scanJSON(value, n) }

type Lesson struct {
	ID                   uuid.UUID     `json:"id"`
	Title                string        `json:"title"`
	Slides               Slides        `json:"slides"`
	VoiceSettings        VoiceSettings `json:"voice_settings"`
	VideoSettings        VideoSettings `json:"video_settings"`
	VideoStatus          VideoStatus   `json:"video_status"`
	VideoURL             *string       `json:"video_url,omitempty"`
	ThumbnailURL         *string       `json:"thumbnail_url,omitempty"`
	VideoStoragePath     *string       `json:"-"`
	ThumbnailStoragePath *string       `json:"-"`
	DurationSeconds      *float64      `json:"duration,omitempty"`
	FileSize             *int64        `json:"file_size,omitempty"`
	InteractionsTimeline Timeline      `json:"interactions_timeline,omitempty"`
	Narrations           Narrations    `json:"narrations,omitempty"`
	VideoError           *string       `json:"video_error,omitempty"`
	VideoErrorDetail     *string       `json:"-"`
	VideoGeneratedAt     *time.Time    `json:"video_generated_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// LessonPatch carries a partial update; nil fields are left untouched.
type LessonPatch struct {
	VideoStatus          *VideoStatus
	VideoURL             *string
	ThumbnailURL         *string
	VideoStoragePath     *string
	ThumbnailStoragePath *string
	DurationSeconds      *float64
	FileSize             *int64
	InteractionsTimeline *Timeline
	Narrations           *Narrations
	VideoError           *string
	VideoErrorDetail     *string
	VideoGeneratedAt     *time.Time
}

// Empty reports whether the patch would write nothing.
func (p LessonPatch) Empty() bool {
	return p.VideoStatus == nil && p.VideoURL == nil && p.ThumbnailURL == nil &&
		p.VideoStoragePath == nil && p.ThumbnailStoragePath == nil &&
		p.DurationSeconds == nil && p.FileSize == nil && p.InteractionsTimeline == nil &&
		p.Narrations == nil && p.VideoError == nil && p.VideoErrorDetail == nil &&
		p.VideoGeneratedAt == nil
}

// Apply writes the non-nil fields of p onto l.
func (p LessonPatch) Apply(l *Lesson) {
	if p.VideoStatus != nil {
		l.VideoStatus = *p.VideoStatus
	}
	if p.VideoURL != nil {
		l.VideoURL = p.VideoURL
	}
	if p.ThumbnailURL != nil {
		l.ThumbnailURL = p.ThumbnailURL
	}
	if p.VideoStoragePath != nil {
		l.VideoStoragePath = p.VideoStoragePath
	}
	if p.ThumbnailStoragePath != nil {
		l.ThumbnailStoragePath = p.ThumbnailStoragePath
	}
	if p.DurationSeconds != nil {
		l.DurationSeconds = p.DurationSeconds
	}
	if p.FileSize != nil {
		l.FileSize = p.FileSize
	}
	if p.InteractionsTimeline != nil {
		l.InteractionsTimeline = *p.InteractionsTimeline
	}
	if p.Narrations != nil {
		l.Narrations = *p.Narrations
	}
	if p.VideoError != nil {
		l.VideoError = p.VideoError
	}
	if p.VideoErrorDetail != nil {
		l.VideoErrorDetail = p.VideoErrorDetail
	}
	if p.VideoGeneratedAt != nil {
		l.VideoGeneratedAt = p.VideoGeneratedAt
	}
}

// GenerationRun gives every pipeline execution an identity.
type GenerationRun struct {
	ID           uuid.UUID  `json:"id"`
	LessonID     uuid.UUID  `json:"lesson_id"`
	Reason       RunReason  `json:"reason"`
	Status       RunStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// VideoResult is what one successful assembly produces.
type VideoResult struct {
	VideoURL             string     `json:"video_url"`
	ThumbnailURL         string     `json:"thumbnail_url"`
	VideoStoragePath     string     `json:"-"`
	ThumbnailStoragePath string     `json:"-"`
	DurationSeconds      float64    `json:"duration"`
	FileSize             int64      `json:"file_size"`
	InteractionsTimeline Timeline   `json:"interactions_timeline"`
	Narrations           Narrations `json:"narrations"`
	CharactersUsed       int        `json:"characters_used"`
}

// NormalizeSlides returns the slides ordered by position with 1-based,
// contiguous positions. Slides without a position keep their authored order
// after the positioned ones.
func NormalizeSlides(in []Slide) []Slide {
	out := make([]Slide, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Position, out[j].Position
		if pi <= 0 {
			return false
		}
		if pj <= 0 {
			return true
		}
		return pi < pj
	})
	for i := range out {
		out[i].Position = i + 1
		if out[i].Template == "" {
			out[i].Template = TemplateUnknown
		}
	}
	return out
}

// SlidesFingerprint hashes everything that influences the rendered video.
func SlidesFingerprint(slides []Slide) string {
	data, _ := json.Marshal(NormalizeSlides(slides))
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DTOs for API responses
type LessonVideoResponse struct {
	LessonID             uuid.UUID   `json:"lesson_id"`
	Status               VideoStatus `json:"status"`
	VideoURL             *string     `json:"video_url,omitempty"`
	ThumbnailURL         *string     `json:"thumbnail_url,omitempty"`
	DurationSeconds      *float64    `json:"duration,omitempty"`
	FileSize             *int64      `json:"file_size,omitempty"`
	InteractionsTimeline Timeline    `json:"interactions_timeline,omitempty"`
	Error                *string     `json:"error,omitempty"`
	GeneratedAt          *time.Time  `json:"generated_at,omitempty"`
}

type RegenerateResponse struct {
	RunID    uuid.UUID   `json:"run_id"`
	LessonID uuid.UUID   `json:"lesson_id"`
	Status   VideoStatus `json:"status"`
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
}

// SaveLessonRequest is the authored part of a lesson as submitted by clients.
type SaveLessonRequest struct {
	Title         string        `json:"title"`
	Slides        Slides        `json:"slides"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
	VideoSettings VideoSettings `json:"video_settings"`
}

type SaveLessonResponse struct {
	LessonID       uuid.UUID  `json:"lesson_id"`
	VideoTriggered bool       `json:"video_triggered"`
	RunID          *uuid.UUID `json:"run_id,omitempty"`
}
