package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/db"
	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/pipeline"
	"github.com/bobarin/lessoncast/internal/services"
	"github.com/bobarin/lessoncast/internal/usage"
	"github.com/bobarin/lessoncast/internal/worker"
)

// LessonRepository is the lesson persistence the handlers need.
type LessonRepository interface {
	GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	CreateLesson(ctx context.Context, lesson *models.Lesson) error
	UpdateLessonContent(ctx context.Context, lesson *models.Lesson) error
}

// Canceller stops an in-process generation run.
type Canceller interface {
	Cancel(lessonID uuid.UUID) bool
}

// SpeechInfo exposes voice listing and quota usage.
type SpeechInfo interface {
	ListVoices(ctx context.Context) []services.Voice
	UsageStats(ctx context.Context) (usage.Stats, error)
}

var (
	_ LessonRepository = (*db.DB)(nil)
	_ Canceller        = (*pipeline.Orchestrator)(nil)
	_ SpeechInfo       = (*services.SpeechSynthesizer)(nil)
)

type Handler struct {
	lessons    LessonRepository
	dispatcher worker.Dispatcher
	canceller  Canceller
	speech     SpeechInfo
	log        *logger.Logger
}

func NewHandler(lessons LessonRepository, dispatcher worker.Dispatcher, canceller Canceller, speech SpeechInfo, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		lessons:    lessons,
		dispatcher: dispatcher,
		canceller:  canceller,
		speech:     speech,
		log:        log.With("component", "Handler"),
	}
}

// CreateLesson handles POST /v1/lessons
func (h *Handler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req models.SaveLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	lesson := &models.Lesson{
		ID:            uuid.New(),
		Title:         req.Title,
		Slides:        models.NormalizeSlides(req.Slides),
		VoiceSettings: req.VoiceSettings,
		VideoSettings: req.VideoSettings,
	}
	if err := h.lessons.CreateLesson(r.Context(), lesson); err != nil {
		h.log.Error("failed to create lesson", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create lesson")
		return
	}

	respondJSON(w, http.StatusCreated, h.afterSave(r.Context(), nil, lesson))
}

// UpdateLesson handles PUT /v1/lessons/{id}
func (h *Handler) UpdateLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := lessonID(w, r)
	if !ok {
		return
	}

	var req models.SaveLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	before, ok := h.loadLesson(w, r, id)
	if !ok {
		return
	}

	after := *before
	after.Title = req.Title
	after.Slides = models.NormalizeSlides(req.Slides)
	after.VoiceSettings = req.VoiceSettings
	after.VideoSettings = req.VideoSettings

	if err := h.lessons.UpdateLessonContent(r.Context(), &after); err != nil {
		if errors.Is(err, models.ErrLessonNotFound) {
			respondError(w, http.StatusNotFound, "Lesson not found")
			return
		}
		h.log.Error("failed to update lesson", "lesson_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update lesson")
		return
	}

	respondJSON(w, http.StatusOK, h.afterSave(r.Context(), before, &after))
}

// afterSave triggers generation when slide content changed. Dispatch
// failures never fail the save.
func (h *Handler) afterSave(ctx context.Context, before, after *models.Lesson) models.SaveLessonResponse {
	resp := models.SaveLessonResponse{LessonID: after.ID}
	runID, started, err := worker.NotifyLessonSaved(ctx, h.dispatcher, before, after)
	if err != nil {
		h.log.Warn("failed to start video generation after save", "lesson_id", after.ID, "error", err)
		return resp
	}
	if started {
		resp.VideoTriggered = true
		resp.RunID = &runID
	}
	return resp
}

// GetLessonVideo handles GET /v1/lessons/{id}/video
func (h *Handler) GetLessonVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := lessonID(w, r)
	if !ok {
		return
	}
	lesson, ok := h.loadLesson(w, r, id)
	if !ok {
		return
	}

	resp := models.LessonVideoResponse{
		LessonID:             lesson.ID,
		Status:               lesson.VideoStatus,
		VideoURL:             lesson.VideoURL,
		ThumbnailURL:         lesson.ThumbnailURL,
		DurationSeconds:      lesson.DurationSeconds,
		FileSize:             lesson.FileSize,
		InteractionsTimeline: lesson.InteractionsTimeline,
		GeneratedAt:          lesson.VideoGeneratedAt,
	}
	if lesson.VideoError != nil && *lesson.VideoError != "" {
		resp.Error = lesson.VideoError
	}
	respondJSON(w, http.StatusOK, resp)
}

// RegenerateVideo handles POST /v1/lessons/{id}/video/regenerate
func (h *Handler) RegenerateVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := lessonID(w, r)
	if !ok {
		return
	}
	lesson, ok := h.loadLesson(w, r, id)
	if !ok {
		return
	}
	if len(lesson.Slides) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "Lesson has no slides")
		return
	}

	runID, err := h.dispatcher.Dispatch(r.Context(), id, models.RunReasonManual)
	if errors.Is(err, pipeline.ErrGenerationInFlight) {
		respondError(w, http.StatusConflict, "Video generation already in progress")
		return
	}
	if err != nil {
		h.log.Error("failed to dispatch regeneration", "lesson_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to start video generation")
		return
	}

	respondJSON(w, http.StatusAccepted, models.RegenerateResponse{
		RunID:    runID,
		LessonID: id,
		Status:   models.VideoStatusGenerating,
	})
}

// CancelVideo handles POST /v1/lessons/{id}/video/cancel
func (h *Handler) CancelVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := lessonID(w, r)
	if !ok {
		return
	}
	if h.canceller == nil || !h.canceller.Cancel(id) {
		respondError(w, http.StatusNotFound, "No generation running for this lesson")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"lesson_id": id.String(),
		"status":    "cancelling",
	})
}

// GetUsage handles GET /v1/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.speech.UsageStats(r.Context())
	if err != nil {
		h.log.Error("failed to read usage", "error", err)
		respondError(w, http.StatusServiceUnavailable, "Usage ledger unavailable")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ListVoices handles GET /v1/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"voices": h.speech.ListVoices(r.Context()),
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func lessonID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lesson ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) loadLesson(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*models.Lesson, bool) {
	lesson, err := h.lessons.GetLesson(r.Context(), id)
	if errors.Is(err, models.ErrLessonNotFound) {
		respondError(w, http.StatusNotFound, "Lesson not found")
		return nil, false
	}
	if err != nil {
		h.log.Error("failed to load lesson", "lesson_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load lesson")
		return nil, false
	}
	return lesson, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
