package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/services"
)

// ---------------------------------------------------------------------------
// Collaborator capabilities
// ---------------------------------------------------------------------------

type ScriptWriter interface {
	Generate(ctx context.Context, content models.SlideContent, kind models.TemplateKind, previousContext string) string
}

type Narrator interface {
	Synthesize(ctx context.Context, req services.SpeechRequest) (*services.Narration, error)
}

type FrameRenderer interface {
	Render(slide models.Slide, settings models.VideoSettings, path string) error
}

// Encoder turns frames and narration into the final media files.
type Encoder interface {
	ConcatAudio(ctx context.Context, segments []services.AudioSegment, outputPath string) error
	Mux(ctx context.Context, req services.MuxRequest) error
	Thumbnail(ctx context.Context, framePath, outputPath string) error
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) error
	GetPublicURL(path string) string
	Delete(ctx context.Context, path string) error
}

var (
	_ ScriptWriter  = (*services.ScriptGenerator)(nil)
	_ Narrator      = (*services.SpeechSynthesizer)(nil)
	_ FrameRenderer = (*services.FrameRenderer)(nil)
	_ Encoder       = (*services.FFmpegService)(nil)
)

// NarrationTrack is one slide's audio as laid into the final track.
type NarrationTrack struct {
	SlideNumber int
	AudioPath   string
	Duration    float64
	Narration   *services.Narration
}

// VisualFrame is one slide's still image and its on-screen time.
type VisualFrame struct {
	SlideNumber int
	ImagePath   string
	Duration    float64
}

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

type Assembler struct {
	scripts   ScriptWriter
	narrator  Narrator
	frames    FrameRenderer
	encoder   Encoder
	store     ObjectStore
	callDelay time.Duration
	log       *logger.Logger
}

func NewAssembler(scripts ScriptWriter, narrator Narrator, frames FrameRenderer, encoder Encoder, store ObjectStore, callDelay time.Duration, log *logger.Logger) *Assembler {
	if log == nil {
		log = logger.Nop()
	}
	return &Assembler{
		scripts:   scripts,
		narrator:  narrator,
		frames:    frames,
		encoder:   encoder,
		store:     store,
		callDelay: callDelay,
		log:       log.With("component", "Assembler"),
	}
}

func storagePrefix(lessonID uuid.UUID) string {
	return "lessons/" + lessonID.String()
}

// uploadSet records the objects a run has put in storage.
type uploadSet struct {
	mu    sync.Mutex
	paths []string
}

func (u *uploadSet) add(path string) {
	u.mu.Lock()
	u.paths = append(u.paths, path)
	u.mu.Unlock()
}

func (u *uploadSet) list() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.paths...)
}

// Assemble renders the whole lesson into one uploaded video. Any slide
// failure aborts the run, and objects the run already uploaded are removed.
func (a *Assembler) Assemble(ctx context.Context, lesson *models.Lesson, runID uuid.UUID, scratch *services.Scratch) (result *models.VideoResult, err error) {
	slides := models.NormalizeSlides(lesson.Slides)
	if len(slides) == 0 {
		return nil, ErrNoSlides
	}
	log := a.log.With("lesson_id", lesson.ID, "run_id", runID)

	uploaded := &uploadSet{}
	defer func() {
		if err != nil {
			deleteObjects(ctx, a.store, uploaded.list(), log)
		}
	}()

	var (
		tracks      = make([]NarrationTrack, 0, len(slides))
		frames      = make([]VisualFrame, 0, len(slides))
		timeline    = models.Timeline{}
		narrations  = make(models.Narrations, 0, len(slides))
		cumulative  float64
		charsUsed   int
		previousCtx string
	)

	for i, slide := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		script := slide.NarrationScript
		if strings.TrimSpace(script) == "" {
			script = a.scripts.Generate(ctx, slide.Content, slide.Template, previousCtx)
		}
		previousCtx = slide.Content.ContextSummary()

		if i > 0 && a.callDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.callDelay):
			}
		}

		narration, err := a.narrator.Synthesize(ctx, services.SpeechRequest{
			Script:        script,
			Template:      slide.Template,
			Voice:         lesson.VoiceSettings,
			SlideNumber:   slide.Position,
			StoragePrefix: storagePrefix(lesson.ID),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &SlideError{Slide: slide.Position, Stage: StageNarration, Err: err}
		}
		if narration.StoragePath != "" {
			uploaded.add(narration.StoragePath)
		}

		audioPath, err := scratch.WriteFile(fmt.Sprintf("audio_%03d_%s.%s", slide.Position, uuid.New().String(), narration.Format), narration.Audio)
		if err != nil {
			return nil, &SlideError{Slide: slide.Position, Stage: StageAudio, Err: err}
		}

		framePath := scratch.Path(fmt.Sprintf("frame_%03d.png", slide.Position))
		if err := a.frames.Render(slide, lesson.VideoSettings, framePath); err != nil {
			return nil, &SlideError{Slide: slide.Position, Stage: StageFrame, Err: err}
		}

		audioDuration := narration.DurationSeconds
		if !narration.IsMock {
			if probed, err := a.encoder.ProbeDuration(ctx, audioPath); err == nil && probed > 0 {
				audioDuration = probed
			} else if err != nil {
				log.Debug("probe failed, using estimate", "slide", slide.Position, "error", err)
			}
		}
		duration := audioDuration
		if slide.Duration > duration {
			duration = slide.Duration
		}

		cues, clamped := slideCues(slide, cumulative, duration)
		if clamped > 0 {
			log.Warn("interaction offsets clamped into slide", "slide", slide.Position, "clamped", clamped, "duration", duration)
		}
		timeline = append(timeline, cues...)

		tracks = append(tracks, NarrationTrack{SlideNumber: slide.Position, AudioPath: audioPath, Duration: duration, Narration: narration})
		frames = append(frames, VisualFrame{SlideNumber: slide.Position, ImagePath: framePath, Duration: duration})
		narrations = append(narrations, models.SlideNarration{
			SlideNumber:     slide.Position,
			Script:          narration.Script,
			AudioURL:        narration.AudioURL,
			StoragePath:     narration.StoragePath,
			DurationSeconds: duration,
			CharactersUsed:  narration.CharactersUsed,
			IsMock:          narration.IsMock,
		})

		cumulative += duration
		charsUsed += narration.CharactersUsed

		log.Info("slide prepared", "slide", slide.Position, "duration", duration, "chars", narration.CharactersUsed, "mock", narration.IsMock)
	}

	videoPath, thumbPath, err := a.encode(ctx, lesson.VideoSettings, tracks, frames, scratch)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat muxed video: %w", err)
	}

	videoKey := fmt.Sprintf("%s/interactive_video_%s.mp4", storagePrefix(lesson.ID), runID)
	thumbKey := fmt.Sprintf("%s/thumbnail_%s.jpg", storagePrefix(lesson.ID), runID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.store.UploadFile(gctx, videoKey, videoPath, "video/mp4"); err != nil {
			return fmt.Errorf("failed to upload video: %w", err)
		}
		uploaded.add(videoKey)
		return nil
	})
	g.Go(func() error {
		if err := a.store.UploadFile(gctx, thumbKey, thumbPath, "image/jpeg"); err != nil {
			return fmt.Errorf("failed to upload thumbnail: %w", err)
		}
		uploaded.add(thumbKey)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("lesson video assembled", "slides", len(slides), "duration", cumulative, "bytes", info.Size(), "cues", len(timeline))

	return &models.VideoResult{
		VideoURL:             a.store.GetPublicURL(videoKey),
		ThumbnailURL:         a.store.GetPublicURL(thumbKey),
		VideoStoragePath:     videoKey,
		ThumbnailStoragePath: thumbKey,
		DurationSeconds:      cumulative,
		FileSize:             info.Size(),
		InteractionsTimeline: timeline,
		Narrations:           narrations,
		CharactersUsed:       charsUsed,
	}, nil
}

// deleteObjects removes paths best-effort. It runs after failures, so it
// ignores cancellation of ctx.
func deleteObjects(ctx context.Context, store ObjectStore, paths []string, log *logger.Logger) {
	if store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if err := store.Delete(ctx, p); err != nil {
			log.Warn("failed to delete object", "path", p, "error", err)
		}
	}
}

// encode concatenates narration, muxes it under the held frames and extracts
// the thumbnail. All outputs live in scratch.
func (a *Assembler) encode(ctx context.Context, settings models.VideoSettings, tracks []NarrationTrack, frames []VisualFrame, scratch *services.Scratch) (string, string, error) {
	segments := make([]services.AudioSegment, len(tracks))
	for i, t := range tracks {
		segments[i] = services.AudioSegment{Path: t.AudioPath, Duration: t.Duration}
	}
	audioPath := scratch.Path("narration_full.mp3")
	if err := a.encoder.ConcatAudio(ctx, segments, audioPath); err != nil {
		return "", "", err
	}

	held := make([]services.FrameSegment, len(frames))
	for i, f := range frames {
		held[i] = services.FrameSegment{Path: f.ImagePath, Duration: f.Duration}
	}
	w, h := services.Resolution(settings)
	videoPath := scratch.Path("lesson_video.mp4")
	if err := a.encoder.Mux(ctx, services.MuxRequest{
		Frames:       held,
		AudioPath:    audioPath,
		ManifestPath: scratch.Path("frames.txt"),
		OutputPath:   videoPath,
		Width:        w,
		Height:       h,
	}); err != nil {
		return "", "", err
	}

	thumbPath := scratch.Path("thumbnail.jpg")
	if err := a.encoder.Thumbnail(ctx, frames[0].ImagePath, thumbPath); err != nil {
		return "", "", err
	}
	return videoPath, thumbPath, nil
}
