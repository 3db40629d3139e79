package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/metrics"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/services"
)

// LessonStore is the slice of lesson persistence the pipeline needs.
type LessonStore interface {
	GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error)
	PatchLesson(ctx context.Context, id uuid.UUID, patch models.LessonPatch) error
}

type VideoAssembler interface {
	Assemble(ctx context.Context, lesson *models.Lesson, runID uuid.UUID, scratch *services.Scratch) (*models.VideoResult, error)
}

var _ VideoAssembler = (*Assembler)(nil)

const lockKeyPrefix = "generate:"

type Orchestrator struct {
	store     LessonStore
	assembler VideoAssembler
	objects   ObjectStore
	locker    Locker
	tempRoot  string
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	running map[uuid.UUID]*activeRun
}

type activeRun struct {
	runID     uuid.UUID
	cancel    context.CancelFunc
	cancelled bool
}

func NewOrchestrator(store LessonStore, assembler VideoAssembler, objects ObjectStore, locker Locker, tempRoot string, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Orchestrator{
		store:     store,
		assembler: assembler,
		objects:   objects,
		locker:    locker,
		tempRoot:  tempRoot,
		log:       log.With("component", "Orchestrator"),
		metrics:   m,
		running:   make(map[uuid.UUID]*activeRun),
	}
}

// Generate runs the pipeline for a lesson under a fresh run id.
func (o *Orchestrator) Generate(ctx context.Context, lessonID uuid.UUID) (*models.VideoResult, error) {
	return o.GenerateRun(ctx, lessonID, uuid.New())
}

// GenerateRun is Generate with a caller-supplied run id, used when a run
// row already exists.
func (o *Orchestrator) GenerateRun(ctx context.Context, lessonID, runID uuid.UUID) (result *models.VideoResult, err error) {
	log := o.log.With("lesson_id", lessonID, "run_id", runID)

	release, acquired, err := o.locker.Acquire(ctx, lockKeyPrefix+lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lesson lock: %w", err)
	}
	if !acquired {
		return nil, ErrGenerationInFlight
	}
	defer release()

	lesson, err := o.store.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	status := models.VideoStatusGenerating
	empty := ""
	if err := o.store.PatchLesson(ctx, lessonID, models.LessonPatch{
		VideoStatus:      &status,
		VideoError:       &empty,
		VideoErrorDetail: &empty,
	}); err != nil {
		return nil, fmt.Errorf("failed to mark lesson generating: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := o.register(lessonID, runID, cancel)
	defer o.unregister(lessonID, run)
	defer cancel()

	scratch, err := services.NewScratch(o.tempRoot, runID.String())
	if err != nil {
		o.fail(ctx, lessonID, err, ErrorDetail(err), log)
		o.metrics.ObserveRun("failed", time.Since(started).Seconds())
		return nil, err
	}
	defer func() {
		if cerr := scratch.Cleanup(); cerr != nil {
			log.Warn("scratch cleanup failed", "dir", scratch.Dir(), "error", cerr)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
			result = nil
			o.fail(ctx, lessonID, err, string(debug.Stack()), log)
			o.metrics.ObserveRun("failed", time.Since(started).Seconds())
		}
	}()

	log.Info("generation started", "slides", len(lesson.Slides))

	result, err = o.assembler.Assemble(runCtx, lesson, runID, scratch)
	if err != nil {
		if o.wasCancelled(run) {
			err = ErrCancelled
		}
		o.fail(ctx, lessonID, err, ErrorDetail(err), log)
		o.metrics.ObserveRun("failed", time.Since(started).Seconds())
		return nil, err
	}

	if err := o.complete(ctx, lesson, result); err != nil {
		deleteObjects(ctx, o.objects, resultPaths(result), log)
		o.fail(ctx, lessonID, err, ErrorDetail(err), log)
		o.metrics.ObserveRun("failed", time.Since(started).Seconds())
		return nil, err
	}

	o.deletePrevious(ctx, lesson, result, log)
	o.metrics.ObserveRun("succeeded", time.Since(started).Seconds())
	log.Info("generation completed", "duration", result.DurationSeconds, "video_url", result.VideoURL, "elapsed", time.Since(started).String())
	return result, nil
}

// Cancel stops the in-process run for a lesson. It reports whether one was found.
func (o *Orchestrator) Cancel(lessonID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.running[lessonID]
	if !ok {
		return false
	}
	run.cancelled = true
	run.cancel()
	return true
}

// Running reports whether this process is generating the lesson.
func (o *Orchestrator) Running(lessonID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[lessonID]
	return ok
}

func (o *Orchestrator) register(lessonID, runID uuid.UUID, cancel context.CancelFunc) *activeRun {
	run := &activeRun{runID: runID, cancel: cancel}
	o.mu.Lock()
	o.running[lessonID] = run
	o.mu.Unlock()
	return run
}

func (o *Orchestrator) unregister(lessonID uuid.UUID, run *activeRun) {
	o.mu.Lock()
	if o.running[lessonID] == run {
		delete(o.running, lessonID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) wasCancelled(run *activeRun) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return run.cancelled
}

func (o *Orchestrator) complete(ctx context.Context, lesson *models.Lesson, result *models.VideoResult) error {
	status := models.VideoStatusCompleted
	now := time.Now().UTC()
	timeline := result.InteractionsTimeline
	narrations := result.Narrations
	if err := o.store.PatchLesson(context.WithoutCancel(ctx), lesson.ID, models.LessonPatch{
		VideoStatus:          &status,
		VideoURL:             &result.VideoURL,
		ThumbnailURL:         &result.ThumbnailURL,
		VideoStoragePath:     &result.VideoStoragePath,
		ThumbnailStoragePath: &result.ThumbnailStoragePath,
		DurationSeconds:      &result.DurationSeconds,
		FileSize:             &result.FileSize,
		InteractionsTimeline: &timeline,
		Narrations:           &narrations,
		VideoGeneratedAt:     &now,
	}); err != nil {
		return fmt.Errorf("failed to mark lesson completed: %w", err)
	}
	return nil
}

// fail persists the failed status. The patch outlives a cancelled request.
func (o *Orchestrator) fail(ctx context.Context, lessonID uuid.UUID, cause error, detail string, log *logger.Logger) {
	log.Error("generation failed", "error", cause)

	status := models.VideoStatusFailed
	msg := cause.Error()
	if err := o.store.PatchLesson(context.WithoutCancel(ctx), lessonID, models.LessonPatch{
		VideoStatus:      &status,
		VideoError:       &msg,
		VideoErrorDetail: &detail,
	}); err != nil {
		log.Error("failed to mark lesson failed", "error", err)
	}
}

// resultPaths lists every object a finished run uploaded.
func resultPaths(r *models.VideoResult) []string {
	paths := []string{r.VideoStoragePath, r.ThumbnailStoragePath}
	for _, n := range r.Narrations {
		if n.StoragePath != "" {
			paths = append(paths, n.StoragePath)
		}
	}
	return paths
}

// deletePrevious drops the assets of the video the new run replaced.
func (o *Orchestrator) deletePrevious(ctx context.Context, lesson *models.Lesson, result *models.VideoResult, log *logger.Logger) {
	current := make(map[string]bool)
	for _, p := range resultPaths(result) {
		current[p] = true
	}
	var stale []string
	for _, old := range []*string{lesson.VideoStoragePath, lesson.ThumbnailStoragePath} {
		if old != nil && *old != "" && !current[*old] {
			stale = append(stale, *old)
		}
	}
	for _, n := range lesson.Narrations {
		if n.StoragePath != "" && !current[n.StoragePath] {
			stale = append(stale, n.StoragePath)
		}
	}
	deleteObjects(ctx, o.objects, stale, log)
}
