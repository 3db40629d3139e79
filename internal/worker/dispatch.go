package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/db"
	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/pipeline"
	"github.com/bobarin/lessoncast/internal/queue"
)

// Dispatcher starts a generation run without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, lessonID uuid.UUID, reason models.RunReason) (uuid.UUID, error)
}

// JobSink accepts generation jobs for the queue consumers.
type JobSink interface {
	EnqueueGenerateVideo(ctx context.Context, lessonID, runID uuid.UUID, reason models.RunReason) error
}

var (
	_ JobSink    = (*queue.Queue)(nil)
	_ JobSource  = (*queue.Queue)(nil)
	_ RunStore   = (*db.DB)(nil)
	_ Dispatcher = (*QueueDispatcher)(nil)
	_ Dispatcher = (*InlineDispatcher)(nil)
)

// activeRun reports whether the lesson has a queued or running run younger
// than staleAfter. Older ones are assumed to belong to a dead process.
func activeRun(ctx context.Context, runs RunStore, lessonID uuid.UUID, staleAfter time.Duration, now time.Time) (bool, error) {
	run, err := runs.LatestRun(ctx, lessonID)
	if errors.Is(err, db.ErrRunNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if run.Status != models.RunStatusQueued && run.Status != models.RunStatusRunning {
		return false, nil
	}
	return staleAfter <= 0 || now.Sub(run.CreatedAt) < staleAfter, nil
}

func createRun(ctx context.Context, runs RunStore, lessonID uuid.UUID, reason models.RunReason, staleAfter time.Duration) (*models.GenerationRun, error) {
	busy, err := activeRun(ctx, runs, lessonID, staleAfter, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to check active runs: %w", err)
	}
	if busy {
		return nil, pipeline.ErrGenerationInFlight
	}

	run := &models.GenerationRun{
		ID:       uuid.New(),
		LessonID: lessonID,
		Reason:   reason,
		Status:   models.RunStatusQueued,
	}
	if err := runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// ---------------------------------------------------------------------------
// Queue dispatch (redis + worker pool)
// ---------------------------------------------------------------------------

type QueueDispatcher struct {
	runs       RunStore
	sink       JobSink
	staleAfter time.Duration
}

func NewQueueDispatcher(runs RunStore, sink JobSink, staleAfter time.Duration) *QueueDispatcher {
	return &QueueDispatcher{runs: runs, sink: sink, staleAfter: staleAfter}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, lessonID uuid.UUID, reason models.RunReason) (uuid.UUID, error) {
	run, err := createRun(ctx, d.runs, lessonID, reason, d.staleAfter)
	if err != nil {
		return uuid.Nil, err
	}

	if err := d.sink.EnqueueGenerateVideo(ctx, lessonID, run.ID, reason); err != nil {
		_ = d.runs.MarkRunFailed(context.WithoutCancel(ctx), run.ID, "enqueue failed: "+err.Error())
		return uuid.Nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}
	return run.ID, nil
}

// ---------------------------------------------------------------------------
// Inline dispatch (single process)
// ---------------------------------------------------------------------------

// InlineDispatcher runs the pipeline on a detached goroutine tied to base,
// not to the request that triggered it.
type InlineDispatcher struct {
	base       context.Context
	runs       RunStore
	gen        Generator
	staleAfter time.Duration
	log        *logger.Logger
	wg         sync.WaitGroup
}

func NewInlineDispatcher(base context.Context, runs RunStore, gen Generator, staleAfter time.Duration, log *logger.Logger) *InlineDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &InlineDispatcher{
		base:       base,
		runs:       runs,
		gen:        gen,
		staleAfter: staleAfter,
		log:        log.With("component", "InlineDispatcher"),
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, lessonID uuid.UUID, reason models.RunReason) (uuid.UUID, error) {
	run, err := createRun(ctx, d.runs, lessonID, reason, d.staleAfter)
	if err != nil {
		return uuid.Nil, err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		execute(d.base, d.runs, d.gen, d.log, lessonID, run.ID)
	}()
	return run.ID, nil
}

// Wait blocks until every dispatched run has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// ---------------------------------------------------------------------------
// Save hook
// ---------------------------------------------------------------------------

// NotifyLessonSaved dispatches a run when a lesson is created with slides or
// its slide content changed. before is nil on create. It reports whether a
// run was started.
func NotifyLessonSaved(ctx context.Context, d Dispatcher, before, after *models.Lesson) (uuid.UUID, bool, error) {
	if after == nil || len(after.Slides) == 0 {
		return uuid.Nil, false, nil
	}

	reason := models.RunReasonCreated
	if before != nil {
		if models.SlidesFingerprint(before.Slides) == models.SlidesFingerprint(after.Slides) {
			return uuid.Nil, false, nil
		}
		reason = models.RunReasonContentChanged
	}

	runID, err := d.Dispatch(ctx, after.ID, reason)
	if err != nil {
		return uuid.Nil, false, err
	}
	return runID, true, nil
}
