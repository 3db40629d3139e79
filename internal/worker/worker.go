package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/pipeline"
	"github.com/bobarin/lessoncast/internal/queue"
)

const dequeueTimeout = 5 * time.Second

// JobSource yields queued generation jobs; nil job means the wait timed out.
type JobSource interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// RunStore persists generation run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.GenerationRun) error
	LatestRun(ctx context.Context, lessonID uuid.UUID) (*models.GenerationRun, error)
	MarkRunRunning(ctx context.Context, id uuid.UUID) error
	MarkRunSucceeded(ctx context.Context, id uuid.UUID) error
	MarkRunFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// Generator runs the video pipeline for one lesson under a known run id.
type Generator interface {
	GenerateRun(ctx context.Context, lessonID, runID uuid.UUID) (*models.VideoResult, error)
}

var _ Generator = (*pipeline.Orchestrator)(nil)

type Worker struct {
	source JobSource
	runs   RunStore
	gen    Generator
	log    *logger.Logger
}

func New(source JobSource, runs RunStore, gen Generator, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		source: source,
		runs:   runs,
		gen:    gen,
		log:    log.With("component", "Worker"),
	}
}

// Start runs concurrency queue consumers and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("worker started", "concurrency", concurrency, "queue", queue.QueueGenerateVideo)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.processQueue(gctx, slot)
			return nil
		})
	}
	_ = g.Wait()

	w.log.Info("worker shutting down")
}

func (w *Worker) processQueue(ctx context.Context, slot int) {
	log := w.log.With("slot", slot)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.source.Dequeue(ctx, queue.QueueGenerateVideo, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			// keep a broken connection from spinning the loop
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		if job.Type != queue.JobTypeGenerateVideo {
			log.Warn("skipping unknown job type", "job_id", job.ID, "type", job.Type)
			continue
		}

		log.Info("processing job", "job_id", job.ID, "lesson_id", job.LessonID, "reason", job.Reason)
		execute(ctx, w.runs, w.gen, log, job.LessonID, job.ID)
	}
}

// execute drives one run and records its outcome. Failures are already
// persisted on the lesson by the orchestrator, so they are only logged here.
func execute(ctx context.Context, runs RunStore, gen Generator, log *logger.Logger, lessonID, runID uuid.UUID) {
	log = log.With("lesson_id", lessonID, "run_id", runID)

	if err := runs.MarkRunRunning(ctx, runID); err != nil {
		log.Warn("failed to mark run running", "error", err)
	}

	// run bookkeeping must land even when shutdown cancelled the pipeline
	bookkeeping := context.WithoutCancel(ctx)

	_, err := gen.GenerateRun(ctx, lessonID, runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrGenerationInFlight) {
			log.Warn("lesson already generating, run dropped")
		} else {
			log.Error("generation run failed", "error", err)
		}
		if merr := runs.MarkRunFailed(bookkeeping, runID, err.Error()); merr != nil {
			log.Error("failed to mark run failed", "error", merr)
		}
		return
	}

	if err := runs.MarkRunSucceeded(bookkeeping, runID); err != nil {
		log.Error("failed to mark run succeeded", "error", err)
	}
	log.Info("generation run succeeded")
}
