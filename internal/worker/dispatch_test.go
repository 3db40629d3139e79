package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/pipeline"
)

type recordingSink struct {
	mu   sync.Mutex
	jobs []uuid.UUID
	err  error
}

func (s *recordingSink) EnqueueGenerateVideo(_ context.Context, _, runID uuid.UUID, _ models.RunReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, runID)
	return nil
}

func TestQueueDispatcherEnqueuesRun(t *testing.T) {
	runs := newMemRuns()
	sink := &recordingSink{}
	d := NewQueueDispatcher(runs, sink, time.Hour)
	lessonID := uuid.New()

	runID, err := d.Dispatch(context.Background(), lessonID, models.RunReasonManual)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{runID}, sink.jobs)

	got := runs.get(runID)
	assert.Equal(t, models.RunStatusQueued, got.Status)
	assert.Equal(t, models.RunReasonManual, got.Reason)
	assert.Equal(t, lessonID, got.LessonID)
}

func TestQueueDispatcherRejectsActiveRun(t *testing.T) {
	runs := newMemRuns()
	d := NewQueueDispatcher(runs, &recordingSink{}, time.Hour)
	lessonID := uuid.New()

	_, err := d.Dispatch(context.Background(), lessonID, models.RunReasonManual)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), lessonID, models.RunReasonManual)
	assert.ErrorIs(t, err, pipeline.ErrGenerationInFlight)
}

func TestQueueDispatcherIgnoresStaleRun(t *testing.T) {
	runs := newMemRuns()
	lessonID := uuid.New()
	stale := &models.GenerationRun{ID: uuid.New(), LessonID: lessonID, Status: models.RunStatusRunning}
	require.NoError(t, runs.CreateRun(context.Background(), stale))
	runs.mu.Lock()
	runs.runs[stale.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	runs.mu.Unlock()

	d := NewQueueDispatcher(runs, &recordingSink{}, time.Hour)
	_, err := d.Dispatch(context.Background(), lessonID, models.RunReasonManual)
	assert.NoError(t, err)
}

func TestQueueDispatcherEnqueueFailure(t *testing.T) {
	runs := newMemRuns()
	d := NewQueueDispatcher(runs, &recordingSink{err: errors.New("redis down")}, time.Hour)

	_, err := d.Dispatch(context.Background(), uuid.New(), models.RunReasonCreated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	id := runs.waitDone(t)
	assert.Equal(t, models.RunStatusFailed, runs.get(id).Status)
}

func TestInlineDispatcherRunsDetached(t *testing.T) {
	runs := newMemRuns()
	gen := &fakeGenerator{}
	d := NewInlineDispatcher(context.Background(), runs, gen, time.Hour, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	runID, err := d.Dispatch(reqCtx, uuid.New(), models.RunReasonManual)
	require.NoError(t, err)
	cancel() // the request ending must not stop the run

	d.Wait()
	assert.Equal(t, models.RunStatusSucceeded, runs.get(runID).Status)
}

type countingDispatcher struct {
	reasons []models.RunReason
}

func (c *countingDispatcher) Dispatch(_ context.Context, _ uuid.UUID, reason models.RunReason) (uuid.UUID, error) {
	c.reasons = append(c.reasons, reason)
	return uuid.New(), nil
}

func TestNotifyLessonSaved(t *testing.T) {
	ctx := context.Background()
	slides := models.Slides{{Position: 1, Template: models.TemplateTitle, Content: models.SlideContent{"title": "A"}}}
	changed := models.Slides{{Position: 1, Template: models.TemplateTitle, Content: models.SlideContent{"title": "B"}}}

	d := &countingDispatcher{}

	_, started, err := NotifyLessonSaved(ctx, d, nil, &models.Lesson{ID: uuid.New(), Slides: slides})
	require.NoError(t, err)
	assert.True(t, started)

	before := &models.Lesson{Slides: slides}
	_, started, _ = NotifyLessonSaved(ctx, d, before, &models.Lesson{Title: "renamed", Slides: slides})
	assert.False(t, started)

	_, started, _ = NotifyLessonSaved(ctx, d, before, &models.Lesson{Slides: changed})
	assert.True(t, started)

	_, started, _ = NotifyLessonSaved(ctx, d, nil, &models.Lesson{})
	assert.False(t, started)

	assert.Equal(t, []models.RunReason{models.RunReasonCreated, models.RunReasonContentChanged}, d.reasons)
}
