package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/services"
	"github.com/bobarin/lessoncast/internal/usage"
)

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func strPtr(s string) *string { return &s }

func TestGenerateSuccess(t *testing.T) {
	lesson := threeSlideLesson()
	lesson.VideoStoragePath = strPtr("lessons/old/interactive_video_old.mp4")
	lesson.ThumbnailStoragePath = strPtr("lessons/old/thumbnail_old.jpg")
	lesson.Narrations = models.Narrations{
		{SlideNumber: 1, StoragePath: "lessons/old/narration/slide_1_old.mp3"},
		{SlideNumber: 2, StoragePath: "lessons/old/narration/slide_2_old.mp3"},
		{SlideNumber: 3, IsMock: true},
	}
	store := newFakeLessonStore(lesson)
	objects := newFakeObjects()
	encoder := &fakeEncoder{}
	tempRoot := t.TempDir()

	narrator := &fakeNarrator{durations: []float64{4, 10, 6}, store: objects}
	a := NewAssembler(&fakeScripts{}, narrator, fakeFrames{}, encoder, objects, 0, nil)
	o := NewOrchestrator(store, a, objects, NewMemoryLocker(), tempRoot, nil, nil)

	result, err := o.Generate(context.Background(), lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, result.DurationSeconds)

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusCompleted, got.VideoStatus)
	require.NotNil(t, got.VideoURL)
	assert.Equal(t, result.VideoURL, *got.VideoURL)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 20.0, *got.DurationSeconds)
	assert.Len(t, got.InteractionsTimeline, 2)
	assert.Len(t, got.Narrations, 3)
	assert.NotNil(t, got.VideoGeneratedAt)

	// generating is persisted before any work
	require.GreaterOrEqual(t, len(store.patches), 2)
	require.NotNil(t, store.patches[0].VideoStatus)
	assert.Equal(t, models.VideoStatusGenerating, *store.patches[0].VideoStatus)

	assert.ElementsMatch(t, []string{
		"lessons/old/interactive_video_old.mp4",
		"lessons/old/thumbnail_old.jpg",
		"lessons/old/narration/slide_1_old.mp3",
		"lessons/old/narration/slide_2_old.mp3",
	}, objects.deleted)
	// new video, thumbnail and three narration tracks
	assert.Len(t, objects.keys(), 5)
	for _, n := range got.Narrations {
		assert.NotEmpty(t, n.StoragePath)
	}
	assert.True(t, encoder.inputsExisted)
	assertNoTempFiles(t, tempRoot)
	assert.False(t, o.Running(lesson.ID))
}

func TestGenerateProductionFailureMarksLessonFailed(t *testing.T) {
	srv, _ := elevenLabsFailingOn(t, 2)
	provider := services.NewElevenLabsService("key", "voice", "", nil).WithBaseURL(srv.URL)
	synth := services.NewSpeechSynthesizer(provider, usage.NewMemoryLedger(), nil, services.SpeechConfig{
		Production:       true,
		MonthlyCharLimit: 10000,
	}, nil, nil)

	lesson := threeSlideLesson()
	store := newFakeLessonStore(lesson)
	objects := newFakeObjects()
	tempRoot := t.TempDir()

	a := NewAssembler(&fakeScripts{}, synth, fakeFrames{}, &fakeEncoder{}, objects, 0, nil)
	o := NewOrchestrator(store, a, objects, NewMemoryLocker(), tempRoot, nil, nil)

	result, err := o.Generate(context.Background(), lesson.ID)
	require.Error(t, err)
	assert.Nil(t, result)

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusFailed, got.VideoStatus)
	assert.Nil(t, got.VideoURL)
	require.NotNil(t, got.VideoError)
	assert.Contains(t, *got.VideoError, "slide 2")
	require.NotNil(t, got.VideoErrorDetail)
	assert.Contains(t, *got.VideoErrorDetail, "SlideError")

	assert.Empty(t, objects.keys())
	assertNoTempFiles(t, tempRoot)
}

func TestGenerateThumbnailUploadFailureRemovesUploads(t *testing.T) {
	lesson := threeSlideLesson()
	store := newFakeLessonStore(lesson)
	objects := newFakeObjects()
	objects.failMatch = "thumbnail_"
	tempRoot := t.TempDir()

	narrator := &fakeNarrator{store: objects}
	a := NewAssembler(&fakeScripts{}, narrator, fakeFrames{}, &fakeEncoder{}, objects, 0, nil)
	o := NewOrchestrator(store, a, objects, NewMemoryLocker(), tempRoot, nil, nil)

	_, err := o.Generate(context.Background(), lesson.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumbnail")

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusFailed, got.VideoStatus)
	assert.Nil(t, got.VideoURL)
	assert.Empty(t, objects.keys())
	assertNoTempFiles(t, tempRoot)
}

func TestGenerateCompletePatchFailureRemovesUploads(t *testing.T) {
	lesson := threeSlideLesson()
	lesson.VideoStoragePath = strPtr("lessons/old/interactive_video_old.mp4")
	store := newFakeLessonStore(lesson)
	store.completedErr = errors.New("connection reset")
	objects := newFakeObjects()
	tempRoot := t.TempDir()

	narrator := &fakeNarrator{store: objects}
	a := NewAssembler(&fakeScripts{}, narrator, fakeFrames{}, &fakeEncoder{}, objects, 0, nil)
	o := NewOrchestrator(store, a, objects, NewMemoryLocker(), tempRoot, nil, nil)

	_, err := o.Generate(context.Background(), lesson.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to mark lesson completed")

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusFailed, got.VideoStatus)
	assert.Empty(t, objects.keys())
	// the previous video is still referenced, so it stays
	assert.NotContains(t, objects.deleted, "lessons/old/interactive_video_old.mp4")
	assertNoTempFiles(t, tempRoot)
}

func TestGenerateLessonNotFound(t *testing.T) {
	store := newFakeLessonStore()
	o := NewOrchestrator(store, &stubAssembler{}, nil, nil, t.TempDir(), nil, nil)

	_, err := o.Generate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrLessonNotFound)
	assert.Empty(t, store.patches)
}

func TestGenerateRejectsConcurrentRun(t *testing.T) {
	lesson := threeSlideLesson()
	store := newFakeLessonStore(lesson)
	locker := NewMemoryLocker()

	release, ok, err := locker.Acquire(context.Background(), lockKeyPrefix+lesson.ID.String())
	require.NoError(t, err)
	require.True(t, ok)

	o := NewOrchestrator(store, &stubAssembler{}, nil, locker, t.TempDir(), nil, nil)
	_, err = o.Generate(context.Background(), lesson.ID)
	assert.ErrorIs(t, err, ErrGenerationInFlight)
	assert.Empty(t, store.patches)

	release()
	_, err = o.Generate(context.Background(), lesson.ID)
	assert.NoError(t, err)
}

func TestGeneratePanicMarksFailed(t *testing.T) {
	lesson := threeSlideLesson()
	store := newFakeLessonStore(lesson)
	tempRoot := t.TempDir()
	o := NewOrchestrator(store, &stubAssembler{panicWith: "index out of range"}, nil, nil, tempRoot, nil, nil)

	_, err := o.Generate(context.Background(), lesson.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusFailed, got.VideoStatus)
	require.NotNil(t, got.VideoErrorDetail)
	assert.Contains(t, *got.VideoErrorDetail, "goroutine")
	assertNoTempFiles(t, tempRoot)

	// lock was released
	_, err = o.Generate(context.Background(), lesson.ID)
	assert.Contains(t, err.Error(), "panicked")
}

func TestCancelStopsRun(t *testing.T) {
	lesson := threeSlideLesson()
	store := newFakeLessonStore(lesson)
	tempRoot := t.TempDir()
	asm := &stubAssembler{block: true, started: make(chan struct{})}
	o := NewOrchestrator(store, asm, nil, nil, tempRoot, nil, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := o.Generate(context.Background(), lesson.ID)
		errc <- err
	}()

	select {
	case <-asm.started:
	case <-time.After(5 * time.Second):
		t.Fatal("assembly never started")
	}
	assert.True(t, o.Running(lesson.ID))
	assert.True(t, o.Cancel(lesson.ID))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusFailed, got.VideoStatus)
	require.NotNil(t, got.VideoError)
	assert.Equal(t, "generation cancelled", *got.VideoError)
	assert.False(t, o.Cancel(lesson.ID))
	assertNoTempFiles(t, tempRoot)
}

func TestRegenerateClearsPreviousError(t *testing.T) {
	lesson := threeSlideLesson()
	lesson.VideoStatus = models.VideoStatusFailed
	lesson.VideoError = strPtr("slide 2 narration failed")
	store := newFakeLessonStore(lesson)
	o := NewOrchestrator(store, &stubAssembler{}, nil, nil, t.TempDir(), nil, nil)

	_, err := o.Generate(context.Background(), lesson.ID)
	require.NoError(t, err)

	got := store.lesson(lesson.ID)
	assert.Equal(t, models.VideoStatusCompleted, got.VideoStatus)
	require.NotNil(t, got.VideoError)
	assert.Empty(t, *got.VideoError)
}

// stubAssembler writes one scratch file and either succeeds, blocks until
// cancelled, or panics.
type stubAssembler struct {
	block     bool
	panicWith string
	started   chan struct{}
}

func (s *stubAssembler) Assemble(ctx context.Context, lesson *models.Lesson, runID uuid.UUID, scratch *services.Scratch) (*models.VideoResult, error) {
	if _, err := scratch.WriteFile("partial.mp4", []byte("x")); err != nil {
		return nil, err
	}
	if s.panicWith != "" {
		panic(s.panicWith)
	}
	if s.block {
		close(s.started)
		<-ctx.Done()
		return nil, errors.Join(errors.New("ffmpeg killed"), ctx.Err())
	}
	return &models.VideoResult{
		VideoURL:         "https://cdn.test/" + lesson.ID.String() + ".mp4",
		VideoStoragePath: "lessons/" + lesson.ID.String() + "/interactive_video_" + runID.String() + ".mp4",
		DurationSeconds:  12,
	}, nil
}
