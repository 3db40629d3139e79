package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/services"
)

// fakeScripts echoes the slide title and remembers the context it was given.
type fakeScripts struct {
	mu       sync.Mutex
	contexts []string
}

func (f *fakeScripts) Generate(_ context.Context, content models.SlideContent, _ models.TemplateKind, previousContext string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, previousContext)
	return "Narration about " + content.ContextSummary() + "."
}

// fakeNarrator returns mock narrations with scripted durations. With store
// set it also uploads each track the way the real synthesizer does.
type fakeNarrator struct {
	mu        sync.Mutex
	durations []float64
	requests  []services.SpeechRequest
	failSlide int
	onCall    func(n int)
	store     *fakeObjects
}

func (f *fakeNarrator) Synthesize(_ context.Context, req services.SpeechRequest) (*services.Narration, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if f.failSlide == req.SlideNumber {
		return nil, errors.New("provider exploded")
	}
	d := 3.0
	if n-1 < len(f.durations) {
		d = f.durations[n-1]
	}
	out := &services.Narration{
		Script:          req.Script,
		Audio:           services.SilentWAV(0.1),
		Format:          "wav",
		DurationSeconds: d,
		IsMock:          true,
	}
	if f.store != nil {
		path := fmt.Sprintf("%s/narration/slide_%d_%s.wav", req.StoragePrefix, req.SlideNumber, uuid.New())
		if err := f.store.Upload(context.Background(), path, out.Audio, "audio/wav"); err == nil {
			out.StoragePath = path
		}
	}
	return out, nil
}

type fakeFrames struct{}

func (fakeFrames) Render(slide models.Slide, _ models.VideoSettings, path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("frame %d", slide.Position)), 0o644)
}

// fakeEncoder writes placeholder outputs and records what it was handed.
type fakeEncoder struct {
	mu            sync.Mutex
	segments      []services.AudioSegment
	mux           *services.MuxRequest
	frameHashes   []string
	inputsExisted bool
	probe         float64
	muxErr        error
}

func (f *fakeEncoder) ConcatAudio(_ context.Context, segments []services.AudioSegment, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = segments
	f.inputsExisted = true
	for _, s := range segments {
		if _, err := os.Stat(s.Path); err != nil {
			f.inputsExisted = false
		}
	}
	return os.WriteFile(outputPath, []byte("audio"), 0o644)
}

func (f *fakeEncoder) Mux(_ context.Context, req services.MuxRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mux = &req
	if f.muxErr != nil {
		return f.muxErr
	}
	f.frameHashes = nil
	for _, fr := range req.Frames {
		data, err := os.ReadFile(fr.Path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		f.frameHashes = append(f.frameHashes, hex.EncodeToString(sum[:]))
	}
	if err := os.WriteFile(req.ManifestPath, []byte("ffconcat version 1.0\n"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("not really an mp4"), 0o644)
}

func (f *fakeEncoder) Thumbnail(_ context.Context, framePath, outputPath string) error {
	data, err := os.ReadFile(framePath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

func (f *fakeEncoder) ProbeDuration(context.Context, string) (float64, error) {
	if f.probe > 0 {
		return f.probe, nil
	}
	return 0, errors.New("ffprobe unavailable")
}

// fakeObjects is an in-memory ObjectStore.
type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
	failMatch string // uploads to paths containing it fail
}

func newFakeObjects() *fakeObjects { return &fakeObjects{objects: map[string][]byte{}} }

func (f *fakeObjects) Upload(_ context.Context, path string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if f.failMatch != "" && strings.Contains(path, f.failMatch) {
		return fmt.Errorf("upload %s refused", path)
	}
	f.objects[path] = data
	return nil
}

func (f *fakeObjects) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return f.Upload(ctx, storagePath, data, contentType)
}

func (f *fakeObjects) GetPublicURL(path string) string { return "https://cdn.test/" + path }

func (f *fakeObjects) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	delete(f.objects, path)
	return nil
}

func (f *fakeObjects) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

// fakeLessonStore keeps lessons in memory and applies patches in order.
type fakeLessonStore struct {
	mu           sync.Mutex
	lessons      map[uuid.UUID]*models.Lesson
	patches      []models.LessonPatch
	completedErr error
}

func newFakeLessonStore(lessons ...*models.Lesson) *fakeLessonStore {
	s := &fakeLessonStore{lessons: map[uuid.UUID]*models.Lesson{}}
	for _, l := range lessons {
		s.lessons[l.ID] = l
	}
	return s
}

func (s *fakeLessonStore) GetLesson(_ context.Context, id uuid.UUID) (*models.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, models.ErrLessonNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeLessonStore) PatchLesson(_ context.Context, id uuid.UUID, patch models.LessonPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lessons[id]
	if !ok {
		return models.ErrLessonNotFound
	}
	if s.completedErr != nil && patch.VideoStatus != nil && *patch.VideoStatus == models.VideoStatusCompleted {
		return s.completedErr
	}
	patch.Apply(l)
	s.patches = append(s.patches, patch)
	return nil
}

func (s *fakeLessonStore) lesson(id uuid.UUID) models.Lesson {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lessons[id]
}

// threeSlideLesson has audio durations 4, 10 and 6 under fakeNarrator and
// cues at 5 s into slide 2 and 2 s into slide 3.
func threeSlideLesson() *models.Lesson {
	return &models.Lesson{
		ID:    uuid.New(),
		Title: "Photosynthesis",
		Slides: models.Slides{
			{
				Position:        1,
				Template:        models.TemplateTitle,
				Content:         models.SlideContent{"title": "Photosynthesis"},
				NarrationScript: "Today we study how plants make food.",
			},
			{
				Position: 2,
				Template: models.TemplateContent,
				Content:  models.SlideContent{"title": "Chlorophyll", "content": "Chlorophyll absorbs light."},
				Interactions: []models.Interaction{
					{Kind: models.InteractionMultipleChoice, TriggerTime: 5, Config: models.JSONB{"question": "What absorbs light?"}},
				},
			},
			{
				Position: 3,
				Template: models.TemplateQuiz,
				Content:  models.SlideContent{"question": "Do plants need light?"},
				Interactions: []models.Interaction{
					{Kind: models.InteractionTrueFalse, TriggerTime: 2},
				},
			},
		},
	}
}
