package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bobarin/lessoncast/internal/models"
	"github.com/bobarin/lessoncast/internal/services"
)

var (
	ErrLessonNotFound     = models.ErrLessonNotFound
	ErrGenerationInFlight = errors.New("video generation already in progress for this lesson")
	ErrNoSlides           = errors.New("lesson has no slides")
	ErrCancelled          = errors.New("generation cancelled")

	// re-exported so callers classify pipeline errors from one package
	ErrQuotaExceeded = services.ErrQuotaExceeded
)

// Stage names the per-slide step that failed.
type Stage string

const (
	StageNarration Stage = "narration"
	StageAudio     Stage = "audio"
	StageFrame     Stage = "frame"
)

// SlideError aborts an assembly and names the offending slide (1-based).
type SlideError struct {
	Slide int
	Stage Stage
	Err   error
}

func (e *SlideError) Error() string {
	return fmt.Sprintf("slide %d %s failed: %v", e.Slide, e.Stage, e.Err)
}

func (e *SlideError) Unwrap() error { return e.Err }

// ErrorDetail renders the wrap chain of err, outermost first, one per line.
func ErrorDetail(err error) string {
	var lines []string
	for err != nil {
		lines = append(lines, fmt.Sprintf("%T: %v", err, err))
		err = errors.Unwrap(err)
	}
	return strings.Join(lines, "\n")
}
