package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobarin/lessoncast/internal/services"
)

func TestSlideErrorMessage(t *testing.T) {
	err := &SlideError{Slide: 2, Stage: StageNarration, Err: &services.SynthesisError{Provider: "elevenlabs", Err: errors.New("status 503")}}
	assert.Equal(t, "slide 2 narration failed: elevenlabs speech synthesis failed: status 503", err.Error())
}

func TestQuotaClassification(t *testing.T) {
	err := fmt.Errorf("assemble: %w", &SlideError{Slide: 1, Stage: StageNarration, Err: &services.QuotaError{Needed: 40, Limit: 10}})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var qe *services.QuotaError
	assert.ErrorAs(t, err, &qe)
	assert.Equal(t, 40, qe.Needed)
}

func TestErrorDetailChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", &SlideError{Slide: 3, Stage: StageFrame, Err: errors.New("disk full")})
	detail := ErrorDetail(err)
	assert.Contains(t, detail, "*fmt.wrapError")
	assert.Contains(t, detail, "*pipeline.SlideError")
	assert.Contains(t, detail, "disk full")
	assert.Empty(t, ErrorDetail(nil))
}
