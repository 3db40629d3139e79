package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
)

func TestBuildLessonPatchOnlyNonNil(t *testing.T) {
	id := uuid.New()
	status := models.VideoStatusFailed
	msg := "slide 2 narration failed"

	query, args := buildLessonPatch(id, models.LessonPatch{VideoStatus: &status, VideoError: &msg})

	assert.Equal(t, `UPDATE lessons SET "video_status" = $1, "video_error" = $2, updated_at = NOW() WHERE id = $3`, query)
	require.Len(t, args, 3)
	assert.Equal(t, "failed", args[0])
	assert.Equal(t, msg, args[1])
	assert.Equal(t, id, args[2])
}

func TestBuildLessonPatchCompleted(t *testing.T) {
	status := models.VideoStatusCompleted
	url := "https://cdn.test/v.mp4"
	dur := 20.0
	size := int64(1024)
	now := time.Now()
	timeline := models.Timeline{{SlideNumber: 2, TriggerTime: 9}}

	query, args := buildLessonPatch(uuid.New(), models.LessonPatch{
		VideoStatus:          &status,
		VideoURL:             &url,
		DurationSeconds:      &dur,
		FileSize:             &size,
		InteractionsTimeline: &timeline,
		VideoGeneratedAt:     &now,
	})

	assert.Contains(t, query, `"interactions_timeline" = $5`)
	assert.Contains(t, query, "WHERE id = $7")
	require.Len(t, args, 7)
	// JSON columns are passed as driver.Valuer types
	assert.IsType(t, models.Timeline{}, args[4])
}
