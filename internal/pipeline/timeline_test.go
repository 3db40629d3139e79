package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/lessoncast/internal/models"
)

func TestSlideCuesOffsets(t *testing.T) {
	slide := models.Slide{
		Position: 3,
		Interactions: []models.Interaction{
			{Kind: models.InteractionTrueFalse, TriggerTime: 2, Position: models.JSONB{"x": 0.5}},
		},
	}

	cues, clamped := slideCues(slide, 14, 6)
	require.Len(t, cues, 1)
	assert.Equal(t, 0, clamped)
	assert.Equal(t, 16.0, cues[0].TriggerTime)
	assert.Equal(t, 3, cues[0].SlideNumber)
	assert.Equal(t, 0.5, cues[0].Position["x"])
}

func TestSlideCuesClamp(t *testing.T) {
	slide := models.Slide{
		Position: 1,
		Interactions: []models.Interaction{
			{Kind: models.InteractionReflection, TriggerTime: 30},
			{Kind: models.InteractionReflection, TriggerTime: 9.8},
			{Kind: models.InteractionReflection, TriggerTime: -2},
		},
	}

	cues, clamped := slideCues(slide, 10, 10)
	require.Len(t, cues, 3)
	assert.Equal(t, 2, clamped)
	assert.Equal(t, []float64{10, 19.5, 19.8}, []float64{cues[0].TriggerTime, cues[1].TriggerTime, cues[2].TriggerTime})
	for _, c := range cues {
		assert.GreaterOrEqual(t, c.TriggerTime, 10.0)
		assert.Less(t, c.TriggerTime, 20.0)
	}
}

func TestSlideCuesNone(t *testing.T) {
	cues, clamped := slideCues(models.Slide{Position: 1}, 0, 5)
	assert.Nil(t, cues)
	assert.Zero(t, clamped)
}
