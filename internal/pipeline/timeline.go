package pipeline

import (
	"sort"

	"github.com/bobarin/lessoncast/internal/models"
)

// cueEpsilon keeps clamped cues strictly inside their slide.
const cueEpsilon = 0.5

// slideCues places a slide's interactions on the absolute timeline. start is
// the cumulative duration before the slide. Offsets outside [0, duration) are
// clamped; the number of clamped cues is returned for logging.
func slideCues(slide models.Slide, start, duration float64) ([]models.Cue, int) {
	if len(slide.Interactions) == 0 {
		return nil, 0
	}

	latest := duration - cueEpsilon
	if latest < 0 {
		latest = 0
	}

	cues := make([]models.Cue, 0, len(slide.Interactions))
	clamped := 0
	for _, in := range slide.Interactions {
		offset := in.TriggerTime
		switch {
		case offset < 0:
			offset = 0
			clamped++
		case offset >= duration:
			offset = latest
			clamped++
		}
		cues = append(cues, models.Cue{
			SlideNumber: slide.Position,
			TriggerTime: start + offset,
			Kind:        in.Kind,
			Config:      in.Config,
			Position:    in.Position,
		})
	}
	// clamping can reorder cues that sat just before the slide end
	sort.SliceStable(cues, func(i, j int) bool {
		return cues[i].TriggerTime < cues[j].TriggerTime
	})
	return cues, clamped
}
