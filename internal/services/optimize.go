package services

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/lessoncast/internal/models"
)

const (
	// DefaultMaxScriptChars caps every script sent to the speech provider.
	DefaultMaxScriptChars = 500
	minScriptChars        = 20
	shortScriptFallback   = "Continue with this important content."

	wordsPerMinute  = 150
	minSlideSeconds = 3
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	repeatPunctRe = regexp.MustCompile(`([.!?])(?:\s*[.!?])+`)

	titleFillerRe   = regexp.MustCompile(`(?i)\b(?:welcome to|let's get started|in this lesson)\b`)
	contentFillerRe = regexp.MustCompile(`(?i)\b(?:let's explore|now we'll learn|important to note)\b`)
	quizFillerRe    = regexp.MustCompile(`(?i)\b(?:question:|options:)|\bconsider your answer\b`)
)

func fillerPattern(kind models.TemplateKind) *regexp.Regexp {
	switch kind {
	case models.TemplateTitle:
		return titleFillerRe
	case models.TemplateContent:
		return contentFillerRe
	case models.TemplateQuiz:
		return quizFillerRe
	default:
		return nil
	}
}

// OptimizeScript normalizes a narration script for speech synthesis using the
// default length cap. OptimizeScript(OptimizeScript(s, k), k) == OptimizeScript(s, k).
func OptimizeScript(script string, kind models.TemplateKind) string {
	return OptimizeScriptLimit(script, kind, DefaultMaxScriptChars)
}

// OptimizeScriptLimit is OptimizeScript with an explicit rune cap.
func OptimizeScriptLimit(script string, kind models.TemplateKind, maxRunes int) string {
	if maxRunes < minScriptChars*2 {
		maxRunes = DefaultMaxScriptChars
	}
	// Past the first pass the text only shrinks or settles on the fallback,
	// so running to a fixed point terminates.
	out := optimizePass(script, kind, maxRunes)
	for {
		next := optimizePass(out, kind, maxRunes)
		if next == out {
			return out
		}
		out = next
	}
}

func optimizePass(s string, kind models.TemplateKind, maxRunes int) string {
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ",", ".")
	s = repeatPunctRe.ReplaceAllString(s, "$1")
	if re := fillerPattern(kind); re != nil {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))

	if utf8.RuneCountInString(s) < minScriptChars {
		return shortScriptFallback
	}
	if utf8.RuneCountInString(s) > maxRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxRunes]))
	}
	return s
}

// EstimateDuration is the spoken length of text at 150 words per minute,
// rounded up to whole seconds, never below 3.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	secs := math.Ceil(float64(words*60) / wordsPerMinute)
	if secs < minSlideSeconds {
		return minSlideSeconds
	}
	return secs
}
