package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/metrics"
	"github.com/bobarin/lessoncast/internal/models"
)

// ---------------------------------------------------------------------------
// Script Generator
// Turns slide content into a short spoken narration script. Provider
// failures never surface: the caller always gets a usable script.
// ---------------------------------------------------------------------------

const (
	scriptMaxTokens      = 150
	scriptTemperature    = 0.7
	defaultScriptTimeout = 30 * time.Second
)

// TextProvider completes a single prompt.
type TextProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

type ScriptGenerator struct {
	provider TextProvider // nil = fallback scripts only
	timeout  time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewScriptGenerator(provider TextProvider, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *ScriptGenerator {
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ScriptGenerator{
		provider: provider,
		timeout:  timeout,
		log:      log.With("component", "ScriptGenerator"),
		metrics:  m,
	}
}

// Generate returns a narration script for one slide. It never returns an
// empty string.
func (g *ScriptGenerator) Generate(ctx context.Context, content models.SlideContent, kind models.TemplateKind, previousContext string) string {
	if g.provider == nil {
		g.metrics.ScriptFallback()
		return FallbackScript(content, kind)
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := BuildNarrationPrompt(content, kind, previousContext)
	text, err := g.provider.Complete(cctx, prompt, scriptMaxTokens, scriptTemperature)
	if err == nil {
		text = strings.TrimSpace(text)
		if text != "" {
			return text
		}
		err = fmt.Errorf("empty completion")
	}

	g.log.Warn("script generation failed, using fallback",
		"provider", g.provider.Name(), "template", string(kind), "error", err)
	g.metrics.ScriptFallback()
	return FallbackScript(content, kind)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// BuildNarrationPrompt composes the completion prompt for a slide.
func BuildNarrationPrompt(content models.SlideContent, kind models.TemplateKind, previousContext string) string {
	var b strings.Builder

	switch kind {
	case models.TemplateTitle:
		fmt.Fprintf(&b, "Create a concise, engaging introduction (8-10 seconds) for: %q.", orDefault(content.Title(), "Our Lesson"))
		if sub := content.Subtitle(); sub != "" {
			fmt.Fprintf(&b, " Include: %q.", sub)
		} else {
			b.WriteString(" Make it welcoming and set a positive tone.")
		}
	case models.TemplateContent:
		fmt.Fprintf(&b, "Create an educational narration (12-15 seconds) explaining: %q. Key points: %s. Be clear and engaging.",
			orDefault(content.Title(), "this concept"), orDefault(content.Body(), "Important information"))
	case models.TemplateQuiz:
		fmt.Fprintf(&b, "Create a quiz narration (10-12 seconds) for this question: %q.", orDefault(content.Question(), "What do you think?"))
		if opts := content.Options(); len(opts) > 0 {
			fmt.Fprintf(&b, " Options: %s.", strings.Join(opts, ", "))
		}
		b.WriteString(" Sound conversational and encouraging.")
	case models.TemplateInteractive:
		fmt.Fprintf(&b, "Create an interactive guide (8-10 seconds) for: %s. Be engaging and prompt interaction.",
			orDefault(content.Instructions(), "this activity"))
	default:
		raw, _ := json.Marshal(content)
		fmt.Fprintf(&b, "Create a natural narration (10-12 seconds) for: %s. Keep it professional yet engaging.", raw)
	}

	if previousContext = strings.TrimSpace(previousContext); previousContext != "" {
		fmt.Fprintf(&b, " Previous context: %s.", previousContext)
	}
	return b.String()
}

// FallbackScript is the deterministic script used when no provider output is
// available.
func FallbackScript(content models.SlideContent, kind models.TemplateKind) string {
	switch kind {
	case models.TemplateTitle:
		return fmt.Sprintf("Welcome to %s. Let's begin.", orDefault(content.Title(), "our lesson"))
	case models.TemplateContent:
		return fmt.Sprintf("%s. %s", orDefault(content.Title(), "This topic"), orDefault(content.Body(), "Important information."))
	case models.TemplateQuiz:
		return fmt.Sprintf("Question: %s. Consider your answer.", orDefault(content.Question(), "What do you think?"))
	default:
		return "Let's continue with this content."
	}
}
