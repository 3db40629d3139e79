package services

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/bobarin/lessoncast/internal/models"
)

// ---------------------------------------------------------------------------
// Frame Renderer
// Draws one still frame per slide. Fonts are the embedded Go fonts, so the
// output depends only on the slide and the video settings.
// ---------------------------------------------------------------------------

const (
	frameLongEdge  = 1280
	frameShortEdge = 720
	frameMargin    = 64

	defaultTextHex   = "#ecf0f1"
	defaultAccentHex = "#f39c12"
)

var hexColorRe = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

type frameTheme struct {
	background string
	accent     string
}

func themeFor(kind models.TemplateKind) frameTheme {
	switch kind {
	case models.TemplateTitle:
		return frameTheme{background: "#2c3e50", accent: defaultAccentHex}
	case models.TemplateContent:
		return frameTheme{background: "#1f3a4d", accent: "#3498db"}
	case models.TemplateQuiz:
		return frameTheme{background: "#3b2c50", accent: "#9b59b6"}
	case models.TemplateInteractive:
		return frameTheme{background: "#1e4d3a", accent: "#2ecc71"}
	default:
		return frameTheme{background: "#2c3e50", accent: defaultAccentHex}
	}
}

type FrameRenderer struct {
	regular *truetype.Font
	bold    *truetype.Font
}

func NewFrameRenderer() (*FrameRenderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &FrameRenderer{regular: regular, bold: bold}, nil
}

// FrameSize is the canvas size for the given settings.
func FrameSize(settings models.VideoSettings) (int, int) {
	if settings.Portrait() {
		return frameShortEdge, frameLongEdge
	}
	return frameLongEdge, frameShortEdge
}

func newFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Render writes the slide's PNG frame to path.
func (r *FrameRenderer) Render(slide models.Slide, settings models.VideoSettings, path string) error {
	data, err := r.RenderPNG(slide, settings)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// RenderPNG draws the slide and returns the encoded PNG.
func (r *FrameRenderer) RenderPNG(slide models.Slide, settings models.VideoSettings) ([]byte, error) {
	w, h := FrameSize(settings)
	fw, fh := float64(w), float64(h)
	textWidth := fw - 2*frameMargin

	theme := themeFor(slide.Template)
	bg := theme.background
	if custom := slide.Content.Background(); hexColorRe.MatchString(custom) {
		bg = "#" + strings.TrimPrefix(custom, "#")
	}

	dc := gg.NewContext(w, h)
	dc.SetHexColor(bg)
	dc.Clear()

	// accent bar
	dc.SetHexColor(theme.accent)
	dc.DrawRectangle(0, 0, fw, 12)
	dc.Fill()

	titleSize, bodySize := 56.0, 32.0
	if settings.Portrait() {
		titleSize, bodySize = 48.0, 30.0
	}

	title, body := frameText(slide)

	dc.SetHexColor(defaultTextHex)
	if slide.Template == models.TemplateTitle {
		dc.SetFontFace(newFace(r.bold, titleSize*1.25))
		dc.DrawStringWrapped(title, fw/2, fh*0.42, 0.5, 0.5, textWidth, 1.3, gg.AlignCenter)
		if body != "" {
			dc.SetFontFace(newFace(r.regular, bodySize))
			dc.DrawStringWrapped(body, fw/2, fh*0.62, 0.5, 0, textWidth, 1.4, gg.AlignCenter)
		}
	} else {
		y := float64(frameMargin) + 24
		if title != "" {
			dc.SetFontFace(newFace(r.bold, titleSize))
			lines := dc.WordWrap(title, textWidth)
			dc.DrawStringWrapped(title, frameMargin, y, 0, 0, textWidth, 1.3, gg.AlignLeft)
			y += float64(len(lines))*titleSize*1.3 + 32
		}
		if body != "" {
			dc.SetFontFace(newFace(r.regular, bodySize))
			dc.DrawStringWrapped(body, frameMargin, y, 0, 0, textWidth, 1.5, gg.AlignLeft)
		}
	}

	// footer
	dc.SetFontFace(newFace(r.regular, 20))
	dc.SetHexColor("#95a5a6")
	dc.DrawStringAnchored(fmt.Sprintf("Slide %d", slide.Position), fw-frameMargin, fh-32, 1, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// frameText picks the heading and body lines drawn for a slide.
func frameText(slide models.Slide) (string, string) {
	c := slide.Content
	switch slide.Template {
	case models.TemplateTitle:
		return orDefault(c.Title(), "Our Lesson"), c.Subtitle()
	case models.TemplateContent:
		return c.Title(), c.Body()
	case models.TemplateQuiz:
		var b strings.Builder
		b.WriteString(orDefault(c.Question(), "What do you think?"))
		for i, opt := range c.Options() {
			fmt.Fprintf(&b, "\n%c. %s", 'A'+rune(i%26), opt)
		}
		return orDefault(c.Title(), "Quiz"), b.String()
	case models.TemplateInteractive:
		return orDefault(c.Title(), "Your turn"), orDefault(c.Instructions(), c.Body())
	default:
		return c.Title(), c.Body()
	}
}
