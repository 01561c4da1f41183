package caption

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/maauso/slidecast/internal/slide"
)

// DefaultFontName is the file the embedded Go Bold font is written to.
const DefaultFontName = "GoBold.ttf"

// Renderer lays out captions with a single font.
type Renderer struct {
	font     *opentype.Font
	fontFile string
}

// NewRenderer parses the font at fontPath. If fontPath is empty, the embedded
// Go Bold font is written into dir and used instead, so ffmpeg can load the
// same glyphs that were measured.
func NewRenderer(fontPath, dir string) (*Renderer, error) {
	var data []byte
	if fontPath == "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create font directory: %w", err)
		}
		fontPath = filepath.Join(dir, DefaultFontName)
		if err := os.WriteFile(fontPath, gobold.TTF, 0600); err != nil {
			return nil, fmt.Errorf("write default font: %w", err)
		}
		data = gobold.TTF
	} else {
		b, err := os.ReadFile(fontPath) // #nosec G304 - font path comes from configuration
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", fontPath, err)
	}
	return &Renderer{font: f, fontFile: fontPath}, nil
}

// FontFile returns the path of the font handed to ffmpeg.
func (r *Renderer) FontFile() string {
	return r.fontFile
}

// Render lays out text for a w×h frame. Text wraps at w minus the panel
// padding on both sides; the panel hugs the wrapped block.
func (r *Renderer) Render(text string, role slide.Role, w, h int, dur float64) (*Caption, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidFrame, w, h)
	}
	if dur < 0 {
		return nil, fmt.Errorf("%w: got %.2f", ErrInvalidDuration, dur)
	}

	size := FontSize(role)
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	defer func() { _ = face.Close() }()

	lines := wrap(face, text, w-2*Padding)

	textWidth := 0
	for _, line := range lines {
		textWidth = max(textWidth, font.MeasureString(face, line).Ceil())
	}
	textHeight := len(lines) * face.Metrics().Height.Ceil()

	return &Caption{
		Lines:       lines,
		FontSize:    size,
		FontFile:    r.fontFile,
		Duration:    dur,
		TextWidth:   textWidth,
		TextHeight:  textHeight,
		PanelWidth:  textWidth + 2*Padding,
		PanelHeight: textHeight + 2*Padding,
		FrameWidth:  w,
		FrameHeight: h,
	}, nil
}

// wrap greedily fills lines up to maxWidth pixels. Words wider than a whole
// line are broken between runes.
func wrap(face font.Face, text string, maxWidth int) []string {
	limit := fixed.I(maxWidth)
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		for _, part := range breakWord(face, word, limit) {
			candidate := part
			if line != "" {
				candidate = line + " " + part
			}
			if line != "" && font.MeasureString(face, candidate) > limit {
				lines = append(lines, line)
				line = part
				continue
			}
			line = candidate
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func breakWord(face font.Face, word string, limit fixed.Int26_6) []string {
	if font.MeasureString(face, word) <= limit {
		return []string{word}
	}
	var parts []string
	var cur []rune
	for _, r := range word {
		next := append(cur, r)
		if len(cur) > 0 && font.MeasureString(face, string(next)) > limit {
			parts = append(parts, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}
