// Package caption lays out and animates the boxed caption panel drawn over
// every slide. Text is wrapped with real glyph advances so the panel sized
// here matches what ffmpeg's drawtext rasterizes from the same font file.
package caption

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slidecast/internal/slide"
)

// Layout constants, in pixels.
const (
	// Padding surrounds the text inside the panel on every side.
	Padding = 40
	// RestX is the panel's left edge once it has slid in.
	RestX = 40
	// SlideInPx is how far left of RestX the panel starts and ends.
	SlideInPx = 80
	// BottomMargin is measured from the text height, not the panel height.
	// The panel's padding pushes it 2*Padding into the margin.
	BottomMargin = 180

	// TitleFontSize is used for title slides.
	TitleFontSize = 70
	// BodyFontSize is used for body slides.
	BodyFontSize = 58

	maxPhase = 0.4
)

// Static errors for caption layout.
var (
	// ErrInvalidFrame is returned when the frame dimensions are not positive.
	ErrInvalidFrame = errors.New("invalid frame: width and height must be positive")
	// ErrInvalidDuration is returned when the duration is negative.
	ErrInvalidDuration = errors.New("invalid duration: must not be negative")
)

// FontSize returns the font size for a role.
func FontSize(role slide.Role) int {
	if role == slide.RoleTitle {
		return TitleFontSize
	}
	return BodyFontSize
}

// Caption is a laid-out caption panel for one slide.
type Caption struct {
	// Lines is the wrapped text, left aligned.
	Lines []string
	// FontSize is the pixel size used for measuring and drawing.
	FontSize int
	// FontFile is the font ffmpeg rasterizes with.
	FontFile string
	// Duration is the caption's visible time in seconds.
	Duration float64

	TextWidth   int
	TextHeight  int
	PanelWidth  int
	PanelHeight int

	FrameWidth  int
	FrameHeight int
}

// Empty reports whether there is nothing to draw.
func (c *Caption) Empty() bool {
	return c == nil || len(c.Lines) == 0
}

// Text returns the wrapped text as drawtext expects it in a textfile.
func (c *Caption) Text() string {
	return strings.Join(c.Lines, "\n")
}

// PanelTop is the y coordinate of the panel's top edge.
func (c *Caption) PanelTop() int {
	return c.FrameHeight - c.TextHeight - BottomMargin
}

// phase is the length of the entry and exit animations.
func (c *Caption) phase() float64 {
	return math.Min(maxPhase, c.Duration/4)
}

// OffsetAt returns the panel's left edge at caption-local time t.
func (c *Caption) OffsetAt(t float64) int {
	e := c.phase()
	if e <= 0 {
		return RestX
	}
	exitAt := c.Duration - e
	switch {
	case t < e:
		remaining := 1 - t/e
		return RestX + int(-SlideInPx*remaining*remaining)
	case t > exitAt:
		prog := (t - exitAt) / e
		return RestX + int(-SlideInPx*prog*prog)
	default:
		return RestX
	}
}

// DrawTextArgs returns drawtext options that draw the caption starting at
// start seconds of the composite timeline. The x expression is OffsetAt
// shifted by start and moved right by Padding, since drawtext positions the
// text and the box border grows outwards from it.
func (c *Caption) DrawTextArgs(start float64, textFile string) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"fontfile":   c.FontFile,
		"textfile":   textFile,
		"expansion":  "none",
		"fontsize":   c.FontSize,
		"fontcolor":  "black",
		"box":        1,
		"boxcolor":   "white",
		"boxborderw": Padding,
		"x":          c.xExpr(start),
		"y":          c.PanelTop() + Padding,
		"enable":     fmt.Sprintf("between(t,%s,%s)", num(start), num(start+c.Duration)),
	}
}

func (c *Caption) xExpr(start float64) string {
	rest := strconv.Itoa(RestX + Padding)
	e := c.phase()
	if e <= 0 {
		return rest
	}
	exitAt := start + c.Duration - e
	entry := fmt.Sprintf("%s+trunc(-%d*pow(1-(t-%s)/%s,2))", rest, SlideInPx, num(start), num(e))
	exit := fmt.Sprintf("%s+trunc(-%d*pow((t-%s)/%s,2))", rest, SlideInPx, num(exitAt), num(e))
	return fmt.Sprintf("if(lt(t,%s),%s,if(gt(t,%s),%s,%s))", num(start+e), entry, num(exitAt), exit, rest)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
