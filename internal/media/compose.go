package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slidecast/internal/caption"
)

// CaptionFile returns where the caption text for output is written.
func CaptionFile(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".txt"
}

// ComposeSlide draws c over bg starting Lead seconds in, forces FPS and cuts
// the composite to the background's duration. An empty caption leaves the
// background bare.
func (p *FFmpegProcessor) ComposeSlide(ctx context.Context, bg *Clip, c *caption.Caption, output string) error {
	stream, err := p.composite(bg, c, output)
	if err != nil {
		return err
	}
	if !c.Empty() {
		if err := os.WriteFile(CaptionFile(output), []byte(c.Text()), 0600); err != nil {
			return fmt.Errorf("write caption text: %w", err)
		}
	}
	return p.run(ctx, stream)
}

// composite builds the slide's output stream without running it.
func (p *FFmpegProcessor) composite(bg *Clip, c *caption.Caption, output string) (*ffmpeg.Stream, error) {
	if bg == nil || bg.Stream == nil {
		return nil, ErrNilClip
	}

	stream := bg.Stream
	if !c.Empty() {
		stream = stream.Filter("drawtext", ffmpeg.Args{}, c.DrawTextArgs(Lead, CaptionFile(output)))
	}
	stream = stream.
		Filter("fps", ffmpeg.Args{strconv.Itoa(FPS)}).
		Filter("trim", ffmpeg.Args{}, ffmpeg.KwArgs{"duration": seconds(bg.Duration)}).
		Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"})

	return stream.Output(output, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"b:v":      p.bitrate,
		"pix_fmt":  "yuv420p",
		"r":        FPS,
		"movflags": "+faststart",
	}), nil
}
