package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// videoExts are the extensions loaded as moving backgrounds. Anything else
// is treated as a still image.
var videoExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
	".avi": true,
	".m4v": true,
}

// IsVideo reports whether path is loaded as a video background.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// LoopCount returns how many whole copies of a srcDur-long video are needed
// to cover total seconds. Very short sources count as 0.1s.
func LoopCount(srcDur, total float64) int {
	return max(1, int(math.Ceil(total/math.Max(0.1, srcDur))))
}

// LoadBackground prepares a background of exactly Span(dur) seconds at w×h.
// Videos longer than the span are cut; shorter ones are looped as whole
// copies and then cut. Stills are held for the whole span. Either way the
// frame is first scaled to width w keeping aspect, then forced to w×h.
func (p *FFmpegProcessor) LoadBackground(ctx context.Context, path string, w, h int, dur float64) (*Clip, error) {
	if err := validateFrame(w, h, dur); err != nil {
		return nil, err
	}
	total := Span(dur)

	var input *ffmpeg.Stream
	if IsVideo(path) {
		srcDur, err := p.GetMediaDuration(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("read background %s: %w", filepath.Base(path), err)
		}
		kwargs := ffmpeg.KwArgs{"t": seconds(total)}
		if loops := LoopCount(srcDur, total); srcDur < total {
			kwargs["stream_loop"] = loops - 1
		}
		input = ffmpeg.Input(path, kwargs)
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open background %s: %w", filepath.Base(path), err)
		}
		input = ffmpeg.Input(path, ffmpeg.KwArgs{"loop": 1, "t": seconds(total)})
	}

	stream := input.
		Filter("scale", ffmpeg.Args{strconv.Itoa(w), "-2"}).
		Filter("scale", ffmpeg.Args{strconv.Itoa(w), strconv.Itoa(h)}).
		Filter("setsar", ffmpeg.Args{"1"})

	return &Clip{
		Stream:   stream,
		Duration: total,
		Width:    w,
		Height:   h,
		Source:   path,
	}, nil
}

// BlankBackground prepares a plain white background of Span(dur) seconds.
func (p *FFmpegProcessor) BlankBackground(w, h int, dur float64) (*Clip, error) {
	if err := validateFrame(w, h, dur); err != nil {
		return nil, err
	}
	total := Span(dur)
	src := fmt.Sprintf("color=c=white:s=%dx%d:r=%d:d=%s", w, h, FPS, seconds(total))
	return &Clip{
		Stream:   ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi"}),
		Duration: total,
		Width:    w,
		Height:   h,
	}, nil
}

func validateFrame(w, h int, dur float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, w, h)
	}
	if dur < 0 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidDuration, dur)
	}
	return nil
}

// seconds formats a duration for ffmpeg with millisecond precision.
func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
