// Package media provides background loading, slide compositing and video
// joining on top of ffmpeg.
package media

import (
	"context"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slidecast/internal/caption"
)

// Timing and encoding constants shared by every slide.
const (
	// Lead is how long the background shows before the caption appears.
	Lead = 1.0
	// Lag is how long the background stays after the caption leaves.
	Lag = 1.0
	// FPS is the frame rate of every composite.
	FPS = 30
	// DefaultBitrate is the video bitrate used when none is configured.
	DefaultBitrate = "6000k"
)

// Span returns the full length of a slide whose caption lasts dur seconds.
func Span(dur float64) float64 {
	return dur + Lead + Lag
}

// Clip is a video stream that has not been rendered yet, together with the
// duration and frame size it is guaranteed to have once it is.
type Clip struct {
	// Stream is the ffmpeg filter graph producing the clip.
	Stream *ffmpeg.Stream
	// Duration is the clip length in seconds.
	Duration float64
	// Width and Height are the exact frame dimensions.
	Width  int
	Height int
	// Source is the media file the clip was loaded from, empty if generated.
	Source string
}

// Processor defines the media operations used to render a job.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// LoadBackground prepares a background of exactly Span(dur) seconds at
	// w×h from an image or video file. Short videos are looped, long ones cut.
	LoadBackground(ctx context.Context, path string, w, h int, dur float64) (*Clip, error)

	// BlankBackground prepares a plain white background of Span(dur) seconds.
	BlankBackground(w, h int, dur float64) (*Clip, error)

	// ComposeSlide draws the caption over the background, starting Lead
	// seconds in, and encodes the result to output at FPS.
	ComposeSlide(ctx context.Context, bg *Clip, c *caption.Caption, output string) error

	// JoinVideos concatenates multiple video files into a single output file.
	// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
	// with libx264/aac if the copy fails due to incompatible codecs.
	JoinVideos(ctx context.Context, videoPaths []string, output string) error

	// GetMediaDuration returns the duration in seconds of a media file.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
