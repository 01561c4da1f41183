package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrNoVideoPaths is returned when no video paths are provided for joining.
	ErrNoVideoPaths = errors.New("no video paths provided")
	// ErrInvalidDuration is returned when duration is negative.
	ErrInvalidDuration = errors.New("invalid duration: must not be negative")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoDuration is returned when ffprobe reports no usable duration.
	ErrNoDuration = errors.New("media has no duration")
	// ErrNilClip is returned when a slide is composed without a background.
	ErrNilClip = errors.New("background clip is required")
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// bitrate is the target video bitrate for slide encodes.
	bitrate string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithBitrate sets the video bitrate, e.g. "6000k".
func WithBitrate(bitrate string) Option {
	return func(p *FFmpegProcessor) {
		if bitrate != "" {
			p.bitrate = bitrate
		}
	}
}

// WithFFprobePath sets the ffprobe binary used to read media durations.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{ffmpegPath: ffmpegPath, bitrate: DefaultBitrate, ffprobePath: DefaultFFprobePath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// JoinVideos concatenates multiple video files into a single output file.
// It first attempts a fast copy (no re-encoding) and falls back to re-encoding
// with libx264/aac if the copy fails.
func (p *FFmpegProcessor) JoinVideos(ctx context.Context, videoPaths []string, output string) error {
	if len(videoPaths) == 0 {
		return ErrNoVideoPaths
	}

	if len(videoPaths) == 1 {
		return copyFile(videoPaths[0], output)
	}

	listFile, err := createConcatList(filepath.Dir(output), videoPaths)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	err = p.run(ctx, concatInput(listFile).Output(output, ffmpeg.KwArgs{"c": "copy"}))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	return p.run(ctx, concatInput(listFile).Output(output, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"b:v":     p.bitrate,
		"pix_fmt": "yuv420p",
		"r":       FPS,
		"c:a":     "aac",
	}))
}

func concatInput(listFile string) *ffmpeg.Stream {
	return ffmpeg.Input(listFile, ffmpeg.KwArgs{"f": "concat", "safe": 0})
}

// createConcatList writes the list of video files in the format required by
// ffmpeg's concat demuxer.
func createConcatList(dir string, videoPaths []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range videoPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// copyFile streams src into dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to destination file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination file: %w", err)
	}
	return nil
}

// run compiles an ffmpeg-go output stream to arguments and executes them.
func (p *FFmpegProcessor) run(ctx context.Context, out *ffmpeg.Stream) error {
	return RunFFmpeg(ctx, p.ffmpegPath, out.OverWriteOutput().GetArgs())
}

// RunFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func RunFFmpeg(ctx context.Context, ffmpegPath string, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// MediaInfo is the subset of ffprobe output the renderer relies on.
type MediaInfo struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Duration parses the container duration in seconds.
func (i *MediaInfo) Duration() (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(i.Format.Duration), 64)
	if err != nil || d <= 0 {
		return 0, ErrNoDuration
	}
	return d, nil
}

// HasStream reports whether the file carries a stream of the given codec
// type ("video" or "audio").
func (i *MediaInfo) HasStream(codecType string) bool {
	for _, s := range i.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// DefaultFFprobePath is the ffprobe binary looked up on PATH.
const DefaultFFprobePath = "ffprobe"

// Inspect runs the ffprobe found on PATH on path.
func Inspect(ctx context.Context, path string) (*MediaInfo, error) {
	return InspectWith(ctx, DefaultFFprobePath, path)
}

// InspectWith runs the ffprobe binary at ffprobePath on path. The process is
// killed when ctx is done.
func InspectWith(ctx context.Context, ffprobePath, path string) (*MediaInfo, error) {
	if ffprobePath == "" {
		ffprobePath = DefaultFFprobePath
	}
	args := ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
		"show_format":  "",
		"show_streams": "",
		"of":           "json",
	})
	args = append(args, path)

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	var info MediaInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &info, nil
}

// GetMediaDuration returns the duration in seconds of a media file.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	info, err := InspectWith(ctx, p.ffprobePath, path)
	if err != nil {
		return 0, err
	}
	return info.Duration()
}
