// Package audio loads background music and lays it under a rendered video.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slidecast/internal/media"
)

// DefaultVolume is the gain applied to background music.
const DefaultVolume = 0.3

var (
	// ErrNoMusic is the reason carried by a Track when no music was supplied.
	ErrNoMusic = errors.New("no music supplied")
	// ErrNoAudioStream is returned when the music file has no audio stream.
	ErrNoAudioStream = errors.New("music file has no audio stream")
	// ErrTrackUnavailable is returned by Mix when given a track that did not load.
	ErrTrackUnavailable = errors.New("music track unavailable")
)

// Track is the outcome of loading a music file. A track either carries a
// usable duration or the reason it cannot be used.
type Track struct {
	Path     string
	Duration float64
	Err      error
}

// Available reports whether the track can be mixed.
func (t Track) Available() bool {
	return t.Err == nil && t.Path != "" && t.Duration > 0
}

// Mixer loads music and mixes it under a video.
type Mixer interface {
	// Load inspects path. It never fails outright; problems are reported in
	// the returned Track.
	Load(ctx context.Context, path string) Track

	// Mix writes output: the video stream of videoPath copied as is, and the
	// track looped or cut to duration seconds, scaled by the mixer volume.
	Mix(ctx context.Context, videoPath string, track Track, duration float64, output string) error
}

// FFmpegMixer implements Mixer using the ffmpeg CLI.
type FFmpegMixer struct {
	ffmpegPath  string
	ffprobePath string
	volume      float64
}

var _ Mixer = (*FFmpegMixer)(nil)

// Option configures an FFmpegMixer.
type Option func(*FFmpegMixer)

// WithVolume sets the music gain. Non-positive values are ignored.
func WithVolume(v float64) Option {
	return func(m *FFmpegMixer) {
		if v > 0 {
			m.volume = v
		}
	}
}

// WithFFprobePath sets the ffprobe binary used to read music tracks.
func WithFFprobePath(path string) Option {
	return func(m *FFmpegMixer) {
		if path != "" {
			m.ffprobePath = path
		}
	}
}

// NewFFmpegMixer creates a new FFmpegMixer.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegMixer(ffmpegPath string, opts ...Option) *FFmpegMixer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	m := &FFmpegMixer{ffmpegPath: ffmpegPath, ffprobePath: media.DefaultFFprobePath, volume: DefaultVolume}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load implements Mixer.Load.
func (m *FFmpegMixer) Load(ctx context.Context, path string) Track {
	if path == "" {
		return Track{Err: ErrNoMusic}
	}
	if _, err := os.Stat(path); err != nil {
		return Track{Path: path, Err: fmt.Errorf("open music: %w", err)}
	}

	info, err := media.InspectWith(ctx, m.ffprobePath, path)
	if err != nil {
		return Track{Path: path, Err: fmt.Errorf("read music %s: %w", filepath.Base(path), err)}
	}
	if !info.HasStream("audio") {
		return Track{Path: path, Err: ErrNoAudioStream}
	}
	d, err := info.Duration()
	if err != nil {
		return Track{Path: path, Err: err}
	}
	return Track{Path: path, Duration: d}
}

// Mix implements Mixer.Mix.
func (m *FFmpegMixer) Mix(ctx context.Context, videoPath string, track Track, duration float64, output string) error {
	out, err := m.mixStream(videoPath, track, duration, output)
	if err != nil {
		return err
	}
	return media.RunFFmpeg(ctx, m.ffmpegPath, out.OverWriteOutput().GetArgs())
}

func (m *FFmpegMixer) mixStream(videoPath string, track Track, duration float64, output string) (*ffmpeg.Stream, error) {
	if !track.Available() {
		if track.Err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrackUnavailable, track.Err)
		}
		return nil, ErrTrackUnavailable
	}

	musicArgs := ffmpeg.KwArgs{}
	if track.Duration < duration {
		musicArgs["stream_loop"] = -1
	}

	video := ffmpeg.Input(videoPath).Video()
	music := ffmpeg.Input(track.Path, musicArgs).
		Audio().
		Filter("volume", ffmpeg.Args{strconv.FormatFloat(m.volume, 'f', -1, 64)})

	return ffmpeg.Output([]*ffmpeg.Stream{video, music}, output, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      "aac",
		"t":        strconv.FormatFloat(duration, 'f', 3, 64),
		"movflags": "+faststart",
	}), nil
}
