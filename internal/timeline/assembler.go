// Package timeline joins rendered slides into one video and lays the
// background music under it.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/slidecast/internal/audio"
)

// SilentName is the file the joined timeline is written to before music is
// mixed in. It sits next to the final output.
const SilentName = "timeline.mp4"

// ErrNoSegments is returned when there is nothing to assemble.
var ErrNoSegments = errors.New("no segments to assemble")

// Segment is one rendered slide file and its length in seconds.
type Segment struct {
	Path     string
	Duration float64
}

// Result describes the assembled video.
type Result struct {
	// Path is the final video file.
	Path string
	// Duration is the sum of the segment durations.
	Duration float64
	// Music is the loaded track, available or not.
	Music audio.Track
	// MusicApplied reports whether the final file carries the music.
	MusicApplied bool
}

// Joiner concatenates video files in order.
type Joiner interface {
	JoinVideos(ctx context.Context, videoPaths []string, output string) error
}

// Assembler joins segments and mixes music.
type Assembler struct {
	joiner Joiner
	mixer  audio.Mixer
	logger *slog.Logger
}

// NewAssembler creates a new Assembler.
func NewAssembler(joiner Joiner, mixer audio.Mixer, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{joiner: joiner, mixer: mixer, logger: logger}
}

// Assemble concatenates segments in order into output. When musicPath is set
// the music is looped or cut to the video length and mixed in. A track that
// fails to load or mix leaves the silent video as the result.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment, musicPath, output string) (*Result, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	paths := make([]string, len(segments))
	var total float64
	for i, s := range segments {
		paths[i] = s.Path
		total += s.Duration
	}
	res := &Result{Path: output, Duration: total}

	if musicPath == "" {
		if err := a.joiner.JoinVideos(ctx, paths, output); err != nil {
			return nil, fmt.Errorf("join segments: %w", err)
		}
		res.Music = audio.Track{Err: audio.ErrNoMusic}
		return res, nil
	}

	silent := filepath.Join(filepath.Dir(output), SilentName)
	if err := a.joiner.JoinVideos(ctx, paths, silent); err != nil {
		return nil, fmt.Errorf("join segments: %w", err)
	}
	defer func() { _ = os.Remove(silent) }()

	res.Music = a.mixer.Load(ctx, musicPath)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !res.Music.Available() {
		a.logger.Warn("music unavailable, publishing silent video",
			slog.String("music", filepath.Base(musicPath)),
			slog.String("error", errString(res.Music.Err)),
		)
		return res, publishSilent(silent, output)
	}

	err := a.mixer.Mix(ctx, silent, res.Music, total, output)
	if err == nil {
		res.MusicApplied = true
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("mix music: %w", err)
	}

	a.logger.Warn("music mix failed, publishing silent video",
		slog.String("music", filepath.Base(musicPath)),
		slog.String("error", err.Error()),
	)
	_ = os.Remove(output)
	return res, publishSilent(silent, output)
}

func publishSilent(silent, output string) error {
	if err := os.Rename(silent, output); err != nil {
		return fmt.Errorf("publish silent timeline: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
