package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slidecast/internal/caption"
	"github.com/maauso/slidecast/internal/slide"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestImage creates a simple test image using ffmpeg.
func createTestImage(t *testing.T, path string, width, height int) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=%dx%d:d=1", width, height),
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, size string) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=s=%s:r=25:d=%.1f", size, duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func argsOf(s *ffmpeg.Stream) string {
	return strings.Join(s.GetArgs(), " ")
}

func testCaption(t *testing.T, text string, w, h int, dur float64) *caption.Caption {
	t.Helper()
	r, err := caption.NewRenderer("", t.TempDir())
	require.NoError(t, err)
	c, err := r.Render(text, slide.RoleTitle, w, h, dur)
	require.NoError(t, err)
	return c
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := NewFFmpegProcessor("")
		assert.Equal(t, "ffmpeg", p.ffmpegPath)
		assert.Equal(t, DefaultBitrate, p.bitrate)
		assert.Equal(t, DefaultFFprobePath, p.ffprobePath)
	})

	t.Run("custom paths and bitrate", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg",
			WithBitrate("2500k"),
			WithFFprobePath("/usr/local/bin/ffprobe"),
		)
		assert.Equal(t, "/usr/local/bin/ffmpeg", p.ffmpegPath)
		assert.Equal(t, "2500k", p.bitrate)
		assert.Equal(t, "/usr/local/bin/ffprobe", p.ffprobePath)
	})

	t.Run("empty ffprobe path keeps default", func(t *testing.T) {
		p := NewFFmpegProcessor("", WithFFprobePath(""))
		assert.Equal(t, DefaultFFprobePath, p.ffprobePath)
	})

	t.Run("empty bitrate keeps default", func(t *testing.T) {
		p := NewFFmpegProcessor("", WithBitrate(""))
		assert.Equal(t, DefaultBitrate, p.bitrate)
	})
}

func TestIsVideo(t *testing.T) {
	for _, name := range []string{"a.mp4", "b.MOV", "c.mkv", "d.avi", "e.m4v"} {
		assert.True(t, IsVideo(name), name)
	}
	for _, name := range []string{"a.png", "b.jpg", "c.webp", "noext", "d.mp4.png"} {
		assert.False(t, IsVideo(name), name)
	}
}

func TestLoopCount(t *testing.T) {
	tests := []struct {
		src, total float64
		want       int
	}{
		{20, 12, 1},
		{12, 12, 1},
		{5, 12, 3},
		{4, 12, 3},
		{0.01, 1, 10},
		{0, 2, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LoopCount(tt.src, tt.total), "src=%v total=%v", tt.src, tt.total)
	}
}

func TestSpan(t *testing.T) {
	assert.Equal(t, 12.0, Span(10))
	assert.Equal(t, 9.0, Span(7))
}

func TestLoadBackground_StillImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0600))
	p := NewFFmpegProcessor("")

	clip, err := p.LoadBackground(context.Background(), path, 1080, 1920, 10)
	require.NoError(t, err)

	assert.Equal(t, 12.0, clip.Duration)
	assert.Equal(t, 1080, clip.Width)
	assert.Equal(t, 1920, clip.Height)
	assert.Equal(t, path, clip.Source)

	args := argsOf(clip.Stream.Output("out.mp4"))
	assert.Contains(t, args, "-loop 1")
	assert.Contains(t, args, "-t 12.000")
	assert.Contains(t, args, "scale=1080:-2")
	assert.Contains(t, args, "scale=1080:1920")
	assert.Contains(t, args, "setsar=1")
}

func TestLoadBackground_Errors(t *testing.T) {
	p := NewFFmpegProcessor("")
	ctx := context.Background()

	_, err := p.LoadBackground(ctx, "bg.png", 0, 1920, 10)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = p.LoadBackground(ctx, "bg.png", 1080, 1920, -1)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = p.LoadBackground(ctx, filepath.Join(t.TempDir(), "missing.png"), 1080, 1920, 10)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBlankBackground(t *testing.T) {
	p := NewFFmpegProcessor("")

	clip, err := p.BlankBackground(1920, 1080, 7)
	require.NoError(t, err)

	assert.Equal(t, 9.0, clip.Duration)
	assert.Equal(t, 1920, clip.Width)
	assert.Equal(t, 1080, clip.Height)
	assert.Empty(t, clip.Source)

	args := argsOf(clip.Stream.Output("out.mp4"))
	assert.Contains(t, args, "-f lavfi")
	assert.Contains(t, args, "color=c=white:s=1920x1080:r=30:d=9.000")

	_, err = p.BlankBackground(-1, 1080, 7)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestComposite(t *testing.T) {
	p := NewFFmpegProcessor("")
	bg, err := p.BlankBackground(1080, 1920, 7)
	require.NoError(t, err)

	t.Run("with caption", func(t *testing.T) {
		c := testCaption(t, "Hello", 1080, 1920, 7)

		out, err := p.composite(bg, c, "/jobs/x/slide_000.mp4")
		require.NoError(t, err)

		args := argsOf(out)
		assert.Contains(t, args, "drawtext=")
		assert.Contains(t, args, "/jobs/x/slide_000.txt")
		assert.Contains(t, args, "fps=30")
		assert.Contains(t, args, "trim=duration=9.000")
		assert.Contains(t, args, "setpts=PTS-STARTPTS")
		assert.Contains(t, args, "-b:v 6000k")
		assert.Contains(t, args, "-c:v libx264")
		assert.Contains(t, args, "-pix_fmt yuv420p")
		assert.True(t, strings.HasSuffix(args, "/jobs/x/slide_000.mp4"))
	})

	t.Run("empty caption draws nothing", func(t *testing.T) {
		out, err := p.composite(bg, &caption.Caption{}, "slide.mp4")
		require.NoError(t, err)
		assert.NotContains(t, argsOf(out), "drawtext")
	})

	t.Run("missing background", func(t *testing.T) {
		_, err := p.composite(nil, nil, "slide.mp4")
		assert.ErrorIs(t, err, ErrNilClip)
	})
}

func TestCaptionFile(t *testing.T) {
	assert.Equal(t, "/a/slide_001.txt", CaptionFile("/a/slide_001.mp4"))
	assert.Equal(t, "noext.txt", CaptionFile("noext"))
}

func TestMediaInfo(t *testing.T) {
	raw := `{"streams":[{"codec_type":"video","width":64,"height":32},{"codec_type":"audio"}],"format":{"duration":"12.500000"}}`
	var info MediaInfo
	require.NoError(t, json.Unmarshal([]byte(raw), &info))

	d, err := info.Duration()
	require.NoError(t, err)
	assert.Equal(t, 12.5, d)
	assert.True(t, info.HasStream("video"))
	assert.True(t, info.HasStream("audio"))
	assert.False(t, info.HasStream("subtitle"))

	var empty MediaInfo
	_, err = empty.Duration()
	assert.ErrorIs(t, err, ErrNoDuration)
}

func TestCreateConcatList(t *testing.T) {
	dir := t.TempDir()

	list, err := createConcatList(dir, []string{"/v/a.mp4", "/v/it's.mp4"})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(list))
	content, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "file '/v/a.mp4'\nfile '/v/it'\\''s.mp4'\n", string(content))
}

func TestJoinVideos_NoPaths(t *testing.T) {
	p := NewFFmpegProcessor("")
	err := p.JoinVideos(context.Background(), nil, "out.mp4")
	assert.ErrorIs(t, err, ErrNoVideoPaths)
}

func TestJoinVideos_SingleVideoIsCopied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "only.mp4")
	dst := filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video bytes"), 0600))

	p := NewFFmpegProcessor("/non/existent/ffmpeg")
	require.NoError(t, p.JoinVideos(context.Background(), []string{src}, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(got))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64<<10)
	require.NoError(t, os.WriteFile(src, payload, 0600))
	require.NoError(t, os.WriteFile(dst, []byte("stale content that is replaced"), 0600))

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got), "destination must match source byte for byte")

	err = copyFile(filepath.Join(dir, "missing.mp4"), dst)
	assert.ErrorContains(t, err, "open source file")

	err = copyFile(src, filepath.Join(dir, "no", "such", "dir", "out.mp4"))
	assert.ErrorContains(t, err, "create destination file")
}

func TestRunFFmpeg_Errors(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		err := RunFFmpeg(context.Background(), "/non/existent/ffmpeg", []string{"-version"})
		var ffErr *FFmpegError
		require.ErrorAs(t, err, &ffErr)
		assert.Equal(t, []string{"-version"}, ffErr.Args)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RunFFmpeg(ctx, "/non/existent/ffmpeg", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "exit status 1")
	assert.ErrorIs(t, err, inner)
}

func TestInspect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Inspect(ctx, "whatever.mp4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInspectWith_MissingBinary(t *testing.T) {
	_, err := InspectWith(context.Background(), "/non/existent/ffprobe", "whatever.mp4")
	assert.ErrorIs(t, err, ErrFFprobeExecution)
}

func TestGetMediaDuration_UsesConfiguredFFprobe(t *testing.T) {
	p := NewFFmpegProcessor("", WithFFprobePath("/non/existent/ffprobe"))

	_, err := p.GetMediaDuration(context.Background(), "whatever.mp4")
	assert.ErrorIs(t, err, ErrFFprobeExecution)
}

func TestInspectWith_Timeout(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not found in PATH")
	}
	// sleep rejects the ffprobe flags on some systems; a wrapper script keeps
	// the process alive regardless of its arguments.
	script := filepath.Join(t.TempDir(), "slow-ffprobe")
	body := "#!/bin/sh\nexec " + sleep + " 5\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0700)) // #nosec G306

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = InspectWith(ctx, script, "whatever.mp4")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestComposeSlide_StillImage(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	img := filepath.Join(dir, "bg.png")
	createTestImage(t, img, 300, 200)
	out := filepath.Join(dir, "slide_000.mp4")

	p := NewFFmpegProcessor("")
	ctx := context.Background()

	bg, err := p.LoadBackground(ctx, img, 360, 640, 2)
	require.NoError(t, err)
	require.NoError(t, p.ComposeSlide(ctx, bg, testCaption(t, "Hello", 360, 640, 2), out))

	assert.FileExists(t, CaptionFile(out))
	verifyVideo(t, out, 360, 640, 4.0)
}

func TestComposeSlide_LoopsShortVideo(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "short.mp4")
	createTestVideo(t, src, 1.5, "320x240")
	out := filepath.Join(dir, "slide_000.mp4")

	p := NewFFmpegProcessor("")
	ctx := context.Background()

	bg, err := p.LoadBackground(ctx, src, 360, 640, 3)
	require.NoError(t, err)
	assert.Contains(t, argsOf(bg.Stream.Output(out)), "-stream_loop 3")

	require.NoError(t, p.ComposeSlide(ctx, bg, &caption.Caption{}, out))
	verifyVideo(t, out, 360, 640, 5.0)
}

func TestComposeSlide_CutsLongVideo(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "long.mov")
	createTestVideo(t, src, 6, "640x360")
	out := filepath.Join(dir, "slide_000.mp4")

	p := NewFFmpegProcessor("")
	ctx := context.Background()

	bg, err := p.LoadBackground(ctx, src, 640, 360, 1)
	require.NoError(t, err)
	assert.NotContains(t, argsOf(bg.Stream.Output(out)), "stream_loop")

	require.NoError(t, p.ComposeSlide(ctx, bg, testCaption(t, "Cut", 640, 360, 1), out))
	verifyVideo(t, out, 640, 360, 3.0)
}

func TestJoinVideos(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	p := NewFFmpegProcessor("")
	ctx := context.Background()

	var parts []string
	for i, dur := range []float64{1, 2} {
		bg, err := p.BlankBackground(360, 640, dur)
		require.NoError(t, err)
		out := filepath.Join(dir, fmt.Sprintf("slide_%03d.mp4", i))
		require.NoError(t, p.ComposeSlide(ctx, bg, &caption.Caption{}, out))
		parts = append(parts, out)
	}

	joined := filepath.Join(dir, "joined.mp4")
	require.NoError(t, p.JoinVideos(ctx, parts, joined))
	verifyVideo(t, joined, 360, 640, 7.0)
}

func verifyVideo(t *testing.T, path string, w, h int, duration float64) {
	t.Helper()

	info, err := Inspect(context.Background(), path)
	require.NoError(t, err)

	got, err := info.Duration()
	require.NoError(t, err)
	assert.InDelta(t, duration, got, 0.1)

	require.True(t, info.HasStream("video"))
	for _, s := range info.Streams {
		if s.CodecType == "video" {
			assert.Equal(t, w, s.Width)
			assert.Equal(t, h, s.Height)
		}
	}
}
