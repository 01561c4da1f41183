package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/maauso/slidecast/internal/caption"
	"github.com/maauso/slidecast/internal/job/id"
	"github.com/maauso/slidecast/internal/media"
	"github.com/maauso/slidecast/internal/slide"
	"github.com/maauso/slidecast/internal/storage"
	"github.com/maauso/slidecast/internal/timeline"
)

// DefaultMusicName is used for a music upload that arrives without a name.
const DefaultMusicName = "music.mp3"

var (
	// ErrNoSlides is returned when the inputs resolve to zero slides.
	ErrNoSlides = errors.New("no slides to render")
	// ErrInvalidSlide is returned for an explicit slide with an unknown role
	// or text longer than slide.MaxChunkLen.
	ErrInvalidSlide = errors.New("invalid slide")
	// ErrInvalidOrientation is returned for an unknown orientation.
	ErrInvalidOrientation = errors.New("invalid orientation")
)

// Upload is one uploaded file.
type Upload struct {
	// Name is the client-supplied file name.
	Name string
	// Content is the file body.
	Content io.Reader
}

// RenderInput contains the input parameters for a render.
type RenderInput struct {
	// Orientation selects the frame size. Empty means vertical.
	Orientation Orientation
	// Slides, when non-nil, are rendered as given. A non-positive Duration
	// is replaced by the estimate for the slide's text.
	Slides []slide.Slide
	// Title, Intro and Body build the slides when Slides is nil.
	Title string
	Intro string
	Body  []string
	// Media are background images or videos, in the order they are assigned.
	Media []Upload
	// Music is the optional background track.
	Music *Upload
}

// RenderOutput contains the result of a render.
type RenderOutput struct {
	// JobID is the unique identifier for the render.
	JobID string
	// FinalURL is the relative download path of the video.
	FinalURL string
	// VideoURL is the published URL when S3 publishing is enabled.
	VideoURL string
	// Duration is the video length in seconds.
	Duration float64
	// SlideCount is the number of rendered slides.
	SlideCount int
	// MusicApplied reports whether the video carries the music.
	MusicApplied bool
}

// CaptionRenderer lays out caption text for a frame.
type CaptionRenderer interface {
	Render(text string, role slide.Role, w, h int, dur float64) (*caption.Caption, error)
}

// TimelineAssembler joins slide files and mixes music.
type TimelineAssembler interface {
	Assemble(ctx context.Context, segments []timeline.Segment, musicPath, output string) (*timeline.Result, error)
}

// RenderService orchestrates a render from uploads to a published video.
// Each render runs synchronously in the caller's goroutine.
type RenderService struct {
	repo      Repository
	store     storage.Storage
	processor media.Processor
	captions  CaptionRenderer
	assembler TimelineAssembler
	logger    *slog.Logger
}

// NewRenderService creates a new RenderService.
func NewRenderService(
	repo Repository,
	store storage.Storage,
	processor media.Processor,
	captions CaptionRenderer,
	assembler TimelineAssembler,
	logger *slog.Logger,
) *RenderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderService{
		repo:      repo,
		store:     store,
		processor: processor,
		captions:  captions,
		assembler: assembler,
		logger:    logger,
	}
}

// DownloadPath returns the relative URL a job's video is served from.
func DownloadPath(jobID string) string {
	return "/download/" + jobID
}

// render is the mutable state of one in-flight render.
type render struct {
	job   *Job
	dir   string
	temps []string
}

// Render runs the whole pipeline. Any stage error fails the job, removes
// its partial output and is returned.
func (s *RenderService) Render(ctx context.Context, in RenderInput) (*RenderOutput, error) {
	if in.Orientation == "" {
		in.Orientation = OrientationVertical
	}
	if !in.Orientation.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrientation, in.Orientation)
	}

	j := New(in.Orientation)
	dir, err := s.store.CreateJobDir(ctx, j.ID)
	if err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}
	j.OutputPath = s.store.OutputPath(j.ID)

	s.logger.Info("render received",
		slog.String("job_id", j.ID),
		slog.String("orientation", string(j.Orientation)),
		slog.Int("media", len(in.Media)),
		slog.Bool("music", in.Music != nil),
	)
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	r := &render{job: j, dir: dir}
	out, err := s.run(ctx, r, in)
	if err != nil {
		s.fail(ctx, r, err)
		return nil, err
	}
	return out, nil
}

func (s *RenderService) run(ctx context.Context, r *render, in RenderInput) (*RenderOutput, error) {
	j := r.job

	mediaPaths, musicPath, err := s.persistInputs(ctx, j.ID, in)
	if err != nil {
		return nil, err
	}
	j.SetInputs(mediaPaths, musicPath)
	if err := s.advance(ctx, j, StageInputsPersisted); err != nil {
		return nil, err
	}

	slides, err := resolveSlides(in)
	if err != nil {
		return nil, err
	}
	j.SetSlideCount(len(slides))
	if err := s.advance(ctx, j, StageSlidesResolved); err != nil {
		return nil, err
	}

	usage := slide.AssignAssets(slides, mediaPaths)
	s.logger.Debug("assets assigned",
		slog.String("job_id", j.ID),
		slog.Int("assets", len(usage)),
		slog.Int("spread", usage.Spread()),
	)
	if err := s.advance(ctx, j, StageAssetsAssigned); err != nil {
		return nil, err
	}

	segments, err := s.buildClips(ctx, r, slides)
	if err != nil {
		return nil, err
	}
	if err := s.advance(ctx, j, StageClipsBuilt); err != nil {
		return nil, err
	}

	res, err := s.assembler.Assemble(ctx, segments, musicPath, j.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("assemble timeline: %w", err)
	}
	j.SetResult(res.Path, res.Duration, res.MusicApplied)
	if musicPath != "" && !res.MusicApplied {
		s.logger.Warn("video published without music",
			slog.String("job_id", j.ID),
			slog.String("error", errString(res.Music.Err)),
		)
	}
	if err := s.advance(ctx, j, StageTimelineAssembled); err != nil {
		return nil, err
	}

	s.cleanup(ctx, r)
	if _, err := os.Stat(j.OutputPath); err != nil {
		return nil, fmt.Errorf("final video missing: %w", err)
	}
	if err := s.advance(ctx, j, StageEncoded); err != nil {
		return nil, err
	}

	videoURL, err := s.publish(ctx, j)
	if err != nil {
		return nil, err
	}
	j.SetVideoURL(videoURL)
	if err := s.advance(ctx, j, StageReady); err != nil {
		return nil, err
	}

	s.logger.Info("render ready",
		slog.String("job_id", j.ID),
		slog.Int("slides", len(slides)),
		slog.Float64("duration", res.Duration),
		slog.Bool("music_applied", res.MusicApplied),
	)

	return &RenderOutput{
		JobID:        j.ID,
		FinalURL:     DownloadPath(j.ID),
		VideoURL:     videoURL,
		Duration:     res.Duration,
		SlideCount:   len(slides),
		MusicApplied: res.MusicApplied,
	}, nil
}

// persistInputs writes uploads into the job directory, media first.
func (s *RenderService) persistInputs(ctx context.Context, jobID string, in RenderInput) ([]string, string, error) {
	mediaPaths := make([]string, 0, len(in.Media))
	for i, u := range in.Media {
		p, err := s.store.SaveUpload(ctx, jobID, u.Name, u.Content)
		if err != nil {
			return nil, "", fmt.Errorf("save media %d: %w", i, err)
		}
		mediaPaths = append(mediaPaths, p)
	}

	if in.Music == nil {
		return mediaPaths, "", nil
	}
	name := in.Music.Name
	if name == "" {
		name = DefaultMusicName
	}
	musicPath, err := s.store.SaveUpload(ctx, jobID, name, in.Music.Content)
	if err != nil {
		return nil, "", fmt.Errorf("save music: %w", err)
	}
	return mediaPaths, musicPath, nil
}

// resolveSlides returns the explicit slides with estimated durations filled
// in, or builds slides from title, intro and body.
func resolveSlides(in RenderInput) ([]slide.Slide, error) {
	if in.Slides == nil {
		slides := slide.Build(in.Title, in.Intro, in.Body)
		if len(slides) == 0 {
			return nil, ErrNoSlides
		}
		return slides, nil
	}

	if len(in.Slides) == 0 {
		return nil, ErrNoSlides
	}
	slides := make([]slide.Slide, len(in.Slides))
	for i, sl := range in.Slides {
		if !sl.Role.IsValid() {
			return nil, fmt.Errorf("%w: slide %d has role %q", ErrInvalidSlide, i, sl.Role)
		}
		if n := utf8.RuneCountInString(sl.Text); n > slide.MaxChunkLen {
			return nil, fmt.Errorf("%w: slide %d text is %d characters", ErrInvalidSlide, i, n)
		}
		if sl.Duration <= 0 {
			sl.Duration = slide.DurationFor(sl.Text, sl.Role)
		}
		sl.Asset = ""
		slides[i] = sl
	}
	return slides, nil
}

// buildClips renders every slide to slide_NNN.mp4 in the job directory.
func (s *RenderService) buildClips(ctx context.Context, r *render, slides []slide.Slide) ([]timeline.Segment, error) {
	j := r.job
	segments := make([]timeline.Segment, 0, len(slides))

	for i, sl := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var bg *media.Clip
		var err error
		if sl.HasAsset() {
			bg, err = s.processor.LoadBackground(ctx, sl.Asset, j.Width, j.Height, sl.Duration)
		} else {
			bg, err = s.processor.BlankBackground(j.Width, j.Height, sl.Duration)
		}
		if err != nil {
			return nil, fmt.Errorf("slide %d background: %w", i, err)
		}

		c, err := s.captions.Render(sl.Text, sl.Role, j.Width, j.Height, sl.Duration)
		if err != nil {
			return nil, fmt.Errorf("slide %d caption: %w", i, err)
		}

		out := filepath.Join(r.dir, fmt.Sprintf("slide_%03d.mp4", i))
		r.temps = append(r.temps, out, media.CaptionFile(out))
		if err := s.processor.ComposeSlide(ctx, bg, c, out); err != nil {
			return nil, fmt.Errorf("slide %d compose: %w", i, err)
		}

		s.logger.Debug("slide rendered",
			slog.String("job_id", j.ID),
			slog.Int("slide", i),
			slog.String("role", string(sl.Role)),
			slog.Float64("duration", bg.Duration),
		)
		segments = append(segments, timeline.Segment{Path: out, Duration: bg.Duration})
	}

	return segments, nil
}

// publish uploads the final video when S3 is configured.
func (s *RenderService) publish(ctx context.Context, j *Job) (string, error) {
	f, err := os.Open(j.OutputPath) // #nosec G304 - output path is derived from a generated job id
	if err != nil {
		return "", fmt.Errorf("open final video: %w", err)
	}
	defer func() { _ = f.Close() }()

	url, err := s.store.UploadToS3(ctx, storage.ArtifactKey(j.ID), f)
	if errors.Is(err, storage.ErrS3NotConfigured) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("publish final video: %w", err)
	}
	return url, nil
}

// advance moves the job to stage and saves it.
func (s *RenderService) advance(ctx context.Context, j *Job, stage Stage) error {
	if err := j.TransitionTo(stage); err != nil {
		return fmt.Errorf("%s -> %s: %w", j.GetStage(), stage, err)
	}
	s.logger.Debug("job stage", slog.String("job_id", j.ID), slog.String("stage", string(stage)))
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// fail marks the job failed and removes everything the render produced
// except the uploads.
func (s *RenderService) fail(ctx context.Context, r *render, cause error) {
	j := r.job
	ctx = context.WithoutCancel(ctx)
	stage := j.GetStage()

	s.logger.Error("render failed",
		slog.String("job_id", j.ID),
		slog.String("stage", string(stage)),
		slog.String("error", cause.Error()),
	)

	if err := j.Fail(cause.Error()); err != nil {
		s.logger.Warn("cannot mark job failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job", slog.String("job_id", j.ID), slog.String("error", err.Error()))
	}

	r.temps = append(r.temps, j.OutputPath, filepath.Join(r.dir, timeline.SilentName))
	s.cleanup(ctx, r)
}

func (s *RenderService) cleanup(ctx context.Context, r *render) {
	if len(r.temps) == 0 {
		return
	}
	if err := s.store.CleanupTemp(context.WithoutCancel(ctx), r.temps); err != nil {
		s.logger.Warn("failed to remove intermediate files",
			slog.String("job_id", r.job.ID),
			slog.String("error", err.Error()),
		)
	}
	r.temps = nil
}

// GetJob retrieves a job by ID.
func (s *RenderService) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if !id.Valid(jobID) {
		return nil, ErrJobNotFound
	}
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns every known job, oldest first.
func (s *RenderService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// OpenArtifact opens a job's final video. It only depends on the file being
// present, so videos rendered before a restart stay downloadable.
func (s *RenderService) OpenArtifact(ctx context.Context, jobID string) (*storage.Artifact, error) {
	return s.store.OpenOutput(ctx, jobID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
