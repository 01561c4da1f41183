// Package job provides the render Job aggregate, its stage machine, the
// repositories that persist it and the RenderService that drives a render
// from inputs to a published video.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/slidecast/internal/job/id"
)

// Orientation is the frame layout of the rendered video.
type Orientation string

const (
	// OrientationVertical renders 1080×1920.
	OrientationVertical Orientation = "vertical"
	// OrientationLandscape renders 1920×1080.
	OrientationLandscape Orientation = "landscape"
)

// IsValid returns true if the orientation is known.
func (o Orientation) IsValid() bool {
	return o == OrientationVertical || o == OrientationLandscape
}

// Frame returns the output width and height.
func (o Orientation) Frame() (width, height int) {
	if o == OrientationLandscape {
		return 1920, 1080
	}
	return 1080, 1920
}

// Stage is the current step of a render.
type Stage string

const (
	// StageReceived indicates the request was accepted and a job directory exists.
	StageReceived Stage = "RECEIVED"
	// StageInputsPersisted indicates uploads are written to the job directory.
	StageInputsPersisted Stage = "INPUTS_PERSISTED"
	// StageSlidesResolved indicates the slide list and durations are fixed.
	StageSlidesResolved Stage = "SLIDES_RESOLVED"
	// StageAssetsAssigned indicates every slide has its background.
	StageAssetsAssigned Stage = "ASSETS_ASSIGNED"
	// StageClipsBuilt indicates every slide is rendered to its own file.
	StageClipsBuilt Stage = "CLIPS_BUILT"
	// StageTimelineAssembled indicates slides are joined and music is mixed.
	StageTimelineAssembled Stage = "TIMELINE_ASSEMBLED"
	// StageEncoded indicates the final video is on disk.
	StageEncoded Stage = "ENCODED"
	// StageReady indicates the video can be downloaded.
	StageReady Stage = "READY"
	// StageFailed indicates the render stopped with an error.
	StageFailed Stage = "FAILED"
)

// ErrInvalidTransition is returned when an invalid stage transition is attempted.
var ErrInvalidTransition = errors.New("invalid stage transition")

// validTransitions defines which stage transitions are allowed. Stages only
// move forward; every non-terminal stage may fail.
var validTransitions = map[Stage][]Stage{
	StageReceived:          {StageInputsPersisted, StageFailed},
	StageInputsPersisted:   {StageSlidesResolved, StageFailed},
	StageSlidesResolved:    {StageAssetsAssigned, StageFailed},
	StageAssetsAssigned:    {StageClipsBuilt, StageFailed},
	StageClipsBuilt:        {StageTimelineAssembled, StageFailed},
	StageTimelineAssembled: {StageEncoded, StageFailed},
	StageEncoded:           {StageReady, StageFailed},
	StageReady:             {},
	StageFailed:            {},
}

// canTransition checks if a transition from one stage to another is valid.
func canTransition(from, to Stage) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Job represents one render request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job. It also names the job directory.
	ID string
	// Orientation is the requested frame layout.
	Orientation Orientation
	// Width and Height are the output frame size.
	Width  int
	Height int
	// MediaPaths are the persisted background uploads, in upload order.
	MediaPaths []string
	// MusicPath is the persisted music upload, empty if none.
	MusicPath string
	// OutputPath is the final video path.
	OutputPath string
	// Stage is the current render stage.
	Stage Stage
	// Error contains the error message if the job failed.
	Error string
	// SlideCount is the number of resolved slides.
	SlideCount int
	// Duration is the final video length in seconds.
	Duration float64
	// MusicApplied reports whether the final video carries the music.
	MusicApplied bool
	// VideoURL is the published URL when S3 publishing is enabled.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// CompletedAt is when the job reached READY or FAILED.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID in the RECEIVED stage.
func New(o Orientation) *Job {
	return NewWithID(id.Generate(), o)
}

// NewWithID creates a new Job with the specified ID in the RECEIVED stage.
// An unknown orientation falls back to vertical.
func NewWithID(jobID string, o Orientation) *Job {
	if !o.IsValid() {
		o = OrientationVertical
	}
	w, h := o.Frame()
	now := time.Now()
	return &Job{
		ID:          jobID,
		Orientation: o,
		Width:       w,
		Height:      h,
		Stage:       StageReceived,
		MediaPaths:  make([]string, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TransitionTo attempts to move the job to the specified stage.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(stage Stage) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Stage, stage) {
		return ErrInvalidTransition
	}

	j.Stage = stage
	j.UpdatedAt = time.Now()
	if stage == StageReady || stage == StageFailed {
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Fail transitions the job to FAILED with an error message.
// Returns ErrInvalidTransition if the job is already terminal.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	if j.Stage == StageReady || j.Stage == StageFailed {
		j.mu.Unlock()
		return ErrInvalidTransition
	}
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StageFailed)
}

// GetStage returns the current stage (thread-safe).
func (j *Job) GetStage() Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage
}

// IsTerminal returns true if the job is READY or FAILED.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage == StageReady || j.Stage == StageFailed
}

// SetInputs records the persisted uploads.
func (j *Job) SetInputs(mediaPaths []string, musicPath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.MediaPaths = slices.Clone(mediaPaths)
	j.MusicPath = musicPath
	j.UpdatedAt = time.Now()
}

// SetSlideCount records how many slides the render produces.
func (j *Job) SetSlideCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SlideCount = n
	j.UpdatedAt = time.Now()
}

// SetResult records the assembled video.
func (j *Job) SetResult(outputPath string, duration float64, musicApplied bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.Duration = duration
	j.MusicApplied = musicApplied
	j.UpdatedAt = time.Now()
}

// SetVideoURL records the published URL.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:           j.ID,
		Orientation:  j.Orientation,
		Width:        j.Width,
		Height:       j.Height,
		MediaPaths:   slices.Clone(j.MediaPaths),
		MusicPath:    j.MusicPath,
		OutputPath:   j.OutputPath,
		Stage:        j.Stage,
		Error:        j.Error,
		SlideCount:   j.SlideCount,
		Duration:     j.Duration,
		MusicApplied: j.MusicApplied,
		VideoURL:     j.VideoURL,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// Record is the serialized form of a Job.
type Record struct {
	ID           string      `json:"id"`
	Orientation  Orientation `json:"orientation"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	MediaPaths   []string    `json:"media_paths,omitempty"`
	MusicPath    string      `json:"music_path,omitempty"`
	OutputPath   string      `json:"output_path,omitempty"`
	Stage        Stage       `json:"stage"`
	Error        string      `json:"error,omitempty"`
	SlideCount   int         `json:"slide_count"`
	Duration     float64     `json:"duration"`
	MusicApplied bool        `json:"music_applied"`
	VideoURL     string      `json:"video_url,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CompletedAt  time.Time   `json:"completed_at,omitzero"`
}

// Record returns a snapshot of the job for serialization.
func (j *Job) Record() Record {
	c := j.Clone()
	return Record{
		ID:           c.ID,
		Orientation:  c.Orientation,
		Width:        c.Width,
		Height:       c.Height,
		MediaPaths:   c.MediaPaths,
		MusicPath:    c.MusicPath,
		OutputPath:   c.OutputPath,
		Stage:        c.Stage,
		Error:        c.Error,
		SlideCount:   c.SlideCount,
		Duration:     c.Duration,
		MusicApplied: c.MusicApplied,
		VideoURL:     c.VideoURL,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		CompletedAt:  c.CompletedAt,
	}
}

// FromRecord rebuilds a Job from its serialized form.
func FromRecord(r Record) *Job {
	return &Job{
		ID:           r.ID,
		Orientation:  r.Orientation,
		Width:        r.Width,
		Height:       r.Height,
		MediaPaths:   slices.Clone(r.MediaPaths),
		MusicPath:    r.MusicPath,
		OutputPath:   r.OutputPath,
		Stage:        r.Stage,
		Error:        r.Error,
		SlideCount:   r.SlideCount,
		Duration:     r.Duration,
		MusicApplied: r.MusicApplied,
		VideoURL:     r.VideoURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CompletedAt:  r.CompletedAt,
	}
}
