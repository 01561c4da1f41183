package job

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/maauso/slidecast/internal/job/id"
)

func TestNew(t *testing.T) {
	job := New(OrientationVertical)

	if !id.Valid(job.ID) {
		t.Errorf("expected job to have a UUID, got %q", job.ID)
	}
	if job.Stage != StageReceived {
		t.Errorf("expected stage %s, got %s", StageReceived, job.Stage)
	}
	if job.Width != 1080 || job.Height != 1920 {
		t.Errorf("expected 1080x1920, got %dx%d", job.Width, job.Height)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if job.MediaPaths == nil {
		t.Error("expected MediaPaths to be initialized")
	}
}

func TestNewWithID(t *testing.T) {
	job := NewWithID("test-job-123", OrientationLandscape)

	if job.ID != "test-job-123" {
		t.Errorf("expected ID test-job-123, got %s", job.ID)
	}
	if job.Width != 1920 || job.Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", job.Width, job.Height)
	}

	job = NewWithID("x", Orientation("diagonal"))
	if job.Orientation != OrientationVertical {
		t.Errorf("unknown orientation should fall back to vertical, got %s", job.Orientation)
	}
}

func TestOrientation(t *testing.T) {
	tests := []struct {
		o     Orientation
		valid bool
		w, h  int
	}{
		{OrientationVertical, true, 1080, 1920},
		{OrientationLandscape, true, 1920, 1080},
		{"square", false, 1080, 1920},
		{"", false, 1080, 1920},
	}
	for _, tt := range tests {
		if got := tt.o.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.o, got, tt.valid)
		}
		w, h := tt.o.Frame()
		if w != tt.w || h != tt.h {
			t.Errorf("%q.Frame() = %dx%d, want %dx%d", tt.o, w, h, tt.w, tt.h)
		}
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Stage
		to      Stage
		wantErr bool
	}{
		{"RECEIVED to INPUTS_PERSISTED", StageReceived, StageInputsPersisted, false},
		{"INPUTS_PERSISTED to SLIDES_RESOLVED", StageInputsPersisted, StageSlidesResolved, false},
		{"SLIDES_RESOLVED to ASSETS_ASSIGNED", StageSlidesResolved, StageAssetsAssigned, false},
		{"ASSETS_ASSIGNED to CLIPS_BUILT", StageAssetsAssigned, StageClipsBuilt, false},
		{"CLIPS_BUILT to TIMELINE_ASSEMBLED", StageClipsBuilt, StageTimelineAssembled, false},
		{"TIMELINE_ASSEMBLED to ENCODED", StageTimelineAssembled, StageEncoded, false},
		{"ENCODED to READY", StageEncoded, StageReady, false},
		{"RECEIVED to FAILED", StageReceived, StageFailed, false},
		{"CLIPS_BUILT to FAILED", StageClipsBuilt, StageFailed, false},
		{"ENCODED to FAILED", StageEncoded, StageFailed, false},
		// Invalid transitions
		{"RECEIVED to READY", StageReceived, StageReady, true},
		{"RECEIVED to CLIPS_BUILT", StageReceived, StageClipsBuilt, true},
		{"CLIPS_BUILT to SLIDES_RESOLVED", StageClipsBuilt, StageSlidesResolved, true},
		{"READY to FAILED", StageReady, StageFailed, true},
		{"FAILED to READY", StageFailed, StageReady, true},
		{"FAILED to RECEIVED", StageFailed, StageReceived, true},
		{"unknown stage", Stage("PAUSED"), StageReady, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", OrientationVertical)
			job.Stage = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_FullPipeline(t *testing.T) {
	job := New(OrientationVertical)
	stages := []Stage{
		StageInputsPersisted, StageSlidesResolved, StageAssetsAssigned,
		StageClipsBuilt, StageTimelineAssembled, StageEncoded, StageReady,
	}
	for _, s := range stages {
		if err := job.TransitionTo(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if !job.IsTerminal() {
		t.Error("READY should be terminal")
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New(OrientationVertical)
	_ = job.TransitionTo(StageInputsPersisted)

	if err := job.Fail("something went wrong"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Stage != StageFailed {
		t.Errorf("expected stage %s, got %s", StageFailed, job.Stage)
	}
	if job.Error != "something went wrong" {
		t.Errorf("expected error message, got %q", job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}

	if err := job.Fail("again"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "something went wrong" {
		t.Errorf("failing a terminal job must not change its error, got %q", job.Error)
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		stage    Stage
		terminal bool
	}{
		{StageReceived, false},
		{StageClipsBuilt, false},
		{StageEncoded, false},
		{StageReady, true},
		{StageFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			job := NewWithID("test", OrientationVertical)
			job.Stage = tt.stage
			if job.IsTerminal() != tt.terminal {
				t.Errorf("expected IsTerminal() = %v for stage %s", tt.terminal, tt.stage)
			}
		})
	}
}

func TestJob_Setters(t *testing.T) {
	job := New(OrientationVertical)
	before := job.UpdatedAt
	time.Sleep(time.Millisecond)

	media := []string{"/r/a.png", "/r/b.mp4"}
	job.SetInputs(media, "/r/music.mp3")
	media[0] = "changed"
	job.SetSlideCount(3)
	job.SetResult("/r/final.mp4", 31.5, true)
	job.SetVideoURL("https://bucket/final.mp4")

	if job.MediaPaths[0] != "/r/a.png" {
		t.Error("SetInputs should copy the slice")
	}
	if job.MusicPath != "/r/music.mp3" || job.SlideCount != 3 {
		t.Errorf("unexpected inputs: %+v", job.Record())
	}
	if job.OutputPath != "/r/final.mp4" || job.Duration != 31.5 || !job.MusicApplied {
		t.Errorf("unexpected result: %+v", job.Record())
	}
	if job.VideoURL != "https://bucket/final.mp4" {
		t.Errorf("unexpected video url %q", job.VideoURL)
	}
	if !job.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestJob_Clone(t *testing.T) {
	job := New(OrientationLandscape)
	job.SetInputs([]string{"a.png"}, "m.mp3")
	job.Error = "test error"

	clone := job.Clone()

	if clone.ID != job.ID || clone.Stage != job.Stage || clone.Error != job.Error {
		t.Error("clone fields differ from original")
	}

	clone.MediaPaths[0] = "modified"
	if job.MediaPaths[0] == "modified" {
		t.Error("modifying clone media should not affect original")
	}
	_ = clone.TransitionTo(StageInputsPersisted)
	if job.Stage != StageReceived {
		t.Error("modifying clone stage should not affect original")
	}
}

func TestJob_RecordRoundTrip(t *testing.T) {
	job := New(OrientationLandscape)
	job.SetInputs([]string{"a.png"}, "m.mp3")
	job.SetResult("/r/final.mp4", 9, false)
	_ = job.TransitionTo(StageInputsPersisted)

	data, err := json.Marshal(job.Record())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := FromRecord(rec)

	if got.ID != job.ID || got.Stage != StageInputsPersisted || got.Width != 1920 {
		t.Errorf("round trip lost fields: %+v", rec)
	}
	if !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, job.CreatedAt)
	}
	if !got.CompletedAt.IsZero() {
		t.Error("CompletedAt should stay zero")
	}
	if err := got.TransitionTo(StageSlidesResolved); err != nil {
		t.Errorf("restored job should keep its stage machine: %v", err)
	}
}

func TestJob_GetStage_ThreadSafe(t *testing.T) {
	job := New(OrientationVertical)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = job.GetStage()
		}()
		go func() {
			defer wg.Done()
			job.SetSlideCount(1)
		}()
	}

	wg.Wait()
}
