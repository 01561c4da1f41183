// Package storage provides per-job file storage and optional S3 publishing.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// OutputName is the file name of every job's final video.
const OutputName = "final.mp4"

var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrInvalidJobID is returned for ids that cannot name a job directory.
	ErrInvalidJobID = errors.New("invalid job id")
	// ErrArtifactNotFound is returned when a job has no final video.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Artifact is an opened final video. The caller must Close it.
type Artifact struct {
	io.ReadSeekCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines per-job file storage.
// Every job owns one directory under the storage root; no two jobs share it.
type Storage interface {
	// CreateJobDir creates the directory for jobID and returns its path.
	CreateJobDir(ctx context.Context, jobID string) (string, error)

	// SaveUpload writes data into the job directory under the base name of
	// name. Empty, reserved or colliding names get a generated one.
	SaveUpload(ctx context.Context, jobID, name string, data io.Reader) (path string, err error)

	// OutputPath returns where the job's final video is written.
	OutputPath(jobID string) string

	// OpenOutput opens the job's final video for reading.
	// Returns ErrArtifactNotFound if it does not exist.
	OpenOutput(ctx context.Context, jobID string) (*Artifact, error)

	// CleanupTemp removes the specified files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}
