package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/maauso/slidecast/internal/job/id"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface using local disk.
// Job directories live directly under root. It does not support S3
// operations unless wrapped with S3Storage.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new LocalStorage instance.
// If root is empty, a "slidecast" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "slidecast")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the storage root directory.
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) jobDir(jobID string) (string, error) {
	if !id.Valid(jobID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return filepath.Join(s.root, jobID), nil
}

// CreateJobDir creates the directory for jobID. An existing directory is an
// error: job ids are never reused.
func (s *LocalStorage) CreateJobDir(ctx context.Context, jobID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0750); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	return dir, nil
}

// SaveUpload writes data into the job directory.
func (s *LocalStorage) SaveUpload(ctx context.Context, jobID, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}

	base := uploadName(name)
	f, err := os.OpenFile(filepath.Join(dir, base), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, os.ErrExist) {
		f, err = os.OpenFile(filepath.Join(dir, fallbackName(base)), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	}
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return fileName, nil
}

// uploadName reduces a client-supplied file name to a safe base name.
// Names that could clash with files the renderer writes are replaced.
func uploadName(name string) string {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	switch {
	case base == "/" || base == "." || strings.HasPrefix(base, "."):
		return fallbackName("")
	case isReserved(base):
		return fallbackName(base)
	}
	return base
}

func isReserved(base string) bool {
	lower := strings.ToLower(base)
	return lower == OutputName ||
		lower == "timeline.mp4" ||
		strings.HasPrefix(lower, "slide_") ||
		strings.HasPrefix(lower, "concat-")
}

// fallbackName returns a generated name keeping the extension of base.
func fallbackName(base string) string {
	return "media-" + uuid.NewString() + strings.ToLower(filepath.Ext(base))
}

// OutputPath returns where the job's final video is written. The id is not
// validated here; callers obtain ids from CreateJobDir.
func (s *LocalStorage) OutputPath(jobID string) string {
	return filepath.Join(s.root, jobID, OutputName)
}

// OpenOutput opens the job's final video.
func (s *LocalStorage) OpenOutput(ctx context.Context, jobID string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.jobDir(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}

	f, err := os.Open(filepath.Join(dir, OutputName)) // #nosec G304 - job id is validated as a UUID
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrArtifactNotFound
	}

	return &Artifact{
		ReadSeekCloser: f,
		Name:           OutputName,
		Size:           info.Size(),
		ModTime:        info.ModTime(),
	}, nil
}

// CleanupTemp removes the specified files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}
