package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/slidecast/internal/job"
	"github.com/maauso/slidecast/internal/storage"
)

// multipartMemory is how much of a multipart form is kept in memory before
// file parts spill to disk.
const multipartMemory = 32 << 20

// RenderService is the part of job.RenderService the handlers depend on.
type RenderService interface {
	Render(ctx context.Context, in job.RenderInput) (*job.RenderOutput, error)
	GetJob(ctx context.Context, jobID string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	OpenArtifact(ctx context.Context, jobID string) (*storage.Artifact, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        RenderService
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the size of a render request body.
// Zero or less disables the cap.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		h.maxUploadBytes = n
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service RenderService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Render handles POST /render requests. The render runs to completion before
// the response is written.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), "PAYLOAD_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to parse form", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid form body", "INVALID_FORM")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	req, err := decodeRenderRequest(r)
	if err != nil {
		h.logger.Error("failed to decode render request", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error(), "RENDER_FAILED")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := req.input()
	closers, err := attachUploads(r, &input)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		h.logger.Error("failed to open upload", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read upload", "RENDER_FAILED")
		return
	}

	// The render must outlive a client that hangs up mid-request.
	out, err := h.service.Render(context.WithoutCancel(r.Context()), input)
	if err != nil {
		if errors.Is(err, job.ErrNoSlides) || errors.Is(err, job.ErrInvalidSlide) || errors.Is(err, job.ErrInvalidOrientation) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("render failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "render failed", "RENDER_FAILED")
		return
	}

	h.logger.Info("render completed",
		slog.String("job_id", out.JobID),
		slog.Int("slides", out.SlideCount),
		slog.Float64("duration", out.Duration),
		slog.Bool("music", out.MusicApplied),
	)

	writeJSON(w, http.StatusOK, RenderResponse{
		FinalURL: out.FinalURL,
		VideoURL: out.VideoURL,
	})
}

// Download handles GET /download/{job_id} requests.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	art, err := h.service.OpenArtifact(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open artifact",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open video", "DOWNLOAD_FAILED")
		return
	}
	defer art.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	http.ServeContent(w, r, art.Name, art.ModTime, art)
}

// GetJob handles GET /jobs/{job_id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// decodeRenderRequest reads the text fields of a render form. A malformed
// slides_json or body field is an error; an empty one is treated as absent.
func decodeRenderRequest(r *http.Request) (RenderRequest, error) {
	req := RenderRequest{
		Orientation: r.FormValue("orientation"),
		Title:       r.FormValue("title"),
		Intro:       r.FormValue("intro"),
	}
	if req.Orientation == "" {
		req.Orientation = string(job.OrientationVertical)
	}
	if raw := r.FormValue("slides_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Slides); err != nil {
			return req, fmt.Errorf("decode slides_json: %w", err)
		}
	}
	if raw := r.FormValue("body"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Body); err != nil {
			return req, fmt.Errorf("decode body: %w", err)
		}
	}
	return req, nil
}

// attachUploads opens the media and music parts and adds them to in.
// The returned files must be closed by the caller, also on error.
func attachUploads(r *http.Request, in *job.RenderInput) ([]io.Closer, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var closers []io.Closer
	open := func(fh *multipart.FileHeader) (job.Upload, error) {
		f, err := fh.Open()
		if err != nil {
			return job.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		closers = append(closers, f)
		return job.Upload{Name: fh.Filename, Content: f}, nil
	}

	for _, fh := range r.MultipartForm.File["media"] {
		u, err := open(fh)
		if err != nil {
			return closers, err
		}
		in.Media = append(in.Media, u)
	}
	if music := r.MultipartForm.File["music"]; len(music) > 0 {
		u, err := open(music[0])
		if err != nil {
			return closers, err
		}
		in.Music = &u
	}
	return closers, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
