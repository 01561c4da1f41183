// Package server provides the HTTP surface of the render service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/slidecast/internal/job"
	"github.com/maauso/slidecast/internal/slide"
)

// SlideRequest is one entry of the slides_json form field.
type SlideRequest struct {
	// Role is "title" or "body".
	Role string `json:"role" validate:"required,oneof=title body"`
	// Text is the caption, at most 160 characters.
	Text string `json:"text" validate:"max=160"`
	// Duration overrides the estimated on-screen time when positive.
	Duration float64 `json:"duration" validate:"gte=0"`
}

// BodyItem is one entry of the body form field.
type BodyItem struct {
	Text string `json:"text"`
}

// RenderRequest holds the non-file fields of POST /render.
type RenderRequest struct {
	Orientation string         `validate:"oneof=vertical landscape"`
	Slides      []SlideRequest `validate:"omitempty,dive"`
	Title       string
	Intro       string
	Body        []BodyItem
}

// input converts the request to the service input. Uploads are attached by
// the handler.
func (r RenderRequest) input() job.RenderInput {
	in := job.RenderInput{
		Orientation: job.Orientation(r.Orientation),
		Title:       r.Title,
		Intro:       r.Intro,
	}
	if r.Slides != nil {
		in.Slides = make([]slide.Slide, len(r.Slides))
		for i, s := range r.Slides {
			in.Slides[i] = slide.Slide{Role: slide.Role(s.Role), Text: s.Text, Duration: s.Duration}
		}
	}
	for _, b := range r.Body {
		in.Body = append(in.Body, b.Text)
	}
	return in
}

// RenderResponse is the HTTP response after a successful render.
type RenderResponse struct {
	// FinalURL is the relative download path.
	FinalURL string `json:"final_url"`
	// VideoURL is the published URL when S3 publishing is enabled.
	VideoURL string `json:"video_url,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID           string    `json:"id"`
	Stage        string    `json:"stage"`
	Orientation  string    `json:"orientation"`
	SlideCount   int       `json:"slide_count"`
	Duration     float64   `json:"duration"`
	MusicApplied bool      `json:"music_applied"`
	Done         bool      `json:"done"`
	Error        string    `json:"error,omitempty"`
	FinalURL     string    `json:"final_url,omitempty"`
	VideoURL     string    `json:"video_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		Stage:        string(j.Stage),
		Orientation:  string(j.Orientation),
		SlideCount:   j.SlideCount,
		Duration:     j.Duration,
		MusicApplied: j.MusicApplied,
		Done:         j.IsTerminal(),
		Error:        j.Error,
		VideoURL:     j.VideoURL,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	if j.Stage == job.StageReady {
		resp.FinalURL = job.DownloadPath(j.ID)
	}
	return resp
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
