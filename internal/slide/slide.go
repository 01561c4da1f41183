// Package slide holds the slide model and the planning steps that run before
// any media work: text segmentation, duration estimation and background
// asset allocation. Everything here is pure and deterministic.
package slide

// Role is the slide category. It governs font size and duration bounds.
type Role string

const (
	// RoleTitle is a headline slide.
	RoleTitle Role = "title"
	// RoleBody is a regular caption slide.
	RoleBody Role = "body"
)

// IsValid returns true if the role is known.
func (r Role) IsValid() bool {
	return r == RoleTitle || r == RoleBody
}

// Slide is one timed caption segment with an optional background asset.
type Slide struct {
	// Role selects font size and duration bounds.
	Role Role
	// Text is the caption, at most MaxChunkLen runes.
	Text string
	// Duration is how long the caption stays visible, in seconds.
	// It excludes the lead-in and lag-out padding.
	Duration float64
	// Asset is the background media path. Empty means a plain white background.
	Asset string
}

// HasAsset returns true if a background file was assigned to the slide.
func (s Slide) HasAsset() bool {
	return s.Asset != ""
}

// Build synthesizes slides from a title, an intro paragraph and body
// paragraphs. Every text is segmented; empty chunks produce no slide.
func Build(title, intro string, body []string) []Slide {
	var slides []Slide
	slides = appendSegmented(slides, RoleTitle, title)
	slides = appendSegmented(slides, RoleBody, intro)
	for _, text := range body {
		slides = appendSegmented(slides, RoleBody, text)
	}
	return slides
}

func appendSegmented(slides []Slide, role Role, text string) []Slide {
	for _, chunk := range Segment(text) {
		if chunk == "" {
			continue
		}
		slides = append(slides, Slide{
			Role:     role,
			Text:     chunk,
			Duration: DurationFor(chunk, role),
		})
	}
	return slides
}
