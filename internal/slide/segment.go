package slide

import "strings"

const (
	// MaxChunkLen is the maximum caption length in runes.
	MaxChunkLen = 160
	// Ellipsis marks every chunk that continues on the next slide.
	Ellipsis = "…"

	// minBreak is the shortest prefix accepted when breaking at a space.
	// Below it the chunk is cut hard at the boundary.
	minBreak = 60
)

// Segment splits text into chunks of at most MaxChunkLen runes.
// Breaks happen at the last space inside the window unless that would leave
// a chunk shorter than 60 runes. Every chunk except the last ends with
// Ellipsis. Empty input yields a single empty chunk.
func Segment(text string) []string {
	rest := []rune(strings.TrimSpace(text))
	var out []string
	for len(rest) > MaxChunkLen {
		limit := MaxChunkLen - 1
		window := rest[:limit]
		cut := lastSpace(window)
		if cut < minBreak {
			cut = limit
		}
		out = append(out, strings.TrimSpace(string(window[:cut]))+Ellipsis)
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}
	return append(out, string(rest))
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' {
			return i
		}
	}
	return -1
}
