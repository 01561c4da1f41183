package slide

import "unicode/utf8"

// CharsPerSecond approximates reading speed.
const CharsPerSecond = 14.0

// Bounds returns the minimum and maximum on-screen time for a role.
// Unknown roles get the body bounds.
func Bounds(role Role) (floor, ceiling float64) {
	if role == RoleTitle {
		return 7, 8
	}
	return 10, 12
}

// DurationFor estimates how long text should stay on screen, clamped to the
// role's bounds (both ends inclusive).
func DurationFor(text string, role Role) float64 {
	floor, ceiling := Bounds(role)
	secs := float64(utf8.RuneCountInString(text)) / CharsPerSecond
	return min(max(secs, floor), ceiling)
}
