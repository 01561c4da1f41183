package slide

// Usage counts how many slides each asset path was assigned to.
type Usage map[string]int

// Spread returns the difference between the most and least used asset.
func (u Usage) Spread() int {
	first := true
	var lo, hi int
	for _, n := range u {
		if first {
			lo, hi, first = n, n, false
			continue
		}
		lo, hi = min(lo, n), max(hi, n)
	}
	return hi - lo
}

// AssignAssets gives every slide the least-used path, breaking ties by the
// order of paths. With no paths every slide is left without an asset.
func AssignAssets(slides []Slide, paths []string) Usage {
	use := make(Usage, len(paths))
	for _, p := range paths {
		use[p] = 0
	}
	for i := range slides {
		if len(paths) == 0 {
			slides[i].Asset = ""
			continue
		}
		pick := paths[0]
		for _, p := range paths[1:] {
			if use[p] < use[pick] {
				pick = p
			}
		}
		slides[i].Asset = pick
		use[pick]++
	}
	return use
}
