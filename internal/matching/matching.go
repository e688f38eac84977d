// Package matching maps a pixel color onto the ordered legend samples.
package matching

import (
	"math"

	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/legend"
)

// Nearest returns the index of the sample closest to c in RGB space and
// its distance. Ties go to the lowest index. It returns -1 for an empty
// sample sequence.
func Nearest(c mcol.RGB, samples []legend.Sample) (int, float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, s := range samples {
		if d := mcol.DistanceRGB(c, s.Color); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best, bestDist
}

// Match returns the index of the sample whose score applies to c.
//
// An exact color match on the nearest sample wins outright. Otherwise the
// first adjacent pair of samples that bounds c on all three channels decides,
// and the member of that pair with the strictly lower score is chosen (the
// second member on equal scores). When no pair bounds c the nearest sample
// is used. Match returns -1 for an empty sample sequence.
func Match(c mcol.RGB, samples []legend.Sample) int {
	nearest, _ := Nearest(c, samples)
	if nearest < 0 {
		return -1
	}
	if samples[nearest].Color == c {
		return nearest
	}
	if i, ok := Bounding(c, samples); ok {
		if samples[i].Score < samples[i+1].Score {
			return i
		}
		return i + 1
	}
	return nearest
}

// Bounding returns the first index i such that c lies between samples i and
// i+1 on every channel, inclusive and in either direction.
func Bounding(c mcol.RGB, samples []legend.Sample) (int, bool) {
	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i].Color, samples[i+1].Color
		if mcol.Between(c.R, a.R, b.R) && mcol.Between(c.G, a.G, b.G) && mcol.Between(c.B, a.B, b.B) {
			return i, true
		}
	}
	return 0, false
}

// Matcher memoizes Match over one sample sequence. Maps rarely hold more
// than a few thousand distinct colors, so repeated pixels resolve from the
// cache. A Matcher is not safe for concurrent use; give each worker its own.
type Matcher struct {
	samples []legend.Sample
	cache   map[mcol.RGB]int
}

// NewMatcher returns a Matcher over samples. The slice must not be mutated
// while the Matcher is in use.
func NewMatcher(samples []legend.Sample) *Matcher {
	return &Matcher{samples: samples, cache: make(map[mcol.RGB]int)}
}

// Match is the memoized form of the package-level Match.
func (m *Matcher) Match(c mcol.RGB) int {
	if idx, ok := m.cache[c]; ok {
		return idx
	}
	idx := Match(c, m.samples)
	m.cache[c] = idx
	return idx
}
