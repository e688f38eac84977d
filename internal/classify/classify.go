// Package classify decides which map pixels are background and must not be
// scored: near-white paper, near-grey anti-aliasing and near-black borders.
package classify

import (
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
)

// Classification thresholds on 8-bit channels.
const (
	WhiteMin = 250 // every channel >= WhiteMin is near-white
	GreyGap  = 20  // pairwise channel gaps <= GreyGap is near-grey
	BlackMax = 15  // every channel <= BlackMax is near-black
)

// Decision is the outcome of classifying one pixel.
type Decision int

const (
	// Keep means the pixel is scored.
	Keep Decision = iota
	// Skip means the pixel is near-white and excluded from scoring.
	Skip
	// Rewrite means the pixel is rewritten to white before scoring, which
	// in turn excludes it.
	Rewrite
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Skip:
		return "skip"
	case Rewrite:
		return "rewrite"
	default:
		return "unknown"
	}
}

// IsNearWhite reports whether all three channels are >= WhiteMin.
func IsNearWhite(c mcol.RGB) bool {
	return c.R >= WhiteMin && c.G >= WhiteMin && c.B >= WhiteMin
}

// IsNearGrey reports whether the three channels are within GreyGap of each other.
func IsNearGrey(c mcol.RGB) bool {
	r, g, b := int(c.R), int(c.G), int(c.B)
	return abs(r-g) <= GreyGap && abs(r-b) <= GreyGap && abs(g-b) <= GreyGap
}

// IsNearBlack reports whether all three channels are <= BlackMax.
func IsNearBlack(c mcol.RGB) bool {
	return c.R <= BlackMax && c.G <= BlackMax && c.B <= BlackMax
}

// Classify applies the background rules in order: near-grey pixels are
// rewritten on color maps, near-black pixels are rewritten when the legend
// has no black, and whatever is near-white is skipped.
func Classify(c mcol.RGB, blackAndWhite, legendHasBlack bool) Decision {
	if !blackAndWhite && IsNearGrey(c) {
		return Rewrite
	}
	if !legendHasBlack && IsNearBlack(c) {
		return Rewrite
	}
	if IsNearWhite(c) {
		return Skip
	}
	return Keep
}

// Stats counts the rewrites performed by Prepare.
type Stats struct {
	GreyRewritten  int
	BlackRewritten int
}

// Prepare returns a copy of r with the map-wide rewrites applied: first
// near-grey to white (color maps only), then near-black to white (legends
// without black). The input raster is left untouched.
func Prepare(r *imaging.Raster, blackAndWhite, legendHasBlack bool) (*imaging.Raster, Stats) {
	out := r.Clone()
	var st Stats
	if !blackAndWhite {
		st.GreyRewritten = rewrite(out, IsNearGrey)
	}
	if !legendHasBlack {
		st.BlackRewritten = rewrite(out, IsNearBlack)
	}
	return out, st
}

func rewrite(r *imaging.Raster, match func(mcol.RGB) bool) int {
	n := 0
	for i, c := range r.Pix {
		if c != mcol.White && match(c) {
			r.Pix[i] = mcol.White
			n++
		}
	}
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
