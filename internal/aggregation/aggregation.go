// Package aggregation scores every pixel of a map against the legend samples
// and reduces the per-pixel scores to a map-wide average.
package aggregation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/Ayoubbar/geomapscore/internal/classify"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
	"github.com/Ayoubbar/geomapscore/internal/matching"
)

// ErrPrecondition is returned when a map is scored without a legend or
// without a map.
var ErrPrecondition = errors.New("legend and map both required")

// numWorkers is fixed so partial sums are always reduced in the same order
// and repeated runs produce bit-identical averages.
const numWorkers = 8

// ScoreMap holds one score per map pixel, row-major: index = y*Width + x.
// Excluded pixels hold 0 and have Scored false.
type ScoreMap struct {
	Width, Height int
	Values        []float64
	Scored        []bool
}

// NewScoreMap allocates an all-zero score map.
func NewScoreMap(w, h int) *ScoreMap {
	return &ScoreMap{
		Width:  w,
		Height: h,
		Values: make([]float64, w*h),
		Scored: make([]bool, w*h),
	}
}

// At returns the score at (x, y).
func (m *ScoreMap) At(x, y int) float64 {
	return m.Values[y*m.Width+x]
}

// IsScored reports whether the pixel at (x, y) contributed to the average.
func (m *ScoreMap) IsScored(x, y int) bool {
	return m.Scored[y*m.Width+x]
}

// ColorSet is a set of legend colors.
type ColorSet map[mcol.RGB]struct{}

// Add inserts c.
func (s ColorSet) Add(c mcol.RGB) { s[c] = struct{}{} }

// Has reports whether c is in the set.
func (s ColorSet) Has(c mcol.RGB) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the colors ordered by R, then G, then B.
func (s ColorSet) Sorted() []mcol.RGB {
	out := make([]mcol.RGB, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.R != b.R {
			return a.R < b.R
		}
		if a.G != b.G {
			return a.G < b.G
		}
		return a.B < b.B
	})
	return out
}

// Result is the outcome of scoring one map.
type Result struct {
	MatchedColors ColorSet
	ScoreMap      *ScoreMap
	TotalScore    float64
	PixelCount    int
	// AverageScore is TotalScore / PixelCount, or 0 when nothing was scored.
	AverageScore float64
	// Counts[i] is the number of pixels assigned to sample i.
	Counts []int

	// Rewrites performed before scoring, and the flags that drove them.
	Rewrites       classify.Stats
	BlackAndWhite  bool
	LegendHasBlack bool
}

// StdDev returns the standard deviation of the scored pixels, or 0 when
// fewer than two pixels were scored.
func (r *Result) StdDev() float64 {
	if r.PixelCount < 2 {
		return 0
	}
	vals := make([]float64, 0, r.PixelCount)
	for i, ok := range r.ScoreMap.Scored {
		if ok {
			vals = append(vals, r.ScoreMap.Values[i])
		}
	}
	return stat.StdDev(vals, nil)
}

// partial is one worker's private accumulator.
type partial struct {
	total  float64
	count  int
	counts []int
	colors ColorSet
}

// Aggregate scores every non-white pixel of r. Near-white pixels are
// skipped: they stay 0 in the score map and never reach MatchedColors.
func Aggregate(r *imaging.Raster, samples []legend.Sample) (*Result, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no legend samples", ErrPrecondition)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no map image", ErrPrecondition)
	}

	w, h := r.Width, r.Height
	sm := NewScoreMap(w, h)
	parts := make([]partial, numWorkers)

	parallelRows(h, func(band, sy, ey int) {
		p := partial{counts: make([]int, len(samples)), colors: ColorSet{}}
		m := matching.NewMatcher(samples)
		for y := sy; y < ey; y++ {
			for x := 0; x < w; x++ {
				idx := y*w + x
				c := r.Pix[idx]
				if classify.IsNearWhite(c) {
					continue
				}
				si := m.Match(c)
				s := samples[si]
				p.colors.Add(s.Color)
				sm.Values[idx] = s.Score
				sm.Scored[idx] = true
				p.total += s.Score
				p.count++
				p.counts[si]++
			}
		}
		parts[band] = p
	})

	res := &Result{
		MatchedColors: ColorSet{},
		ScoreMap:      sm,
		Counts:        make([]int, len(samples)),
	}
	for _, p := range parts {
		res.TotalScore += p.total
		res.PixelCount += p.count
		for i, n := range p.counts {
			res.Counts[i] += n
		}
		for c := range p.colors {
			res.MatchedColors.Add(c)
		}
	}
	if res.PixelCount > 0 {
		res.AverageScore = res.TotalScore / float64(res.PixelCount)
	}
	return res, nil
}

// Options selects the background rewrites applied before scoring.
type Options struct {
	// BlackAndWhite disables the near-grey rewrite.
	BlackAndWhite bool
	// LegendHasBlack keeps near-black map pixels as data. When nil it is
	// derived from the samples.
	LegendHasBlack *bool
}

// Score applies the background rewrites to a copy of r and aggregates the
// result. The rewritten raster is returned alongside the scores.
func Score(r *imaging.Raster, samples []legend.Sample, opts Options) (*Result, *imaging.Raster, error) {
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("%w: no legend samples", ErrPrecondition)
	}
	if r == nil {
		return nil, nil, fmt.Errorf("%w: no map image", ErrPrecondition)
	}

	hasBlack := legend.HasNearBlack(samples)
	if opts.LegendHasBlack != nil {
		hasBlack = *opts.LegendHasBlack
	}

	processed, st := classify.Prepare(r, opts.BlackAndWhite, hasBlack)
	res, err := Aggregate(processed, samples)
	if err != nil {
		return nil, nil, err
	}
	res.Rewrites = st
	res.BlackAndWhite = opts.BlackAndWhite
	res.LegendHasBlack = hasBlack
	return res, processed, nil
}

// parallelRows runs fn across numWorkers row bands using one goroutine per
// band. Bands are numbered top to bottom.
func parallelRows(h int, fn func(band, startY, endY int)) {
	rowsPerWorker := (h + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for worker := 0; worker < numWorkers; worker++ {
		startY := worker * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		if startY >= h {
			break
		}
		wg.Add(1)
		go func(band, sy, ey int) {
			defer wg.Done()
			fn(band, sy, ey)
		}(worker, startY, endY)
	}
	wg.Wait()
}
