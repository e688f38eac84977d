// Package legend turns a legend image into an ordered sequence of
// (representative color, score) samples.
//
// The legend is cut into equal horizontal bands, top to bottom. Each band is
// represented by the mean color of its non-white pixels and receives one
// score from a linear scale spanning the calibrated minimum and maximum.
package legend

import (
	"errors"
	"fmt"
	"image"
	stdcolor "image/color"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/Ayoubbar/geomapscore/internal/classify"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
)

// ErrConfiguration is returned for unusable calibration inputs or legends.
var ErrConfiguration = errors.New("configuration error")

// DefaultFlatWidth is the width of the flat legend display image.
const DefaultFlatWidth = 100

// Calibration holds the score scale and band count of a legend.
type Calibration struct {
	MinScore float64
	MaxScore float64
	Segments int
}

// DefaultCalibration returns the 0..1 scale split into 10 bands.
func DefaultCalibration() Calibration {
	return Calibration{MinScore: 0, MaxScore: 1, Segments: 10}
}

// ParseCalibration parses textual calibration inputs.
func ParseCalibration(minScore, maxScore, segments string) (Calibration, error) {
	lo, err := strconv.ParseFloat(strings.TrimSpace(minScore), 64)
	if err != nil {
		return Calibration{}, fmt.Errorf("%w: min score %q is not a number", ErrConfiguration, minScore)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(maxScore), 64)
	if err != nil {
		return Calibration{}, fmt.Errorf("%w: max score %q is not a number", ErrConfiguration, maxScore)
	}
	n, err := strconv.Atoi(strings.TrimSpace(segments))
	if err != nil {
		return Calibration{}, fmt.Errorf("%w: segment count %q is not an integer", ErrConfiguration, segments)
	}
	cal := Calibration{MinScore: lo, MaxScore: hi, Segments: n}
	if err := cal.Validate(); err != nil {
		return Calibration{}, err
	}
	return cal, nil
}

// Validate checks that the calibration can produce a score scale.
func (c Calibration) Validate() error {
	if c.Segments <= 0 {
		return fmt.Errorf("%w: segment count must be positive, got %d", ErrConfiguration, c.Segments)
	}
	if math.IsNaN(c.MinScore) || math.IsInf(c.MinScore, 0) {
		return fmt.Errorf("%w: min score must be finite, got %v", ErrConfiguration, c.MinScore)
	}
	if math.IsNaN(c.MaxScore) || math.IsInf(c.MaxScore, 0) {
		return fmt.Errorf("%w: max score must be finite, got %v", ErrConfiguration, c.MaxScore)
	}
	return nil
}

// Scores returns Segments values linearly spaced over [MinScore, MaxScore].
// The first score is exactly MinScore and the last exactly MaxScore.
func (c Calibration) Scores() []float64 {
	n := c.Segments
	dst := make([]float64, n)
	if n == 1 {
		dst[0] = c.MinScore
		return dst
	}
	span := c.MaxScore - c.MinScore
	for i := range dst {
		dst[i] = c.MinScore + float64(i)*span/float64(n-1)
	}
	dst[n-1] = c.MaxScore
	return dst
}

// Sample is one legend band: its representative color and score.
type Sample struct {
	Color mcol.RGB
	Score float64
	// Pixels is the number of non-white pixels the color was averaged from.
	Pixels int
	// Filled is set when the band had no usable pixel and borrowed the
	// color of the nearest band that did.
	Filled bool
}

// Legend is the ordered sample sequence of one calibrated legend image.
// Samples are ordered top to bottom and the order is significant.
type Legend struct {
	Samples       []Sample
	Calibration   Calibration
	Height        int // legend image height in pixels
	SectionHeight int // height of each band in pixels
}

// Segment splits the legend raster into cal.Segments bands and derives one
// sample per band. Rows past Segments*SectionHeight belong to no band.
func Segment(r *imaging.Raster, cal Calibration) (*Legend, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if r.Empty() {
		return nil, fmt.Errorf("%w: legend image has no pixels", ErrConfiguration)
	}
	if r.Height < cal.Segments {
		return nil, fmt.Errorf("%w: %d segments on a legend %d pixels high leaves every band empty", ErrConfiguration, cal.Segments, r.Height)
	}

	sectionHeight := r.Height / cal.Segments
	scores := cal.Scores()
	samples := make([]Sample, cal.Segments)
	valid := make([]bool, cal.Segments)

	for i := range samples {
		samples[i].Score = scores[i]
		c, n := bandMean(r, i*sectionHeight, (i+1)*sectionHeight)
		samples[i].Color = c
		samples[i].Pixels = n
		valid[i] = n > 0
	}

	if err := fillEmptyBands(samples, valid); err != nil {
		return nil, err
	}

	return &Legend{
		Samples:       samples,
		Calibration:   cal,
		Height:        r.Height,
		SectionHeight: sectionHeight,
	}, nil
}

// bandMean averages the non-white pixels of rows [y0, y1) per channel and
// truncates the result. It returns the number of pixels averaged.
func bandMean(r *imaging.Raster, y0, y1 int) (mcol.RGB, int) {
	var rs, gs, bs []float64
	for y := y0; y < y1 && y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := r.At(x, y)
			if classify.IsNearWhite(c) {
				continue
			}
			rs = append(rs, float64(c.R))
			gs = append(gs, float64(c.G))
			bs = append(bs, float64(c.B))
		}
	}
	if len(rs) == 0 {
		return mcol.RGB{}, 0
	}
	return mcol.RGB{
		R: uint8(stat.Mean(rs, nil)),
		G: uint8(stat.Mean(gs, nil)),
		B: uint8(stat.Mean(bs, nil)),
	}, len(rs)
}

// fillEmptyBands gives every band without pixels the color of the nearest
// band that has some; on equal distance the band above wins.
func fillEmptyBands(samples []Sample, valid []bool) error {
	found := false
	for _, v := range valid {
		if v {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: every legend band is empty or white (%d bands)", ErrConfiguration, len(samples))
	}

	for i := range samples {
		if valid[i] {
			continue
		}
		for d := 1; d < len(samples); d++ {
			if j := i - d; j >= 0 && valid[j] {
				samples[i].Color = samples[j].Color
				break
			}
			if j := i + d; j < len(samples) && valid[j] {
				samples[i].Color = samples[j].Color
				break
			}
		}
		samples[i].Filled = true
	}
	return nil
}

// Colors returns the sample colors in band order.
func (l *Legend) Colors() []mcol.RGB {
	out := make([]mcol.RGB, len(l.Samples))
	for i, s := range l.Samples {
		out[i] = s.Color
	}
	return out
}

// Scores returns the sample scores in band order.
func (l *Legend) Scores() []float64 {
	out := make([]float64, len(l.Samples))
	for i, s := range l.Samples {
		out[i] = s.Score
	}
	return out
}

// HasNearBlack reports whether any representative color is near-black,
// meaning black carries a score and must not be treated as a border.
func (l *Legend) HasNearBlack() bool {
	return HasNearBlack(l.Samples)
}

// HasNearBlack reports whether any sample color is near-black.
func HasNearBlack(samples []Sample) bool {
	for _, s := range samples {
		if classify.IsNearBlack(s.Color) {
			return true
		}
	}
	return false
}

// FlatImage renders the legend with each band filled by its representative
// color. Rows outside every band stay black. A non-positive width uses
// DefaultFlatWidth.
func (l *Legend) FlatImage(width int) *image.RGBA {
	if width <= 0 {
		width = DefaultFlatWidth
	}
	img := image.NewRGBA(image.Rect(0, 0, width, l.Height))
	black := stdcolor.RGBA{A: 255}
	for y := 0; y < l.Height; y++ {
		c := black
		if l.SectionHeight > 0 {
			if i := y / l.SectionHeight; i < len(l.Samples) {
				c = l.Samples[i].Color.ToStdColor()
			}
		}
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
