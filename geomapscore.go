// Package geomapscore scores colored maps against a calibrated color legend.
//
// A legend is a vertical color bar split into equal bands, each band
// carrying a score linearly spaced between a minimum and a maximum. Every
// colored pixel of a map is matched to a band and the map's score is the
// average over those pixels. White background never counts; grey and black
// background is rewritten to white depending on the options.
//
// Usage as a library:
//
//	legendImg, _ := geomapscore.LoadImage("legend.png")
//	mapImg, _ := geomapscore.LoadImage("map.png")
//	opts := geomapscore.DefaultOptions()
//	opts.Calibration = geomapscore.Calibration{MinScore: 0, MaxScore: 10, Segments: 10}
//	result, _ := geomapscore.Evaluate(legendImg, mapImg, opts)
//	fmt.Printf("%.2f\n", result.AverageScore)
//
// Or use the file-based convenience:
//
//	result, err := geomapscore.EvaluateFiles("legend.png", "map.png", "scored.png", opts)
package geomapscore

import (
	"fmt"
	"image"
	stdcolor "image/color"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	"github.com/Ayoubbar/geomapscore/internal/classify"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
	"github.com/Ayoubbar/geomapscore/internal/matching"
	"github.com/Ayoubbar/geomapscore/internal/renderer"
)

var (
	// ErrConfiguration reports unusable calibration inputs or a legend
	// without any colored band.
	ErrConfiguration = legend.ErrConfiguration

	// ErrPrecondition reports scoring without a legend or without a map.
	ErrPrecondition = aggregation.ErrPrecondition
)

// Color represents an opaque RGB color with 8-bit components.
type Color struct {
	R, G, B uint8
}

// Hex formats the color as "#rrggbb".
func (c Color) Hex() string { return toRGB(c).Hex() }

// ParseColor parses "#rgb", "#rrggbb" or "r,g,b".
func ParseColor(s string) (Color, error) {
	c, err := mcol.Parse(s)
	if err != nil {
		return Color{}, err
	}
	return fromRGB(c), nil
}

// Calibration is the score scale of a legend.
type Calibration struct {
	// MinScore is the score of the top band.
	MinScore float64
	// MaxScore is the score of the bottom band. It may be below MinScore.
	MaxScore float64
	// Segments is the number of bands. Must be positive.
	Segments int
}

// ParseCalibration parses textual calibration inputs. Errors wrap
// ErrConfiguration.
func ParseCalibration(minScore, maxScore, segments string) (Calibration, error) {
	cal, err := legend.ParseCalibration(minScore, maxScore, segments)
	if err != nil {
		return Calibration{}, err
	}
	return Calibration(cal), nil
}

// Sample is one legend band.
type Sample struct {
	Color  Color
	Score  float64
	Pixels int  // non-white pixels the color was averaged from
	Filled bool // the band was empty and borrowed a neighbour's color
}

// Legend is an ordered sample sequence, top band first.
type Legend struct {
	Samples       []Sample
	Calibration   Calibration
	Height        int
	SectionHeight int
}

// FlatImage renders each band filled with its sample color.
func (l *Legend) FlatImage(width int) *image.RGBA {
	return l.internal().FlatImage(width)
}

// Decision is what happens to one map pixel before scoring.
type Decision int

const (
	Keep    Decision = Decision(classify.Keep)    // scored
	Skip    Decision = Decision(classify.Skip)    // white background, not scored
	Rewrite Decision = Decision(classify.Rewrite) // grey or black background, turned white
)

func (d Decision) String() string { return classify.Decision(d).String() }

// Options configures an evaluation.
type Options struct {
	// Calibration is used by Evaluate and EvaluateFiles to segment the
	// legend image. DefaultOptions sets 0 to 1 over 10 bands; a zero
	// Calibration has no segments and fails with ErrConfiguration.
	Calibration Calibration

	// BlackAndWhite keeps near-grey map pixels as data. Default: false.
	BlackAndWhite bool

	// BlackInLegend forces whether near-black map pixels are data. When nil
	// it is true if any legend sample is near-black.
	BlackInLegend *bool

	// Font draws the labels of the rendered result image. If nil, a built-in
	// bitmap font is used.
	Font FontRenderer
}

// FontRenderer is the interface for drawing text onto images.
// Implement this to provide a custom font (e.g., TTF rendering).
type FontRenderer interface {
	// DrawString draws text centered at (cx, cy) on the image with the
	// specified color and approximate height in pixels.
	DrawString(img *image.RGBA, text string, cx, cy int, col stdcolor.Color, size int)

	// MeasureString returns the approximate width and height of the text
	// at the given font size.
	MeasureString(text string, size int) (width, height int)
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{Calibration: Calibration(legend.DefaultCalibration())}
}

// ScoreGrid holds one value per map pixel in row-major order. Pixels that
// were not scored hold 0 and are marked false in Scored.
type ScoreGrid struct {
	Width, Height int
	Values        []float64
	Scored        []bool
}

// At returns the score of pixel (x, y).
func (g ScoreGrid) At(x, y int) float64 { return g.Values[y*g.Width+x] }

// Result is the outcome of scoring one map.
type Result struct {
	// MatchedColors are the distinct sample colors that at least one pixel
	// matched, sorted by channel.
	MatchedColors []Color
	Scores        ScoreGrid
	TotalScore    float64
	PixelCount    int
	// AverageScore is TotalScore / PixelCount, or 0 when no pixel was scored.
	AverageScore float64
	// Counts[i] is the number of pixels that matched sample i.
	Counts         []int
	StdDev         float64
	LegendHasBlack bool

	// Processed is the map after background rewrites.
	Processed *image.RGBA
	// Image is the processed map with the legend and average rendered below.
	// Only set by Evaluate and EvaluateFiles.
	Image *image.RGBA
}

// LoadImage reads an image from disk. Supports PNG, JPEG, BMP, TIFF, GIF
// and WEBP.
func LoadImage(path string) (image.Image, error) {
	return imaging.Load(path)
}

// SavePNG writes an image to disk as PNG.
func SavePNG(path string, img image.Image) error {
	return imaging.SavePNG(path, img)
}

// SegmentLegend splits a legend image into cal.Segments equal bands and
// returns one sample per band.
func SegmentLegend(img image.Image, cal Calibration) (*Legend, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: legend image is nil", ErrConfiguration)
	}
	l, err := legend.Segment(imaging.FromImage(img), legend.Calibration(cal))
	if err != nil {
		return nil, err
	}
	return fromLegend(l), nil
}

// MatchColor returns the index of the legend sample c scores as, or -1 for
// an empty legend.
func MatchColor(c Color, l *Legend) int {
	if l == nil {
		return -1
	}
	return matching.Match(toRGB(c), l.internal().Samples)
}

// ClassifyBackground decides whether a map pixel is scored, skipped or
// rewritten to white.
func ClassifyBackground(c Color, blackAndWhite, legendHasBlack bool) Decision {
	return Decision(classify.Classify(toRGB(c), blackAndWhite, legendHasBlack))
}

// ScoreMap scores a map image against l. img is not modified.
func ScoreMap(img image.Image, l *Legend, opts Options) (*Result, error) {
	if l == nil || len(l.Samples) == 0 {
		return nil, fmt.Errorf("%w: no legend", ErrPrecondition)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: no map image", ErrPrecondition)
	}
	res, processed, err := aggregation.Score(imaging.FromImage(img), l.internal().Samples, aggregation.Options{
		BlackAndWhite:  opts.BlackAndWhite,
		LegendHasBlack: opts.BlackInLegend,
	})
	if err != nil {
		return nil, err
	}
	return fromResult(res, processed), nil
}

// Evaluate segments legendImg with opts.Calibration, scores mapImg and
// renders the annotated result image.
func Evaluate(legendImg, mapImg image.Image, opts Options) (*Result, error) {
	l, err := SegmentLegend(legendImg, opts.Calibration)
	if err != nil {
		return nil, fmt.Errorf("segmenting legend: %w", err)
	}
	if mapImg == nil {
		return nil, fmt.Errorf("%w: no map image", ErrPrecondition)
	}

	res, processed, err := aggregation.Score(imaging.FromImage(mapImg), l.internal().Samples, aggregation.Options{
		BlackAndWhite:  opts.BlackAndWhite,
		LegendHasBlack: opts.BlackInLegend,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring map: %w", err)
	}

	out := fromResult(res, processed)
	rcfg := renderer.DefaultConfig()
	rcfg.ScaleForWidth(processed.Width)
	out.Image = renderer.Render(processed, l.internal(), res, resolveFont(opts.Font), rcfg)
	return out, nil
}

// EvaluateFiles is a convenience that loads both images, evaluates them and
// saves the rendered result as PNG to outPath.
func EvaluateFiles(legendPath, mapPath, outPath string, opts Options) (*Result, error) {
	legendImg, err := LoadImage(legendPath)
	if err != nil {
		return nil, fmt.Errorf("loading legend: %w", err)
	}
	mapImg, err := LoadImage(mapPath)
	if err != nil {
		return nil, fmt.Errorf("loading map: %w", err)
	}

	res, err := Evaluate(legendImg, mapImg, opts)
	if err != nil {
		return nil, err
	}

	if err := SavePNG(outPath, res.Image); err != nil {
		return nil, fmt.Errorf("saving output: %w", err)
	}
	return res, nil
}

// resolveFont returns a renderer.FontRenderer, using the built-in bitmap font
// if the user did not provide one.
func resolveFont(f FontRenderer) renderer.FontRenderer {
	if f != nil {
		return &fontAdapter{f}
	}
	return renderer.NewBitmapFont()
}

// fontAdapter adapts the public FontRenderer interface to the internal one.
type fontAdapter struct {
	f FontRenderer
}

func (a *fontAdapter) DrawString(img *image.RGBA, text string, cx, cy int, col stdcolor.Color, size int) {
	a.f.DrawString(img, text, cx, cy, col, size)
}

func (a *fontAdapter) MeasureString(text string, size int) (int, int) {
	return a.f.MeasureString(text, size)
}

func toRGB(c Color) mcol.RGB   { return mcol.RGB{R: c.R, G: c.G, B: c.B} }
func fromRGB(c mcol.RGB) Color { return Color{R: c.R, G: c.G, B: c.B} }

func fromLegend(l *legend.Legend) *Legend {
	out := &Legend{
		Samples:       make([]Sample, len(l.Samples)),
		Calibration:   Calibration(l.Calibration),
		Height:        l.Height,
		SectionHeight: l.SectionHeight,
	}
	for i, s := range l.Samples {
		out.Samples[i] = Sample{Color: fromRGB(s.Color), Score: s.Score, Pixels: s.Pixels, Filled: s.Filled}
	}
	return out
}

func (l *Legend) internal() *legend.Legend {
	out := &legend.Legend{
		Samples:       make([]legend.Sample, len(l.Samples)),
		Calibration:   legend.Calibration(l.Calibration),
		Height:        l.Height,
		SectionHeight: l.SectionHeight,
	}
	for i, s := range l.Samples {
		out.Samples[i] = legend.Sample{Color: toRGB(s.Color), Score: s.Score, Pixels: s.Pixels, Filled: s.Filled}
	}
	return out
}

func fromResult(res *aggregation.Result, processed *imaging.Raster) *Result {
	out := &Result{
		Scores: ScoreGrid{
			Width:  res.ScoreMap.Width,
			Height: res.ScoreMap.Height,
			Values: res.ScoreMap.Values,
			Scored: res.ScoreMap.Scored,
		},
		TotalScore:     res.TotalScore,
		PixelCount:     res.PixelCount,
		AverageScore:   res.AverageScore,
		Counts:         res.Counts,
		StdDev:         res.StdDev(),
		LegendHasBlack: res.LegendHasBlack,
		Processed:      processed.ToImage(),
	}
	for _, c := range res.MatchedColors.Sorted() {
		out.MatchedColors = append(out.MatchedColors, fromRGB(c))
	}
	return out
}
