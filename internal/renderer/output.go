package renderer

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
)

// Config holds rendering configuration.
type Config struct {
	LegendPadding    int // vertical padding above and below the legend
	LegendCircleSize int // diameter of legend color circles
	LegendSpacing    int // spacing between legend items
	LegendMargin     int // left/right margin for the legend area
	FontSize         int // approximate text height in pixels
}

// DefaultConfig returns sensible default rendering configuration.
func DefaultConfig() Config {
	return Config{
		LegendPadding:    20,
		LegendCircleSize: 30,
		LegendSpacing:    15,
		LegendMargin:     20,
		FontSize:         14,
	}
}

// ScaleForWidth enlarges the legend elements for wide maps.
func (cfg *Config) ScaleForWidth(w int) {
	if w > 1000 {
		cfg.LegendCircleSize = 50
		cfg.LegendSpacing = 25
		cfg.LegendPadding = 30
		cfg.LegendMargin = 30
		cfg.FontSize = 21
	} else if w > 500 {
		cfg.LegendCircleSize = 36
		cfg.LegendSpacing = 18
		cfg.LegendPadding = 24
		cfg.LegendMargin = 24
		cfg.FontSize = 14
	}
}

var (
	white       = color.RGBA{255, 255, 255, 255}
	separator   = color.RGBA{200, 200, 200, 255}
	unmatchedBd = color.RGBA{200, 200, 200, 255}
	matchedBd   = color.RGBA{40, 40, 40, 255}
)

// Render produces the result image: the processed map on top, then the
// average score line and the legend samples with their scores. Samples that
// matched at least one pixel get a dark outline.
func Render(processed *imaging.Raster, l *legend.Legend, res *aggregation.Result, font FontRenderer, cfg Config) *image.RGBA {
	srcW, srcH := processed.Width, processed.Height
	_, textH := font.MeasureString("0", cfg.FontSize)

	legendHeight := calculateLegendHeight(l, font, cfg, srcW)
	totalH := srcH + legendHeight

	out := image.NewRGBA(image.Rect(0, 0, srcW, totalH))
	for y := 0; y < totalH; y++ {
		for x := 0; x < srcW; x++ {
			if y < srcH {
				c := processed.At(x, y)
				out.SetRGBA(x, y, color.RGBA{c.R, c.G, c.B, 255})
			} else {
				out.SetRGBA(x, y, white)
			}
		}
	}

	if legendHeight == 0 {
		return out
	}

	separatorY := srcH + cfg.LegendPadding/2
	for x := cfg.LegendMargin; x < srcW-cfg.LegendMargin; x++ {
		out.SetRGBA(x, separatorY, separator)
	}

	title := fmt.Sprintf("Average score: %.2f", res.AverageScore)
	font.DrawString(out, title, srcW/2, srcH+cfg.LegendPadding+textH/2, color.Black, cfg.FontSize)

	drawLegend(out, l, res, font, cfg, srcW, srcH+cfg.LegendPadding+textH+cfg.LegendSpacing)
	return out
}

// ScoreLabel formats a sample score for display.
func ScoreLabel(score float64) string {
	return fmt.Sprintf("%.2f", score)
}

func itemWidth(l *legend.Legend, font FontRenderer, cfg Config) int {
	w := cfg.LegendCircleSize
	for _, s := range l.Samples {
		if lw, _ := font.MeasureString(ScoreLabel(s.Score), cfg.FontSize); lw > w {
			w = lw
		}
	}
	return w + cfg.LegendSpacing
}

func itemsPerRow(l *legend.Legend, font FontRenderer, cfg Config, imgW int) int {
	availableW := imgW - 2*cfg.LegendMargin
	n := availableW / itemWidth(l, font, cfg)
	if n < 1 {
		n = 1
	}
	return n
}

func calculateLegendHeight(l *legend.Legend, font FontRenderer, cfg Config, imgW int) int {
	if l == nil || len(l.Samples) == 0 {
		return 0
	}
	_, textH := font.MeasureString("0", cfg.FontSize)
	perRow := itemsPerRow(l, font, cfg, imgW)
	numRows := (len(l.Samples) + perRow - 1) / perRow
	rowHeight := cfg.LegendCircleSize + textH + cfg.LegendSpacing
	return cfg.LegendPadding + textH + cfg.LegendSpacing + numRows*rowHeight + cfg.LegendPadding
}

func drawLegend(img *image.RGBA, l *legend.Legend, res *aggregation.Result, font FontRenderer, cfg Config, imgW, top int) {
	_, textH := font.MeasureString("0", cfg.FontSize)
	radius := cfg.LegendCircleSize / 2

	for i, s := range l.Samples {
		cx, cy := legendItemCenter(l, font, cfg, imgW, top, i)

		drawFilledCircle(img, cx, cy, radius, s.Color.ToStdColor())
		border := unmatchedBd
		if res != nil && i < len(res.Counts) && res.Counts[i] > 0 {
			border = matchedBd
			drawCircleBorder(img, cx, cy, radius+1, border)
			drawFilledCircle(img, cx, cy, max(radius/4, 1), markerColor(s.Color))
		}
		drawCircleBorder(img, cx, cy, radius, border)

		font.DrawString(img, ScoreLabel(s.Score), cx, cy+radius+textH/2+2, color.Black, cfg.FontSize)
	}
}

// legendItemCenter returns the circle center of sample i. Items are laid out
// in rows, each row centered horizontally.
func legendItemCenter(l *legend.Legend, font FontRenderer, cfg Config, imgW, top, i int) (int, int) {
	_, textH := font.MeasureString("0", cfg.FontSize)
	iw := itemWidth(l, font, cfg)
	perRow := itemsPerRow(l, font, cfg, imgW)
	availableW := imgW - 2*cfg.LegendMargin
	radius := cfg.LegendCircleSize / 2
	rowHeight := cfg.LegendCircleSize + textH + cfg.LegendSpacing

	row, col := i/perRow, i%perRow
	rowItemCount := perRow
	if remaining := len(l.Samples) - row*perRow; remaining < perRow {
		rowItemCount = remaining
	}
	rowStartX := cfg.LegendMargin + (availableW-rowItemCount*iw)/2
	return rowStartX + col*iw + iw/2, top + row*rowHeight + radius
}

// markerColor contrasts with a sample circle: black on light, white on dark.
func markerColor(c mcol.RGB) color.RGBA {
	if c.IsLight() {
		return color.RGBA{0, 0, 0, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}

func drawFilledCircle(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				px, py := cx+dx, cy+dy
				if px >= 0 && px < img.Bounds().Dx() && py >= 0 && py < img.Bounds().Dy() {
					img.SetRGBA(px, py, col)
				}
			}
		}
	}
}

func drawCircleBorder(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	for angle := 0.0; angle < 2*math.Pi; angle += 0.01 {
		px := cx + int(math.Round(float64(radius)*math.Cos(angle)))
		py := cy + int(math.Round(float64(radius)*math.Sin(angle)))
		if px >= 0 && px < img.Bounds().Dx() && py >= 0 && py < img.Bounds().Dy() {
			img.SetRGBA(px, py, col)
		}
	}
}
