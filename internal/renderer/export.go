package renderer

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
)

// Heat renders the score map as greyscale: lo maps to black, hi to white.
// Pixels that were not scored are fully transparent. lo may exceed hi for
// descending scales.
func Heat(sm *aggregation.ScoreMap, lo, hi float64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, sm.Width, sm.Height))
	span := hi - lo
	for y := 0; y < sm.Height; y++ {
		for x := 0; x < sm.Width; x++ {
			if !sm.IsScored(x, y) {
				continue
			}
			t := 0.0
			if span != 0 {
				t = (sm.At(x, y) - lo) / span
			}
			t = math.Max(0, math.Min(1, t))
			v := uint8(math.Round(t * 255))
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

// WriteCSV writes the score map as one CSV record per image row. Excluded
// pixels are written as 0.
func WriteCSV(w io.Writer, sm *aggregation.ScoreMap) error {
	cw := csv.NewWriter(w)
	record := make([]string, sm.Width)
	for y := 0; y < sm.Height; y++ {
		for x := 0; x < sm.Width; x++ {
			record[x] = strconv.FormatFloat(sm.At(x, y), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing score map row %d: %w", y, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing score map: %w", err)
	}
	return nil
}
