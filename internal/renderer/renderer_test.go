package renderer

import (
	"bytes"
	"encoding/csv"
	"image"
	"image/color"
	"testing"

	"github.com/Ayoubbar/geomapscore/internal/aggregation"
	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
	"github.com/Ayoubbar/geomapscore/internal/legend"
)

func TestBitmapFont_MeasureString(t *testing.T) {
	bf := NewBitmapFont()

	tests := []struct {
		name         string
		text         string
		size         int
		wantW, wantH int
	}{
		{name: "empty string", text: "", size: 14, wantW: 0, wantH: 0},
		{name: "single digit scale 1", text: "5", size: 7, wantW: 5, wantH: 7},
		// 4 * (5*1) + (4-1)*1 = 23
		{name: "score scale 1", text: "0.25", size: 7, wantW: 23, wantH: 7},
		{name: "single digit scale 2", text: "5", size: 14, wantW: 10, wantH: 14},
		{name: "size smaller than glyph height uses scale 1", text: "0", size: 3, wantW: 5, wantH: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := bf.MeasureString(tt.text, tt.size)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("MeasureString(%q, %d) = (%d, %d), want (%d, %d)",
					tt.text, tt.size, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img
}

func countDark(img *image.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R < 128 && c.G < 128 && c.B < 128 {
				n++
			}
		}
	}
	return n
}

func TestFonts_DrawString_WritesPixels(t *testing.T) {
	fonts := map[string]FontRenderer{"bitmap": NewBitmapFont(), "face": NewFaceFont()}
	for name, f := range fonts {
		t.Run(name, func(t *testing.T) {
			img := whiteCanvas(60, 40)
			f.DrawString(img, "-1.5", 30, 20, color.Black, 7)
			if countDark(img) == 0 {
				t.Error("DrawString did not write any pixels")
			}
		})
	}
}

func TestBitmapFont_DrawString_UnknownGlyph(t *testing.T) {
	img := whiteCanvas(50, 50)
	NewBitmapFont().DrawString(img, "X", 25, 25, color.Black, 7)
	if countDark(img) != 0 {
		t.Fatal("unexpected dark pixel for unknown glyph")
	}
}

func TestFaceFont_MeasureString(t *testing.T) {
	ff := NewFaceFont()
	if w, h := ff.MeasureString("", 10); w != 0 || h != 0 {
		t.Errorf("empty: got (%d, %d)", w, h)
	}
	w1, h1 := ff.MeasureString("a", 10)
	w3, h3 := ff.MeasureString("abc", 10)
	if w1 != 7 || w3 != 21 {
		t.Errorf("widths: got %d and %d, want 7 and 21", w1, w3)
	}
	if h1 <= 0 || h1 != h3 {
		t.Errorf("heights: got %d and %d", h1, h3)
	}
}

func TestFonts_ImplementFontRenderer(t *testing.T) {
	var _ FontRenderer = (*BitmapFont)(nil)
	var _ FontRenderer = (*FaceFont)(nil)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.LegendPadding <= 0 || cfg.LegendCircleSize <= 0 ||
		cfg.LegendSpacing <= 0 || cfg.LegendMargin <= 0 || cfg.FontSize <= 0 {
		t.Errorf("default config has non-positive values: %+v", cfg)
	}

	wide := DefaultConfig()
	wide.ScaleForWidth(1200)
	if wide.LegendCircleSize <= cfg.LegendCircleSize {
		t.Errorf("wide maps should get larger swatches: %+v", wide)
	}
	small := DefaultConfig()
	small.ScaleForWidth(100)
	if small != cfg {
		t.Errorf("small maps should keep defaults: %+v", small)
	}
}

func fixture() (*imaging.Raster, *legend.Legend, *aggregation.Result) {
	red := mcol.RGB{R: 255}
	green := mcol.RGB{G: 255}
	r := imaging.NewRaster(120, 40)
	for i := range r.Pix {
		r.Pix[i] = red
	}
	l := &legend.Legend{
		Samples:       []legend.Sample{{Color: green, Score: 0}, {Color: red, Score: 10}},
		Calibration:   legend.Calibration{MinScore: 0, MaxScore: 10, Segments: 2},
		Height:        20,
		SectionHeight: 10,
	}
	res, err := aggregation.Aggregate(r, l.Samples)
	if err != nil {
		panic(err)
	}
	return r, l, res
}

func TestRender_OutputDimensions(t *testing.T) {
	r, l, res := fixture()
	out := Render(r, l, res, NewFaceFont(), DefaultConfig())
	if out.Bounds().Dx() != r.Width {
		t.Errorf("output width: got %d, want %d", out.Bounds().Dx(), r.Width)
	}
	if out.Bounds().Dy() <= r.Height {
		t.Errorf("output height should exceed map height (legend), got %d", out.Bounds().Dy())
	}
	if got := out.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("map pixel not copied: got %v", got)
	}
	if countDark(out) == 0 {
		t.Error("expected legend text to be drawn")
	}
}

func TestRender_NoLegend(t *testing.T) {
	r, _, res := fixture()
	out := Render(r, &legend.Legend{}, res, NewBitmapFont(), DefaultConfig())
	if out.Bounds().Dy() != r.Height {
		t.Errorf("expected height %d (no legend), got %d", r.Height, out.Bounds().Dy())
	}
}

func TestCalculateLegendHeight(t *testing.T) {
	_, l, _ := fixture()
	font := NewBitmapFont()
	cfg := DefaultConfig()
	if h := calculateLegendHeight(nil, font, cfg, 200); h != 0 {
		t.Errorf("nil legend: got %d", h)
	}
	one := calculateLegendHeight(l, font, cfg, 1000)
	narrow := calculateLegendHeight(l, font, cfg, 40)
	if one <= 0 || narrow <= one {
		t.Errorf("expected narrow images to wrap rows: wide=%d narrow=%d", one, narrow)
	}
}

func TestScoreLabel(t *testing.T) {
	for score, want := range map[float64]string{0: "0.00", 0.126: "0.13", 10: "10.00", -2.5: "-2.50"} {
		if got := ScoreLabel(score); got != want {
			t.Errorf("ScoreLabel(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestHeat(t *testing.T) {
	sm := aggregation.NewScoreMap(3, 1)
	sm.Values = []float64{0, 5, 10}
	sm.Scored = []bool{false, true, true}

	img := Heat(sm, 0, 10)
	if got := img.NRGBAAt(0, 0); got.A != 0 {
		t.Errorf("unscored pixel should be transparent: %v", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{128, 128, 128, 255}) {
		t.Errorf("mid pixel: got %v", got)
	}
	if got := img.NRGBAAt(2, 0); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("max pixel: got %v", got)
	}

	desc := Heat(sm, 10, 0)
	if got := desc.NRGBAAt(2, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("descending scale max pixel: got %v", got)
	}
	flat := Heat(sm, 3, 3)
	if got := flat.NRGBAAt(2, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("flat scale: got %v", got)
	}
}

func TestWriteCSV(t *testing.T) {
	sm := aggregation.NewScoreMap(2, 2)
	sm.Values = []float64{0, 0.5, 10, 0}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sm); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"0", "0.5"}, {"10", "0"}}
	if len(records) != len(want) {
		t.Fatalf("got %v", records)
	}
	for i := range want {
		for j := range want[i] {
			if records[i][j] != want[i][j] {
				t.Errorf("record[%d][%d] = %q, want %q", i, j, records[i][j], want[i][j])
			}
		}
	}
}

func TestDrawLegend_MatchedMarkerContrasts(t *testing.T) {
	navy := mcol.RGB{B: 128}
	yellow := mcol.RGB{R: 255, G: 255}
	l := &legend.Legend{Samples: []legend.Sample{
		{Color: navy, Score: 0},
		{Color: yellow, Score: 5},
		{Color: navy, Score: 10},
	}}
	res := &aggregation.Result{Counts: []int{3, 1, 0}}
	font := NewBitmapFont()
	cfg := DefaultConfig()
	img := image.NewRGBA(image.Rect(0, 0, 300, 120))

	drawLegend(img, l, res, font, cfg, 300, 0)

	tests := []struct {
		name string
		i    int
		want color.RGBA
	}{
		{"matched dark sample gets white marker", 0, color.RGBA{255, 255, 255, 255}},
		{"matched light sample gets black marker", 1, color.RGBA{0, 0, 0, 255}},
		{"unmatched sample has no marker", 2, navy.ToStdColor()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, cy := legendItemCenter(l, font, cfg, 300, 0, tt.i)
			if got := img.RGBAAt(cx, cy); got != tt.want {
				t.Errorf("center of item %d = %v, want %v", tt.i, got, tt.want)
			}
		})
	}
}
