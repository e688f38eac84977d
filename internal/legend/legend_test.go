package legend

import (
	"errors"
	"image/color"
	"math"
	"testing"

	mcol "github.com/Ayoubbar/geomapscore/internal/color"
	"github.com/Ayoubbar/geomapscore/internal/imaging"
)

// bands builds a legend raster of the given width where each color fills
// rowsPerBand consecutive rows.
func bands(width, rowsPerBand int, colors ...mcol.RGB) *imaging.Raster {
	r := imaging.NewRaster(width, rowsPerBand*len(colors))
	for i, c := range colors {
		for y := i * rowsPerBand; y < (i+1)*rowsPerBand; y++ {
			for x := 0; x < width; x++ {
				r.Set(x, y, c)
			}
		}
	}
	return r
}

var (
	green = mcol.RGB{R: 0, G: 255, B: 0}
	red   = mcol.RGB{R: 255, G: 0, B: 0}
	blue  = mcol.RGB{R: 0, G: 0, B: 255}
)

func TestParseCalibration(t *testing.T) {
	tests := []struct {
		name          string
		min, max, seg string
		want          Calibration
		wantErr       bool
	}{
		{name: "defaults", min: "0", max: "1", seg: "10", want: Calibration{0, 1, 10}},
		{name: "decreasing scale", min: "5", max: "-5", seg: "3", want: Calibration{5, -5, 3}},
		{name: "spaces and decimals", min: " 0.5 ", max: "2.25", seg: " 4", want: Calibration{0.5, 2.25, 4}},
		{name: "non-numeric min", min: "low", max: "1", seg: "10", wantErr: true},
		{name: "non-numeric max", min: "0", max: "", seg: "10", wantErr: true},
		{name: "fractional segments", min: "0", max: "1", seg: "2.5", wantErr: true},
		{name: "zero segments", min: "0", max: "1", seg: "0", wantErr: true},
		{name: "negative segments", min: "0", max: "1", seg: "-3", wantErr: true},
		{name: "infinite max", min: "0", max: "Inf", seg: "3", wantErr: true},
		{name: "NaN min", min: "NaN", max: "1", seg: "3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCalibration(tt.min, tt.max, tt.seg)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("expected ErrConfiguration, got %v (%+v)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCalibrationScores(t *testing.T) {
	tests := []Calibration{
		{MinScore: 0, MaxScore: 1, Segments: 10},
		{MinScore: 0, MaxScore: 10, Segments: 2},
		{MinScore: 100, MaxScore: 0, Segments: 7},
		{MinScore: -3, MaxScore: 3, Segments: 4},
		{MinScore: 0.001, MaxScore: 3.3, Segments: 13},
	}
	for _, cal := range tests {
		got := cal.Scores()
		if len(got) != cal.Segments {
			t.Fatalf("%+v: got %d scores", cal, len(got))
		}
		n := cal.Segments
		for i, s := range got[:n-1] {
			want := cal.MinScore + float64(i)*(cal.MaxScore-cal.MinScore)/float64(n-1)
			if s != want {
				t.Errorf("%+v: score[%d] = %v, want %v", cal, i, s, want)
			}
		}
		if got[0] != cal.MinScore {
			t.Errorf("%+v: first score %v, want %v", cal, got[0], cal.MinScore)
		}
		if got[n-1] != cal.MaxScore {
			t.Errorf("%+v: last score %v, want %v", cal, got[n-1], cal.MaxScore)
		}
	}

	if got := (Calibration{MinScore: 0, MaxScore: 1, Segments: 10}).Scores()[7]; got != 0.7777777777777778 {
		t.Errorf("0..1 over 10: score[7] = %v, want 0.7777777777777778", got)
	}
	if got := (Calibration{MinScore: 0.001, MaxScore: 3.3, Segments: 13}).Scores()[12]; got != 3.3 {
		t.Errorf("0.001..3.3 over 13: last score = %v, want 3.3", got)
	}

	single := Calibration{MinScore: 3, MaxScore: 9, Segments: 1}.Scores()
	if len(single) != 1 || single[0] != 3 {
		t.Errorf("single segment: got %v, want [3]", single)
	}
}

func TestSegment_TwoBands(t *testing.T) {
	l, err := Segment(bands(4, 5, green, red), Calibration{MinScore: 0, MaxScore: 10, Segments: 2})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	want := []Sample{
		{Color: green, Score: 0, Pixels: 20},
		{Color: red, Score: 10, Pixels: 20},
	}
	if len(l.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(l.Samples), len(want))
	}
	for i := range want {
		if l.Samples[i] != want[i] {
			t.Errorf("sample %d: got %+v, want %+v", i, l.Samples[i], want[i])
		}
	}
	if l.SectionHeight != 5 || l.Height != 10 {
		t.Errorf("geometry: section %d height %d", l.SectionHeight, l.Height)
	}
}

func TestSegment_IgnoresWhiteAndTruncates(t *testing.T) {
	r := imaging.NewRaster(4, 1)
	r.Pix[0] = mcol.White
	r.Pix[1] = mcol.RGB{R: 10, G: 100, B: 0}
	r.Pix[2] = mcol.RGB{R: 11, G: 101, B: 1}
	r.Pix[3] = mcol.RGB{R: 251, G: 252, B: 250}

	l, err := Segment(r, Calibration{MinScore: 0, MaxScore: 1, Segments: 1})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	got := l.Samples[0]
	if got.Color != (mcol.RGB{R: 10, G: 100, B: 0}) {
		t.Errorf("color: got %v, want (10,100,0)", got.Color)
	}
	if got.Pixels != 2 {
		t.Errorf("pixels: got %d, want 2", got.Pixels)
	}
}

func TestSegment_RemainderRowsIgnored(t *testing.T) {
	r := bands(3, 1, green, green, red, red, blue)
	l, err := Segment(r, Calibration{MinScore: 0, MaxScore: 1, Segments: 2})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if l.SectionHeight != 2 {
		t.Fatalf("section height: got %d, want 2", l.SectionHeight)
	}
	if l.Samples[0].Color != green || l.Samples[1].Color != red {
		t.Errorf("got %v %v, want green red", l.Samples[0].Color, l.Samples[1].Color)
	}
}

func TestSegment_EmptyBandBorrowsNearest(t *testing.T) {
	tests := []struct {
		name   string
		colors []mcol.RGB
		want   []mcol.RGB
		filled []bool
	}{
		{
			name:   "middle band takes band above",
			colors: []mcol.RGB{green, mcol.White, red},
			want:   []mcol.RGB{green, green, red},
			filled: []bool{false, true, false},
		},
		{
			name:   "top band takes band below",
			colors: []mcol.RGB{mcol.White, mcol.White, red},
			want:   []mcol.RGB{red, red, red},
			filled: []bool{true, true, false},
		},
		{
			name:   "bottom band takes band above",
			colors: []mcol.RGB{green, red, mcol.White},
			want:   []mcol.RGB{green, red, red},
			filled: []bool{false, false, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Segment(bands(2, 2, tt.colors...), Calibration{MinScore: 0, MaxScore: 2, Segments: len(tt.colors)})
			if err != nil {
				t.Fatalf("Segment: %v", err)
			}
			for i, s := range l.Samples {
				if s.Color != tt.want[i] || s.Filled != tt.filled[i] {
					t.Errorf("sample %d: got %v filled=%v, want %v filled=%v", i, s.Color, s.Filled, tt.want[i], tt.filled[i])
				}
			}
		})
	}
}

func TestSegment_Errors(t *testing.T) {
	tests := []struct {
		name string
		r    *imaging.Raster
		cal  Calibration
	}{
		{"zero segments", bands(2, 2, red), Calibration{Segments: 0}},
		{"nil legend", nil, DefaultCalibration()},
		{"all white", bands(2, 2, mcol.White, mcol.White), Calibration{MinScore: 0, MaxScore: 1, Segments: 2}},
		{"fewer rows than segments", bands(2, 1, red, green), Calibration{MinScore: 0, MaxScore: 1, Segments: 3}},
		{"segment count far above height", bands(1, 1, red), Calibration{MinScore: 0, MaxScore: 1, Segments: 1_000_000_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Segment(tt.r, tt.cal)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v (%+v)", err, l)
			}
		})
	}
}

func TestLegend_Accessors(t *testing.T) {
	l, err := Segment(bands(2, 2, green, red, blue), Calibration{MinScore: 3, MaxScore: 1, Segments: 3})
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	colors := l.Colors()
	scores := l.Scores()
	wantScores := []float64{3, 2, 1}
	for i := range l.Samples {
		if colors[i] != l.Samples[i].Color {
			t.Errorf("Colors()[%d] = %v", i, colors[i])
		}
		if math.Abs(scores[i]-wantScores[i]) > 1e-12 {
			t.Errorf("Scores()[%d] = %v, want %v", i, scores[i], wantScores[i])
		}
	}
}

func TestLegend_HasNearBlack(t *testing.T) {
	cal := Calibration{MinScore: 0, MaxScore: 1, Segments: 2}
	withBlack, err := Segment(bands(2, 2, red, mcol.RGB{R: 10, G: 10, B: 10}), cal)
	if err != nil {
		t.Fatal(err)
	}
	if !withBlack.HasNearBlack() {
		t.Error("legend with a near-black band should report black")
	}
	withoutBlack, err := Segment(bands(2, 2, red, green), cal)
	if err != nil {
		t.Fatal(err)
	}
	if withoutBlack.HasNearBlack() {
		t.Error("red/green legend should not report black")
	}
}

func TestLegend_FlatImage(t *testing.T) {
	r := bands(3, 2, green, red)
	// one extra row that belongs to no band
	r.Height++
	r.Pix = append(r.Pix, blue, blue, blue)

	l, err := Segment(r, Calibration{MinScore: 0, MaxScore: 1, Segments: 2})
	if err != nil {
		t.Fatal(err)
	}
	img := l.FlatImage(0)
	if img.Bounds().Dx() != DefaultFlatWidth || img.Bounds().Dy() != 5 {
		t.Fatalf("bounds: got %v", img.Bounds())
	}
	checks := map[int]color.RGBA{
		0: {0, 255, 0, 255},
		1: {0, 255, 0, 255},
		2: {255, 0, 0, 255},
		3: {255, 0, 0, 255},
		4: {0, 0, 0, 255},
	}
	for y, want := range checks {
		if got := img.RGBAAt(50, y); got != want {
			t.Errorf("row %d: got %v, want %v", y, got, want)
		}
	}
}
