package color

import (
	"image/color"
	"math"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RGB
		wantErr bool
	}{
		{name: "6-digit black with hash", input: "#000000", want: RGB{0, 0, 0}},
		{name: "6-digit white with hash", input: "#FFFFFF", want: RGB{255, 255, 255}},
		{name: "6-digit lowercase", input: "#ff00ff", want: RGB{255, 0, 255}},
		{name: "6-digit without hash", input: "AB12CD", want: RGB{0xAB, 0x12, 0xCD}},
		{name: "3-digit black", input: "#000", want: RGB{0, 0, 0}},
		{name: "3-digit color", input: "#F0A", want: RGB{0xFF, 0x00, 0xAA}},
		{name: "surrounding spaces", input: " #0f0 ", want: RGB{0, 255, 0}},
		{name: "invalid length 1", input: "#F", wantErr: true},
		{name: "invalid length 4", input: "#FFFF", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "non-hex characters 6-digit", input: "#ZZZZZZ", wantErr: true},
		{name: "non-hex characters 3-digit", input: "#GGG", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
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

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RGB
		wantErr bool
	}{
		{name: "triple", input: "128,128,0", want: RGB{128, 128, 0}},
		{name: "triple with spaces", input: "1, 2, 3", want: RGB{1, 2, 3}},
		{name: "hex", input: "#ff0000", want: RGB{255, 0, 0}},
		{name: "triple out of range", input: "256,0,0", wantErr: true},
		{name: "triple negative", input: "-1,0,0", wantErr: true},
		{name: "triple too short", input: "1,2", wantErr: true},
		{name: "triple not a number", input: "a,b,c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
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

func TestHex(t *testing.T) {
	if got := (RGB{255, 0, 16}).Hex(); got != "#ff0010" {
		t.Errorf("got %q, want #ff0010", got)
	}
}

func TestFromStdColor(t *testing.T) {
	tests := []struct {
		name  string
		input color.Color
		want  RGB
	}{
		{"opaque red", color.RGBA{255, 0, 0, 255}, RGB{255, 0, 0}},
		{"opaque white", color.White, RGB{255, 255, 255}},
		{"opaque black", color.Black, RGB{0, 0, 0}},
		{"non-premultiplied keeps channels", color.NRGBA{200, 100, 50, 0}, RGB{200, 100, 50}},
		{"gray", color.Gray{Y: 77}, RGB{77, 77, 77}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStdColor(tt.input)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRoundTripStdColor(t *testing.T) {
	original := RGB{42, 128, 200}
	roundTripped := FromStdColor(original.ToStdColor())
	if roundTripped != original {
		t.Errorf("round-trip failed: got %+v, want %+v", roundTripped, original)
	}
}

func TestDistanceRGB(t *testing.T) {
	t.Run("identical colors have zero distance", func(t *testing.T) {
		c := RGB{50, 50, 50}
		if d := DistanceRGB(c, c); d != 0 {
			t.Errorf("got %f, want 0", d)
		}
	})

	t.Run("black vs white", func(t *testing.T) {
		d := DistanceRGB(RGB{0, 0, 0}, RGB{255, 255, 255})
		if want := math.Sqrt(3 * 255 * 255); math.Abs(d-want) > 0.001 {
			t.Errorf("got %f, want %f", d, want)
		}
	})

	t.Run("single channel difference", func(t *testing.T) {
		d := DistanceRGB(RGB{100, 0, 0}, RGB{200, 0, 0})
		if math.Abs(d-100) > 0.001 {
			t.Errorf("got %f, want 100", d)
		}
	})

	t.Run("symmetry", func(t *testing.T) {
		a, b := RGB{255, 0, 0}, RGB{0, 0, 255}
		if DistanceRGB(a, b) != DistanceRGB(b, a) {
			t.Error("distance is not symmetric")
		}
	})
}

func TestBetween(t *testing.T) {
	tests := []struct {
		v, a, b uint8
		want    bool
	}{
		{128, 0, 255, true},
		{128, 255, 0, true},
		{0, 0, 0, true},
		{0, 0, 255, true},
		{255, 0, 255, true},
		{10, 20, 30, false},
		{40, 30, 20, false},
	}
	for _, tt := range tests {
		if got := Between(tt.v, tt.a, tt.b); got != tt.want {
			t.Errorf("Between(%d, %d, %d) = %v, want %v", tt.v, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsLight(t *testing.T) {
	tests := []struct {
		name string
		c    RGB
		want bool
	}{
		{"white is light", RGB{255, 255, 255}, true},
		{"black is not light", RGB{0, 0, 0}, false},
		{"bright yellow is light", RGB{255, 255, 0}, true},
		{"dark blue is not light", RGB{0, 0, 128}, false},
		{"mid gray", RGB{128, 128, 128}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.IsLight(); got != tt.want {
				t.Errorf("RGB%+v.IsLight() = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}
