package color

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// RGB represents an opaque color with 8-bit channels.
type RGB struct {
	R, G, B uint8
}

// FromStdColor converts a standard library color to RGB.
// Channels are read non-premultiplied, so a transparent pixel keeps the
// color stored in the file instead of collapsing to black.
func FromStdColor(c color.Color) RGB {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGB{R: n.R, G: n.G, B: n.B}
}

// ToStdColor converts RGB to an opaque standard library color.
func (c RGB) ToStdColor() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Hex formats the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.R, c.G, c.B)
}

// ParseHex parses a hex color string like "#000", "#000000", "#FF00FF".
func ParseHex(s string) (RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var r, g, b uint8
	switch len(s) {
	case 3:
		_, err := fmt.Sscanf(s, "%1x%1x%1x", &r, &g, &b)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		r = r*16 + r
		g = g*16 + g
		b = b*16 + b
	case 6:
		_, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
	default:
		return RGB{}, fmt.Errorf("invalid hex color %q: must be 3 or 6 hex digits", s)
	}
	return RGB{R: r, G: g, B: b}, nil
}

// ParseTriple parses "r,g,b" with decimal channel values in [0, 255].
func ParseTriple(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid color triple %q: want r,g,b", s)
	}
	var ch [3]uint8
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &v); err != nil {
			return RGB{}, fmt.Errorf("invalid color triple %q: %w", s, err)
		}
		if v < 0 || v > 255 {
			return RGB{}, fmt.Errorf("invalid color triple %q: channel %d out of range", s, v)
		}
		ch[i] = uint8(v)
	}
	return RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
}

// Parse accepts either a hex color or an "r,g,b" triple.
func Parse(s string) (RGB, error) {
	if strings.Contains(s, ",") {
		return ParseTriple(s)
	}
	return ParseHex(s)
}

// DistanceRGB computes the Euclidean distance in RGB space between two colors.
func DistanceRGB(a, b RGB) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// Between reports whether v lies between a and b inclusive, in either order.
func Between(v, a, b uint8) bool {
	return (a <= v && v <= b) || (a >= v && v >= b)
}

// IsLight returns true if the color is perceptually light (luminance > 0.5).
func (c RGB) IsLight() bool {
	rLin := srgbToLinear(float64(c.R) / 255.0)
	gLin := srgbToLinear(float64(c.G) / 255.0)
	bLin := srgbToLinear(float64(c.B) / 255.0)
	luminance := 0.2126*rLin + 0.7152*gLin + 0.0722*bLin
	return luminance > 0.5
}

func srgbToLinear(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// White is pure white, the color background pixels are rewritten to.
var White = RGB{R: 255, G: 255, B: 255}
