package imaging

import (
	"image"
	stdcolor "image/color"

	mcol "github.com/Ayoubbar/geomapscore/internal/color"
)

// Raster is an H×W×3 pixel buffer with 8-bit channels. Pixels are stored
// row-major: index = y*Width + x.
type Raster struct {
	Width, Height int
	Pix           []mcol.RGB
}

// NewRaster allocates a raster filled with black.
func NewRaster(w, h int) *Raster {
	return &Raster{Width: w, Height: h, Pix: make([]mcol.RGB, w*h)}
}

// FromImage copies img into a new raster. The image bounds are translated
// so that the raster always starts at (0, 0).
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.RGBA:
		// Opaque fast path; fall back to the generic path for translucent pixels.
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				c := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
				if c.A == 255 {
					r.Pix[y*r.Width+x] = mcol.RGB{R: c.R, G: c.G, B: c.B}
				} else {
					r.Pix[y*r.Width+x] = mcol.FromStdColor(c)
				}
			}
		}
	case *image.NRGBA:
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				c := src.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				r.Pix[y*r.Width+x] = mcol.RGB{R: c.R, G: c.G, B: c.B}
			}
		}
	default:
		for y := 0; y < r.Height; y++ {
			for x := 0; x < r.Width; x++ {
				r.Pix[y*r.Width+x] = mcol.FromStdColor(img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return r
}

// At returns the pixel at (x, y).
func (r *Raster) At(x, y int) mcol.RGB {
	return r.Pix[y*r.Width+x]
}

// Set writes the pixel at (x, y).
func (r *Raster) Set(x, y int, c mcol.RGB) {
	r.Pix[y*r.Width+x] = c
}

// In reports whether (x, y) lies inside the raster.
func (r *Raster) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.Width && y < r.Height
}

// Empty reports whether the raster is nil or has no pixels.
func (r *Raster) Empty() bool {
	return r == nil || r.Width <= 0 || r.Height <= 0 || len(r.Pix) == 0
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	out := &Raster{Width: r.Width, Height: r.Height, Pix: make([]mcol.RGB, len(r.Pix))}
	copy(out.Pix, r.Pix)
	return out
}

// ToImage converts the raster to an opaque *image.RGBA.
func (r *Raster) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := r.Pix[y*r.Width+x]
			img.SetRGBA(x, y, stdcolor.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return img
}
