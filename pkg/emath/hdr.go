package emath

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

// hdrGrid presents a MaskedGrid as an hdr.Image, offset so the smallest
// valid value is zero. Invalid pixels are written as zero.
type hdrGrid struct {
	g      *MaskedGrid
	offset float64
}

// Implement image.Image
func (h hdrGrid) ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrGrid) Bounds() image.Rectangle { return image.Rect(0, 0, h.g.Dx(), h.g.Dy()) }
func (h hdrGrid) At(x, y int) color.Color { return h.HDRAt(x, y) }

// Implement hdr.Image
func (h hdrGrid) Size() int { return h.g.Len() }
func (h hdrGrid) HDRAt(x, y int) hdrcolor.Color {
	if h.g.IsMasked(x, y) {
		return hdrcolor.RGB{}
	}
	v := h.g.Get(x, y) - h.offset
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// WriteHDR writes the map as a gray Radiance RGBE file, keeping the full
// float range for external viewers.
func (m *MaskedGrid) WriteHDR(filename string) error {
	offset := math.Inf(1)
	for _, v := range m.ValidValues() {
		offset = math.Min(offset, v)
	}
	if math.IsInf(offset, 1) {
		offset = 0
	}

	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("WriteHDR, open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	if err := rgbe.Encode(writer, hdrGrid{g: m, offset: offset}); err != nil {
		return fmt.Errorf("WriteHDR, encoding RGBE file '%s': %v", filename, err)
	}
	return nil
}
