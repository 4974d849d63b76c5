package emath

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw" // replace by "image/draw" at some point
)

var (
	divergingLo  = colorful.Color{R: 0.23, G: 0.30, B: 0.75}
	divergingMid = colorful.Color{R: 0.87, G: 0.87, B: 0.87}
	divergingHi  = colorful.Color{R: 0.71, G: 0.02, B: 0.15}
)

// divergingColor maps t in [0,1] onto a blue-grey-red ramp, blended in Lab
// space so the midpoint stays neutral.
func divergingColor(t float64) colorful.Color {
	t = math.Max(0, math.Min(1, t))
	if t < 0.5 {
		return divergingLo.BlendLab(divergingMid, GammaExpand_F64(2*t)).Clamped()
	}
	return divergingMid.BlendLab(divergingHi, 2*t-1).Clamped()
}

// ToImg saves a colour mapped PNG of the map, symmetric about zero so
// that surface highs and lows read as red and blue. Invalid pixels are
// black. Small maps are scaled up to at least minSize pixels wide, so the
// title stays legible.
func (m *MaskedGrid) ToImg(title, filename string, minSize int) error {
	lim := 0.0
	for _, v := range m.ValidValues() {
		lim = math.Max(lim, math.Abs(v))
	}
	if lim == 0 {
		lim = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, m.Dx(), m.Dy()))
	for y := 0; y < m.Dy(); y++ {
		for x := 0; x < m.Dx(); x++ {
			if m.IsMasked(x, y) {
				img.Set(x, y, image.Black)
				continue
			}
			img.Set(x, y, divergingColor(0.5+0.5*m.Get(x, y)/lim))
		}
	}

	var out image.Image = img
	if m.Dx() > 0 && m.Dx() < minSize {
		f := float64(minSize) / float64(m.Dx())
		big := image.NewRGBA(image.Rect(0, 0, minSize, int(float64(m.Dy())*f)))
		draw.NearestNeighbor.Scale(big, big.Bounds(), img, img.Bounds(), draw.Src, nil)
		out = big
	}

	dc := gg.NewContextForImage(out)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(fmt.Sprintf("%s [±%.3g]", title, lim), 10, 20)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("quicklook '%s': %v", filename, err)
	}
	return nil
}
