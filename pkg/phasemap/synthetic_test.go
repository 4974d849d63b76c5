package phasemap

import (
	"github.com/abworrall/sagmap/pkg/emath"
)

// apertureMap is a w x h map that is valid inside e, with heights from f.
func apertureMap(w, h int, e Ellipse, f func(x, y float64) float64) *emath.MaskedGrid {
	m := emath.NewMaskedGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			if e.NormalizedRadius2(fx, fy) > 1 {
				m.SetMasked(x, y, true)
				continue
			}
			if f != nil {
				m.Set(x, y, f(fx, fy))
			}
		}
	}
	return m
}

func constantMap(w, h int, v float64) *emath.MaskedGrid {
	return emath.NewMaskedGrid(w, h).AddScalar(v)
}

func floatPtr(f float64) *float64 { return &f }
