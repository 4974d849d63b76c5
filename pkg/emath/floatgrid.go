package emath

import (
	"fmt"
	"math"
)

// A FloatGrid is a grid of floats, stored row by row. A phase map of
// ny rows and nx columns has Dx()==nx and Dy()==ny.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues copies vals, which must hold a whole number of rows.
func NewFloatGridFromValues(w int, vals []float64) FloatGrid {
	if w <= 0 || len(vals)%w != 0 {
		panic(fmt.Sprintf("emath: %d values do not fill rows of width %d", len(vals), w))
	}
	g := FloatGrid{stride: w, values: make([]float64, len(vals))}
	copy(g.values, vals)
	return g
}

func (g1 *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Len() int                { return len(fg.values) }

// Values exposes the backing slice; index = y*Dx() + x.
func (fg *FloatGrid) Values() []float64 { return fg.values }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

func (g1 *FloatGrid) Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values: make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// Gradient returns the derivatives along y (rows) and x (columns), using
// central differences in the interior and one-sided differences on the
// edges. Grids one pixel wide have zero gradient along that axis.
func (g *FloatGrid) Gradient() (gy, gx FloatGrid) {
	width, height := g.Dx(), g.Dy()
	gy, gx = g.NewFromThis(), g.NewFromThis()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case width < 2:
			case x == 0:
				gx.Set(x, y, g.Get(1, y)-g.Get(0, y))
			case x == width-1:
				gx.Set(x, y, g.Get(x, y)-g.Get(x-1, y))
			default:
				gx.Set(x, y, (g.Get(x+1, y)-g.Get(x-1, y))/2.0)
			}

			switch {
			case height < 2:
			case y == 0:
				gy.Set(x, y, g.Get(x, 1)-g.Get(x, 0))
			case y == height-1:
				gy.Set(x, y, g.Get(x, y)-g.Get(x, y-1))
			default:
				gy.Set(x, y, (g.Get(x, y+1)-g.Get(x, y-1))/2.0)
			}
		}
	}

	return gy, gx
}

// GradientMagnitude is sqrt(gy^2 + gx^2), per pixel.
func (g *FloatGrid) GradientMagnitude() FloatGrid {
	gy, gx := g.Gradient()
	out := g.NewFromThis()
	for i := range out.values {
		out.values[i] = math.Hypot(gy.values[i], gx.values[i])
	}
	return out
}

func (fg *FloatGrid) Stats() string {
	min := math.MaxFloat64
	max := -1.0 * min

	for i := 0; i < len(fg.values); i++ {
		if fg.values[i] > max {
			max = fg.values[i]
		}
		if fg.values[i] < min {
			min = fg.values[i]
		}
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}
