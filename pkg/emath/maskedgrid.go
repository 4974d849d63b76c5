package emath

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// A MaskedGrid pairs a FloatGrid with a per-pixel validity mask. Mask[i]
// is true where the pixel is invalid. A nil Mask means the grid carries
// no validity information at all, which is not the same as "all valid";
// HasMask lets callers that need masked input refuse it.
//
// Elementwise operations produce an invalid pixel wherever any operand
// is invalid, and reductions skip invalid pixels.
type MaskedGrid struct {
	FloatGrid
	Mask []bool
}

// NewMaskedGrid returns a w x h grid of zeros, all valid.
func NewMaskedGrid(w, h int) *MaskedGrid {
	return &MaskedGrid{
		FloatGrid: NewFloatGrid(w, h),
		Mask:      make([]bool, w*h),
	}
}

// NewMaskedGridFrom copies g and mask. A nil mask stays nil.
func NewMaskedGridFrom(g FloatGrid, mask []bool) *MaskedGrid {
	if mask != nil && len(mask) != g.Len() {
		panic(fmt.Sprintf("emath: mask length %d != grid length %d", len(mask), g.Len()))
	}
	m := &MaskedGrid{FloatGrid: *g.Copy()}
	if mask != nil {
		m.Mask = make([]bool, len(mask))
		copy(m.Mask, mask)
	}
	return m
}

// NewMaskedGridFromNaN masks every non-finite value, the way instrument
// exports flag missing data.
func NewMaskedGridFromNaN(g FloatGrid) *MaskedGrid {
	m := &MaskedGrid{FloatGrid: *g.Copy(), Mask: make([]bool, g.Len())}
	for i, v := range m.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			m.Mask[i] = true
			m.values[i] = 0
		}
	}
	return m
}

func (m *MaskedGrid) HasMask() bool               { return m != nil && m.Mask != nil }
func (m *MaskedGrid) IsMasked(x, y int) bool      { return m.masked(m.stride*y + x) }
func (m *MaskedGrid) masked(i int) bool           { return m.Mask != nil && m.Mask[i] }
func (m *MaskedGrid) SameShape(o *MaskedGrid) bool { return m.Dx() == o.Dx() && m.Dy() == o.Dy() }

func (m *MaskedGrid) SetMasked(x, y int, invalid bool) {
	m.ensureMask()
	m.Mask[m.stride*y+x] = invalid
}

// Invalidate marks the pixel at flat index i invalid.
func (m *MaskedGrid) Invalidate(i int) {
	m.ensureMask()
	m.Mask[i] = true
}

func (m *MaskedGrid) ensureMask() {
	if m.Mask == nil {
		m.Mask = make([]bool, m.Len())
	}
}

func (m *MaskedGrid) Copy() *MaskedGrid { return NewMaskedGridFrom(m.FloatGrid, m.Mask) }

// MaskCopy always returns a non-nil mask.
func (m *MaskedGrid) MaskCopy() []bool {
	out := make([]bool, m.Len())
	if m.Mask != nil {
		copy(out, m.Mask)
	}
	return out
}

// OrMask invalidates every pixel flagged in mask.
func (m *MaskedGrid) OrMask(mask []bool) {
	if len(mask) != m.Len() {
		panic(fmt.Sprintf("emath: OrMask length %d != grid length %d", len(mask), m.Len()))
	}
	m.ensureMask()
	for i, b := range mask {
		m.Mask[i] = m.Mask[i] || b
	}
}

// ValidValues returns the values of the valid pixels, in index order.
func (m *MaskedGrid) ValidValues() []float64 {
	vals := make([]float64, 0, m.Len())
	for i, v := range m.values {
		if !m.masked(i) {
			vals = append(vals, v)
		}
	}
	return vals
}

func (m *MaskedGrid) Count() int {
	n := 0
	for i := range m.values {
		if !m.masked(i) {
			n++
		}
	}
	return n
}

func (m *MaskedGrid) Sum() float64 {
	sum := 0.0
	for i, v := range m.values {
		if !m.masked(i) {
			sum += v
		}
	}
	return sum
}

// Mean of the valid pixels; NaN when there are none.
func (m *MaskedGrid) Mean() float64 {
	vals := m.ValidValues()
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// StdDev is the population standard deviation of the valid pixels.
func (m *MaskedGrid) StdDev() float64 {
	vals := m.ValidValues()
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.PopStdDev(vals, nil)
}

func (m *MaskedGrid) Median() float64 { return Median(m.ValidValues()) }

// Filled returns a plain grid with invalid pixels replaced by v.
func (m *MaskedGrid) Filled(v float64) FloatGrid {
	out := *m.FloatGrid.Copy()
	for i := range out.values {
		if m.masked(i) {
			out.values[i] = v
		}
	}
	return out
}

// Flip180 reverses both axes (a half turn about the grid center).
func (m *MaskedGrid) Flip180() *MaskedGrid {
	out := m.Copy()
	n := m.Len()
	for i := 0; i < n; i++ {
		out.values[n-1-i] = m.values[i]
		if m.Mask != nil {
			out.Mask[n-1-i] = m.Mask[i]
		}
	}
	return out
}

func (m *MaskedGrid) Add(o *MaskedGrid) *MaskedGrid {
	return m.combine(o, func(a, b float64) float64 { return a + b })
}

func (m *MaskedGrid) Sub(o *MaskedGrid) *MaskedGrid {
	return m.combine(o, func(a, b float64) float64 { return a - b })
}

func (m *MaskedGrid) Mul(o *MaskedGrid) *MaskedGrid {
	return m.combine(o, func(a, b float64) float64 { return a * b })
}

func (m *MaskedGrid) Scale(f float64) *MaskedGrid {
	return m.apply(func(v float64) float64 { return v * f })
}

func (m *MaskedGrid) AddScalar(f float64) *MaskedGrid {
	return m.apply(func(v float64) float64 { return v + f })
}

func (m *MaskedGrid) apply(f func(float64) float64) *MaskedGrid {
	out := m.Copy()
	for i, v := range out.values {
		if m.masked(i) {
			out.values[i] = 0
			continue
		}
		out.values[i] = f(v)
	}
	return out
}

// combine panics on a shape mismatch; callers check shapes first.
func (m *MaskedGrid) combine(o *MaskedGrid, f func(a, b float64) float64) *MaskedGrid {
	if !m.SameShape(o) {
		panic(fmt.Sprintf("emath: shape mismatch %dx%d vs %dx%d", m.Dx(), m.Dy(), o.Dx(), o.Dy()))
	}
	out := NewMaskedGrid(m.Dx(), m.Dy())
	if m.Mask == nil && o.Mask == nil {
		out.Mask = nil
	}
	for i := range out.values {
		if m.masked(i) || o.masked(i) {
			out.Mask[i] = true
			continue
		}
		out.values[i] = f(m.values[i], o.values[i])
	}
	return out
}

func (m *MaskedGrid) String() string {
	return fmt.Sprintf("masked[%dx%d, %d valid]", m.Dx(), m.Dy(), m.Count())
}
