package emath

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median(nil)))

	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in, "input must not be reordered")
}

func TestPercentile(t *testing.T) {
	vals := []float64{10, 0, 20, 30, 40}
	p, err := Percentile(vals, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	p, err = Percentile(vals, 100)
	require.NoError(t, err)
	assert.Equal(t, 40.0, p)

	_, err = Percentile(nil, 50)
	assert.Error(t, err)
	_, err = Percentile(vals, 101)
	assert.Error(t, err)
}

func TestSigmaClip(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i%2) * 0.1
	}
	vals[17] = 1000

	clipped := SigmaClip(vals, 5, 5)
	for i, c := range clipped {
		assert.Equal(t, i == 17, c, "index %d", i)
	}

	assert.Equal(t, make([]bool, 4), SigmaClip([]float64{1, 1, 1, 1}, 3, 5))
}

func TestReducers(t *testing.T) {
	assert.Equal(t, 2.0, ReduceMean([]float64{1, 2, 3}))
	assert.Equal(t, 1.0, ReduceMedian([]float64{1, 1, 10}))

	r, err := GetReducer("median")
	require.NoError(t, err)
	assert.Equal(t, 1.0, r([]float64{1, 1, 10}))

	_, err = GetReducer("mode")
	assert.Error(t, err)
}

func TestMaskedGridArithmetic(t *testing.T) {
	a := NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{1, 2, 3, 4}), []bool{false, true, false, false})
	b := NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{10, 20, 30, 40}), []bool{false, false, false, true})

	sum := a.Add(b)
	assert.Equal(t, []bool{false, true, false, true}, sum.Mask)
	assert.Equal(t, 11.0, sum.Get(0, 0))
	assert.Equal(t, 33.0, sum.Get(0, 1))

	assert.Equal(t, 3, a.Count())
	assert.Equal(t, 8.0, a.Sum())
	assert.InDelta(t, 8.0/3.0, a.Mean(), 1e-12)
	assert.Equal(t, 3.0, a.Median())

	plain := NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{1, 2, 3, 4}), nil)
	assert.False(t, plain.HasMask())
	assert.Nil(t, plain.Add(plain).Mask)
	assert.Panics(t, func() { a.Add(NewMaskedGrid(3, 3)) })
}

func TestFlip180(t *testing.T) {
	g := NewMaskedGridFrom(NewFloatGridFromValues(3, []float64{1, 2, 3, 4, 5, 6}), []bool{true, false, false, false, false, false})
	f := g.Flip180()
	assert.Equal(t, []float64{6, 5, 4, 3, 2, 1}, f.Values())
	assert.Equal(t, []bool{false, false, false, false, false, true}, f.Mask)
	assert.Equal(t, g.Values(), f.Flip180().Values())
}

func TestMaskedStackReduce(t *testing.T) {
	s := MaskedStack{
		NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{1, 1}), []bool{false, true}),
		NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{3, 5}), []bool{false, true}),
		NewMaskedGridFrom(NewFloatGridFromValues(2, []float64{8, 7}), []bool{false, true}),
	}
	require.NoError(t, s.Check())

	mean := s.Reduce(ReduceMean)
	assert.Equal(t, 4.0, mean.Get(0, 0))
	assert.True(t, mean.IsMasked(1, 0), "all inputs invalid")

	med := s.Reduce(ReduceMedian)
	assert.Equal(t, 3.0, med.Get(0, 0))

	assert.Equal(t, []int{1, 1, 1}, s.Counts())
	assert.Equal(t, []bool{false, true}, s.OrMask())
	assert.Len(t, s.Select([]int{0, 2}), 2)
}

func TestMedianFilter(t *testing.T) {
	g := NewFloatGridFromValues(3, []float64{
		1, 1, 1,
		1, 9, 1,
		1, 1, 1,
	})
	out, err := MedianFilter(g, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Get(1, 1), "spike removed")
	// The corner window holds 4 grid values and 5 zero pads.
	assert.Equal(t, 0.0, out.Get(0, 0))

	_, err = MedianFilter(g, 2)
	assert.Error(t, err)
}

func TestGradient(t *testing.T) {
	g := NewFloatGridFromValues(4, []float64{
		0, 1, 4, 9,
		0, 1, 4, 9,
	})
	gy, gx := g.Gradient()
	assert.Equal(t, []float64{1, 2, 4, 5, 1, 2, 4, 5}, gx.Values())
	assert.Equal(t, make([]float64, 8), gy.Values())
}

func TestAffine(t *testing.T) {
	m := RotateAbout(math.Pi/2, 1, 1)
	x, y := m.Apply(2, 1)
	assert.InDelta(t, 1.0, x, 1e-12)
	assert.InDelta(t, 2.0, y, 1e-12)

	inv, err := m.Invert()
	require.NoError(t, err)
	x, y = inv.Apply(x, y)
	assert.InDelta(t, 2.0, x, 1e-12)
	assert.InDelta(t, 1.0, y, 1e-12)

	_, err = Aff3{}.Invert()
	assert.Error(t, err)
}

func TestFFT2(t *testing.T) {
	g := NewFloatGrid(4, 2)
	for i := range g.values {
		g.values[i] = 1
	}
	f := FFT2(g)
	assert.InDelta(t, 8.0, real(f.Get(0, 0)), 1e-12)
	for i := 1; i < len(f.Values); i++ {
		assert.InDelta(t, 0.0, cmplxAbs(f.Values[i]), 1e-12)
	}

	s := f.Shift()
	assert.InDelta(t, 8.0, real(s.Get(2, 1)), 1e-12)

	assert.Equal(t, []float64{-0.5, -0.25, 0, 0.25}, ShiftedFreqs(4, 1))
	assert.Equal(t, []float64{-1, 0, 1}, ShiftedFreqs(3, 1.0/3.0))
}

func cmplxAbs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }

func TestLinspaceAndHann(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Linspace(0, 1, 3))
	w := HannWindow(3)
	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[1], 1e-12)
	assert.InDelta(t, 0.0, w[2], 1e-12)
}

func TestHDRGrid(t *testing.T) {
	m := NewMaskedGrid(2, 2)
	m.Set(0, 0, 1)
	m.Set(1, 0, 3)
	m.Set(0, 1, -7)
	m.SetMasked(0, 1, true)

	h := hdrGrid{g: m, offset: 1}
	c, ok := h.HDRAt(1, 0).(hdrcolor.RGB)
	require.True(t, ok)
	assert.Equal(t, hdrcolor.RGB{R: 2, G: 2, B: 2}, c)
	assert.Equal(t, hdrcolor.RGB{}, h.HDRAt(0, 1))

	f := filepath.Join(t.TempDir(), "grid.hdr")
	require.NoError(t, m.WriteHDR(f))
	assert.FileExists(t, f)
}
