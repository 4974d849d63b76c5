package phasemap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/sagmap/pkg/emath"
)

func fakeFit(m *emath.MaskedGrid, coeff ...float64) *FitResult {
	return &FitResult{Coeff: coeff, Residual: m, MinusPTTF: m}
}

func TestPairsFromGroups(t *testing.T) {
	pairs, err := PairsFromGroups([][]int{{1, 3}, {5}}, [][]int{{2, 4}, {6}}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []ZeroGPair{{1, 2, "a"}, {3, 4, "a"}, {5, 6, "b"}}, pairs)

	_, err = PairsFromGroups([][]int{{1, 3}}, [][]int{{2}}, []string{""})
	assert.ErrorIs(t, err, ErrPairingMismatch)
	_, err = PairsFromGroups([][]int{{1}}, [][]int{{2}}, nil)
	assert.ErrorIs(t, err, ErrPairingMismatch)
}

func TestGroupsFromStarts(t *testing.T) {
	gplus, gminus, err := GroupsFromStarts([][]int{{1, 5}, {10, 20}}, []int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {10}}, gplus)
	assert.Equal(t, [][]int{{5, 6, 7}, {20}}, gminus)

	_, _, err = GroupsFromStarts([][]int{{1, 5}}, nil)
	assert.ErrorIs(t, err, ErrPairingMismatch)
}

func TestZeroGCancelsSag(t *testing.T) {
	sag := rampFrame(8, 8)
	shape := constantMap(8, 8, 0.25)

	fits := map[int]*FitResult{
		1: fakeFit(shape.Add(sag), 1, 2),
		2: fakeFit(shape.Sub(sag), 3, -2),
	}
	zg, err := ZeroG(fits, []ZeroGPair{{U: 1, V: 2, Tag: "x"}})
	require.NoError(t, err)

	require.Len(t, zg.Residuals, 1)
	for _, v := range zg.Residuals[0].ValidValues() {
		assert.InDelta(t, 0.25, v, 1e-12)
	}
	assert.Equal(t, [][]float64{{2, 0}}, zg.Coeffs)
	assert.Equal(t, []float64{2, 0}, zg.MedianCoeff)
	assert.Equal(t, []string{"x"}, zg.Tags)

	// a single pair is its own median
	assert.InDelta(t, 0.0, zg.RMS[0], 1e-12)
}

func TestZeroGMedianAndRMS(t *testing.T) {
	fits := map[int]*FitResult{
		1: fakeFit(constantMap(4, 4, 1), 0),
		2: fakeFit(constantMap(4, 4, 1), 0),
		3: fakeFit(constantMap(4, 4, 2), 0),
		4: fakeFit(constantMap(4, 4, 2), 0),
		5: fakeFit(constantMap(4, 4, 7), 0),
		6: fakeFit(constantMap(4, 4, 7), 0),
	}
	pairs := []ZeroGPair{{U: 1, V: 2}, {U: 3, V: 4}, {U: 5, V: 6}}
	zg, err := ZeroG(fits, pairs)
	require.NoError(t, err)

	assert.Equal(t, 2.0, zg.Median.Get(1, 1))
	// constant offsets have no scatter about the median
	assert.Equal(t, []float64{0, 0, 0}, zg.RMS)
}

func TestZeroGErrors(t *testing.T) {
	fits := map[int]*FitResult{1: fakeFit(constantMap(4, 4, 1), 0)}

	_, err := ZeroG(fits, []ZeroGPair{{U: 1, V: 9}})
	assert.ErrorIs(t, err, ErrUnknownSequence)

	_, err = ZeroG(fits, nil)
	assert.ErrorIs(t, err, ErrPairingMismatch)

	fits[2] = fakeFit(constantMap(5, 4, 1), 0)
	_, err = ZeroG(fits, []ZeroGPair{{U: 1, V: 2}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDeltaMapFitsGain(t *testing.T) {
	base := rampFrame(6, 6).AddScalar(1)
	maps := emath.MaskedStack{base, base.Scale(2)}

	d, err := DeltaMap(maps, IndexRange{0, 1}, IndexRange{1, 2}, nil, emath.ReduceMean)
	require.NoError(t, err)
	assert.True(t, d.GainFitted)
	assert.InDelta(t, 0.5, d.Gain, 1e-12)
	for _, v := range d.DMap.ValidValues() {
		assert.InDelta(t, 0.0, v, 1e-12)
	}

	d, err = DeltaMap(maps, IndexRange{0, 1}, IndexRange{1, 2}, floatPtr(1), emath.ReduceMean)
	require.NoError(t, err)
	assert.False(t, d.GainFitted)
	assert.InDelta(t, base.Get(3, 2), d.DMap.Get(3, 2), 1e-12)
}

func TestDeltaMapReducesSelections(t *testing.T) {
	maps := emath.MaskedStack{
		constantMap(3, 3, 1),
		constantMap(3, 3, 2),
		constantMap(3, 3, 4),
		constantMap(3, 3, 9),
	}
	d, err := DeltaMap(maps, IndexRange{0, 1}, IndexRange{1, 4}, floatPtr(1), emath.ReduceMedian)
	require.NoError(t, err)
	assert.Equal(t, 4.0, d.Map1.Get(0, 0))
	assert.Equal(t, 3.0, d.DMap.Get(2, 2))
}

func TestDeltaMapBadSelections(t *testing.T) {
	maps := emath.MaskedStack{constantMap(3, 3, 1), constantMap(3, 3, 2), constantMap(3, 3, 0)}

	for _, sels := range [][2]IndexRange{
		{{0, 1}, {1, 4}}, // past the end
		{{0, 1}, {1, 1}}, // empty
		{{0, 2}, {1, 3}}, // overlapping
		{{0, 1}, {2, 3}}, // no signal in the second map
	} {
		_, err := DeltaMap(maps, sels[0], sels[1], nil, emath.ReduceMean)
		assert.ErrorIs(t, err, ErrBadSelection, "%v", sels)
	}
}

func TestPSDParseval(t *testing.T) {
	m := emath.NewMaskedGrid(32, 24)
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			m.Set(x, y, math.Sin(0.7*float64(x))+0.3*math.Cos(1.9*float64(y))+0.01*float64(x*y))
		}
	}
	m.SetMasked(5, 5, true)

	psd, err := ComputePSD(m, 10, 1, nil)
	require.NoError(t, err)
	assert.Len(t, psd.Bins, 10)
	assert.Len(t, psd.Power, 9)
	assert.InDelta(t, 0.0, psd.Error, 1e-9)

	for k := 1; k < len(psd.Freq); k++ {
		assert.Greater(t, psd.Freq[k], psd.Freq[k-1])
	}
}

func TestPSDWindows(t *testing.T) {
	m := rampFrame(16, 16)

	win, err := GetWindow("hann", Ellipse{})
	require.NoError(t, err)
	_, err = ComputePSD(m, 0, 1, win)
	require.NoError(t, err)

	ew, err := GetWindow("ellipse", Ellipse{A: 6, B: 5, Xc: 8, Yc: 8})
	require.NoError(t, err)
	w := ew(16, 16)
	assert.True(t, w.IsMasked(0, 0))
	assert.InDelta(t, 1.0, w.Mul(w).Mean(), 1e-12)

	_, err = GetWindow("ellipse", Ellipse{})
	assert.Error(t, err)
	_, err = GetWindow("blackman", Ellipse{})
	assert.Error(t, err)

	none, err := GetWindow("none", Ellipse{})
	require.NoError(t, err)
	assert.Nil(t, none)
}
