package phasemap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/sagmap/pkg/emath"
)

func rampFrame(w, h int) *emath.MaskedGrid {
	m := emath.NewMaskedGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, 0.01*float64(x))
		}
	}
	return m
}

func TestFilterOutliersMasksSpikes(t *testing.T) {
	frame := rampFrame(32, 32)
	frame.Set(10, 12, 1000)
	frame.SetMasked(3, 4, true)
	raw := RawFrameStack{Frames: emath.MaskedStack{frame}}

	clean, err := FilterOutliers(NewConfig(), raw)
	require.NoError(t, err)
	require.Len(t, clean.Frames, 1)
	assert.False(t, clean.Flipped)

	out := clean.Frames[0]
	assert.True(t, out.IsMasked(10, 12), "spike")
	assert.True(t, out.IsMasked(3, 4), "masks only grow")
	assert.False(t, out.IsMasked(16, 20))

	// mean removed, raw frame untouched
	assert.InDelta(t, 0.01*16-frame.Mean(), out.Get(16, 20), 1e-9)
	assert.Equal(t, 1000.0, frame.Get(10, 12))
	assert.False(t, frame.IsMasked(10, 12))

	for i, invalid := range frame.Mask {
		if invalid {
			assert.True(t, out.Mask[i])
		}
	}
}

func TestFilterOutliersFlips(t *testing.T) {
	frame := constantMap(8, 6, 1)
	frame.SetMasked(1, 2, true)
	raw := RawFrameStack{Frames: emath.MaskedStack{frame, frame.Copy()}, Orientation: math.Pi}

	clean, err := FilterOutliers(NewConfig(), raw)
	require.NoError(t, err)
	assert.True(t, clean.Flipped)
	for _, f := range clean.Frames {
		assert.True(t, f.IsMasked(6, 3))
		assert.False(t, f.IsMasked(1, 2))
	}
	assert.Equal(t, []float64{0, 0}, clean.DiffRMS)
}

func TestFilterOutliersShapes(t *testing.T) {
	raw := RawFrameStack{Frames: emath.MaskedStack{constantMap(4, 4, 0), constantMap(5, 4, 0)}}
	_, err := FilterOutliers(NewConfig(), raw)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func maskedCount(w, h, nInvalid int, v float64) *emath.MaskedGrid {
	m := constantMap(w, h, v)
	for i := 0; i < nInvalid; i++ {
		m.Invalidate(i)
	}
	return m
}

func TestAggregateFrames(t *testing.T) {
	clean := &CleanMap{Frames: emath.MaskedStack{
		maskedCount(4, 4, 0, 1),
		maskedCount(4, 4, 2, 3),
		maskedCount(4, 4, 5, 100),
	}}

	agg, err := AggregateFrames(clean, 11, emath.ReduceMean)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, agg.Selected, "a frame at the threshold is dropped")
	assert.Equal(t, 1.0, agg.Combined.Get(0, 0))
	assert.Equal(t, 2.0, agg.Combined.Get(3, 3))
	assert.Equal(t, 16, agg.Combined.Count())
	assert.Equal(t, []bool{true, true}, agg.SuperMask[:2])
	assert.False(t, agg.SuperMask[2])

	_, err = AggregateFrames(clean, 16, emath.ReduceMean)
	assert.ErrorIs(t, err, ErrNoFramesSelected)
}

func TestSelectionThreshold(t *testing.T) {
	th, err := SelectionThreshold([]int{30, 10, 20}, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, th)

	_, err = SelectionThreshold(nil, 0.1)
	assert.Error(t, err)

	assert.Contains(t, countSummary([]int{10, 20, 30}), "3 frames")
}
