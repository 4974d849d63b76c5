package phasemap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConicToEllipse(t *testing.T) {
	// (x-3)^2 + (y-4)^2 = 4
	e, err := ConicToEllipse([6]float64{1, 0, 1, -6, -8, 21})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, e.Xc, 1e-12)
	assert.InDelta(t, 4.0, e.Yc, 1e-12)
	assert.InDelta(t, 2.0, e.A, 1e-12)
	assert.InDelta(t, 2.0, e.B, 1e-12)

	// x^2/16 + y^2/4 = 1
	e, err = ConicToEllipse([6]float64{1.0 / 16, 0, 1.0 / 4, 0, 0, -1})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, e.A, 1e-12)
	assert.InDelta(t, 2.0, e.B, 1e-12)
	assert.InDelta(t, 0.0, e.Phi, 1e-12)

	// same ellipse, both sides negated
	e, err = ConicToEllipse([6]float64{-1.0 / 16, 0, -1.0 / 4, 0, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, e.A, 1e-12)
	assert.InDelta(t, 2.0, e.B, 1e-12)
	assert.InDelta(t, 0.0, e.Phi, 1e-12)

	_, err = ConicToEllipse([6]float64{1, 0, -1, 0, 0, -1})
	assert.ErrorIs(t, err, ErrNoEllipse)
}

func TestEllipseInside(t *testing.T) {
	e := Ellipse{A: 10, B: 5, Xc: 20, Yc: 20, Phi: math.Pi / 2}
	assert.True(t, e.Inside(20, 29, 1))  // along the rotated major axis
	assert.False(t, e.Inside(29, 20, 1)) // beyond the minor axis
	assert.InDelta(t, 1.0, e.NormalizedRadius2(20, 30), 1e-12)
}

func TestFitEllipseRecovers(t *testing.T) {
	truth := Ellipse{A: 80, B: 50, Xc: 100, Yc: 80, Phi: 0.3}
	m := apertureMap(200, 160, truth, nil)

	e, err := FitEllipse(NewConfig(), m.Mask, 200, 160)
	require.NoError(t, err)

	assert.InDelta(t, truth.A, e.A, 1.0)
	assert.InDelta(t, truth.B, e.B, 1.0)
	assert.InDelta(t, truth.Xc, e.Xc, 1.0)
	assert.InDelta(t, truth.Yc, e.Yc, 1.0)
	assert.InDelta(t, truth.Phi, e.Phi, 0.02)
	assert.False(t, e.RFInverted)

	// a clean edge leaves no boundary point deep inside the first fit
	assert.Equal(t, 1, e.Iterations)
	assert.Greater(t, e.NPoints, 6)
}

func TestFitEllipseNormalizesVerticalApertures(t *testing.T) {
	// major axis along y
	truth := Ellipse{A: 50, B: 80, Xc: 100, Yc: 100, Phi: 0}
	m := apertureMap(200, 200, truth, nil)

	e, err := FitEllipse(NewConfig(), m.Mask, 200, 200)
	require.NoError(t, err)

	assert.True(t, e.RFInverted)
	assert.InDelta(t, 50.0, e.A, 1.0)
	assert.InDelta(t, 80.0, e.B, 1.0)
	assert.InDelta(t, 0.0, e.Phi, 0.02)
}

func TestFitEllipseOrientations(t *testing.T) {
	// none of these lies within 5deg of vertical
	for deg := -80; deg <= 160; deg += 20 {
		truth := Ellipse{A: 80, B: 50, Xc: 100, Yc: 100, Phi: float64(deg) * math.Pi / 180}
		m := apertureMap(200, 200, truth, nil)

		e, err := FitEllipse(NewConfig(), m.Mask, 200, 200)
		require.NoError(t, err, "phi=%ddeg", deg)

		assert.InDelta(t, truth.A, e.A, 1.0, "phi=%ddeg", deg)
		assert.InDelta(t, truth.B, e.B, 1.0, "phi=%ddeg", deg)
		assert.False(t, e.RFInverted, "phi=%ddeg", deg)
		assert.Less(t, math.Abs(math.Remainder(e.Phi-truth.Phi, math.Pi)), 0.02, "phi=%ddeg", deg)
		assert.True(t, e.Phi > -math.Pi/2 && e.Phi <= math.Pi/2, "phi=%ddeg gave %f", deg, e.Phi)
	}
}

func TestNormalizeOrientationWrapsPhi(t *testing.T) {
	e := normalizeOrientation(Ellipse{A: 80, B: 50, Phi: 2.5})
	assert.InDelta(t, 2.5-math.Pi, e.Phi, 1e-12)
	assert.False(t, e.RFInverted)

	e = normalizeOrientation(Ellipse{A: 80, B: 50, Phi: math.Pi / 2})
	assert.True(t, e.RFInverted)
	assert.InDelta(t, 50.0, e.A, 1e-12)
	assert.InDelta(t, 0.0, e.Phi, 1e-12)

	e = normalizeOrientation(Ellipse{A: 80, B: 50, Phi: -math.Pi / 2})
	assert.InDelta(t, math.Pi/2, e.Phi, 1e-12)
}

func TestFitEllipseErrors(t *testing.T) {
	cfg := NewConfig()

	_, err := FitEllipse(cfg, make([]bool, 10), 4, 4)
	assert.ErrorIs(t, err, ErrBadMask)

	// no edge at all
	_, err = FitEllipse(cfg, make([]bool, 16*16), 16, 16)
	assert.ErrorIs(t, err, ErrNoEllipse)
}
