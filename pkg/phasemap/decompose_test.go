package phasemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/sagmap/pkg/emath"
)

func TestNollToNM(t *testing.T) {
	for j, want := range map[int][2]int{
		1: {0, 0}, 2: {1, 1}, 3: {1, -1}, 4: {2, 0}, 5: {2, -2},
		6: {2, 2}, 7: {3, -1}, 8: {3, 1}, 11: {4, 0},
	} {
		n, m := NollToNM(j)
		assert.Equal(t, want, [2]int{n, m}, "noll %d", j)
	}
}

func testBasis(t *testing.T, n int) *PolynomialBasis {
	rf, err := NewReferenceFrame(25, 20, 64, 64, 0)
	require.NoError(t, err)
	basis, err := NewPolynomialBasis(rf, n)
	require.NoError(t, err)
	return basis
}

func TestBasisIsOrthonormal(t *testing.T) {
	basis := testBasis(t, 10)

	for i := 0; i < basis.N; i++ {
		for j := 0; j < basis.N; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, basis.Cov.At(i, j), 1e-9, "cov[%d][%d]", i, j)
		}
	}

	for _, v := range basis.Q[0].ValidValues() {
		assert.InDelta(t, 1.0, v, 1e-9, "piston")
	}
	assert.Equal(t, basis.Frame.PupilCount(), basis.Q[5].Count())
}

func TestBasisNeedsEnoughPixels(t *testing.T) {
	rf, err := NewReferenceFrame(1, 1, 4, 4, 0)
	require.NoError(t, err)
	_, err = NewPolynomialBasis(rf, 15)
	assert.ErrorIs(t, err, ErrBasisDegenerate)
}

func TestDecomposeRoundTrip(t *testing.T) {
	basis := testBasis(t, 10)
	want := []float64{2, 0, 0, 0.5, 0, 0, 0, -1.5, 0, 0}
	m := basis.Sum(want, len(want), basis.Frame.Pupil)

	for _, shared := range []bool{false, true} {
		fit, err := Decompose(basis, m, shared)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, fit.Coeff, 1e-8)
		assert.InDelta(t, 0.0, fit.Residual.StdDev(), 1e-8)
		assert.Equal(t, basis.Frame.PupilCount(), fit.NValid)
	}

	// holes change the normal matrix but not an exact answer
	holey := m.Copy()
	for x := 20; x < 30; x++ {
		holey.SetMasked(x, 32, true)
	}
	fit, err := Decompose(basis, holey, false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, fit.Coeff, 1e-8)
	assert.Equal(t, basis.Frame.PupilCount()-10, fit.NValid)

	pttf := basis.Sum(want, NPTTF, holey.Mask)
	diff := fit.MinusPTTF.Sub(holey.Sub(pttf))
	assert.InDelta(t, 0.0, diff.StdDev(), 1e-8)
	assert.True(t, fit.Model.IsMasked(25, 32))
}

func TestDecomposeZeroMap(t *testing.T) {
	basis := testBasis(t, 6)
	m := emath.NewMaskedGridFrom(emath.NewFloatGrid(64, 64), basis.Frame.Pupil)

	fit, err := Decompose(basis, m, false)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 6), fit.Coeff)
}

func TestDecomposeErrors(t *testing.T) {
	basis := testBasis(t, 6)

	_, err := Decompose(basis, nil, false)
	assert.ErrorIs(t, err, ErrNotMasked)

	_, err = Decompose(basis, emath.NewMaskedGridFrom(emath.NewFloatGrid(64, 64), nil), false)
	assert.ErrorIs(t, err, ErrNotMasked)

	_, err = Decompose(basis, emath.NewMaskedGrid(10, 10), false)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	empty := emath.NewMaskedGrid(64, 64)
	for i := range empty.Mask {
		empty.Mask[i] = true
	}
	_, err = Decompose(basis, empty, false)
	assert.ErrorIs(t, err, ErrEmptyMap)
}
