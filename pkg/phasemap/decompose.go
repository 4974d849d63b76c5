package phasemap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/sagmap/pkg/emath"
)

// NPTTF is the number of leading basis terms making up piston, tip, tilt
// and focus.
const NPTTF = 4

// Covariance entries smaller than this are treated as exact zeros.
const covarianceFloor = 1e-10

// A FitResult is one sequence's map expressed in a PolynomialBasis.
type FitResult struct {
	Coeff     []float64
	PTTF      *emath.MaskedGrid // sum of the first NPTTF terms
	Model     *emath.MaskedGrid // sum of all the terms
	Residual  *emath.MaskedGrid // map - Model
	MinusPTTF *emath.MaskedGrid // map - PTTF
	NValid    int
}

// Decompose fits m with the basis by least squares over the pixels valid
// in both the pupil and m. The normal matrix is built from the basis over
// those pixels only (or taken from the basis itself if shared is set),
// so it is only close to the identity when m has holes; it is solved by
// SVD rather than assumed diagonal.
func Decompose(basis *PolynomialBasis, m *emath.MaskedGrid, shared bool) (*FitResult, error) {
	if m == nil || !m.HasMask() {
		return nil, ErrNotMasked
	}
	if m.Dx() != basis.Frame.Nx || m.Dy() != basis.Frame.Ny {
		return nil, fmt.Errorf("%w: map %dx%d, basis %dx%d", ErrShapeMismatch, m.Dx(), m.Dy(), basis.Frame.Nx, basis.Frame.Ny)
	}

	valid := []int{}
	for i, outside := range basis.Frame.Pupil {
		if !outside && !m.Mask[i] {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w inside the pupil", ErrEmptyMap)
	}

	n := basis.N
	count := float64(len(valid))
	vals := m.Values()

	a := mat.NewDense(n, n, nil)
	if shared {
		a.Copy(basis.Cov)
	} else {
		for i := 0; i < n; i++ {
			qi := basis.Q[i].Values()
			for j := i; j < n; j++ {
				qj := basis.Q[j].Values()
				sum := 0.0
				for _, p := range valid {
					sum += qi[p] * qj[p]
				}
				a.Set(i, j, sum/count)
				a.Set(j, i, sum/count)
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.Abs(a.At(i, j)) < covarianceFloor {
				a.Set(i, j, 0)
			}
		}
	}

	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		qi := basis.Q[i].Values()
		sum := 0.0
		for _, p := range valid {
			sum += qi[p] * vals[p]
		}
		b.SetVec(i, sum/count)
	}

	coeff, err := lstsq(a, b)
	if err != nil {
		return nil, err
	}

	mask := m.MaskCopy()
	for i, outside := range basis.Frame.Pupil {
		mask[i] = mask[i] || outside
	}

	fr := &FitResult{
		Coeff:  coeff,
		PTTF:   basis.Sum(coeff, NPTTF, mask),
		Model:  basis.Sum(coeff, n, mask),
		NValid: len(valid),
	}
	fr.Residual = m.Sub(fr.Model)
	fr.MinusPTTF = m.Sub(fr.PTTF)

	return fr, nil
}

// lstsq solves a x = b in the least squares sense, discarding singular
// values below machine precision relative to the largest.
func lstsq(a *mat.Dense, b *mat.VecDense) ([]float64, error) {
	n, _ := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD failed", ErrBasisDegenerate)
	}

	coeff := make([]float64, n)
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(n))
	if rank == 0 {
		return coeff, nil // all-zero system, all-zero fit
	}

	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	for i := range coeff {
		coeff[i] = x.AtVec(i)
	}
	return coeff, nil
}

// Sum returns the sum of the first k terms weighted by coeff, invalid
// wherever mask is set.
func (pb *PolynomialBasis) Sum(coeff []float64, k int, mask []bool) *emath.MaskedGrid {
	if k > len(coeff) {
		k = len(coeff)
	}
	out := emath.NewMaskedGridFrom(emath.NewFloatGrid(pb.Frame.Nx, pb.Frame.Ny), mask)
	vals := out.Values()
	for j := 0; j < k; j++ {
		floats.AddScaled(vals, coeff[j], pb.Q[j].Values())
	}
	for i, invalid := range out.Mask {
		if invalid {
			vals[i] = 0
		}
	}
	return out
}
