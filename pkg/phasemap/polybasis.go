package phasemap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A PolynomialBasis holds N functions over a reference frame, built from
// Noll-ordered Zernike polynomials and orthonormalized over the pupil, so
// the first four are piston, tip, tilt and focus. Cov[i][j] is the pupil
// mean of Q_i*Q_j, the identity up to rounding. A basis is read-only once
// built and is shared by every sequence fit.
type PolynomialBasis struct {
	Frame *ReferenceFrame
	N     int
	Q     emath.MaskedStack
	Cov   *mat.SymDense
}

// NollToNM maps a Noll index j (from 1) onto radial order n and azimuthal
// frequency m.
func NollToNM(j int) (n, m int) {
	if j < 1 {
		panic(fmt.Sprintf("phasemap: Noll index %d < 1", j))
	}
	j1 := j - 1
	for j1 > n {
		n++
		j1 -= n
	}
	m = (n % 2) + 2*((j1+(n+1)%2)/2)
	if j%2 == 1 {
		m = -m
	}
	return n, m
}

func factorial(k int) float64 {
	f := 1.0
	for i := 2; i <= k; i++ {
		f *= float64(i)
	}
	return f
}

// radial is the Zernike radial polynomial R_n^m at rho, for m >= 0.
func radial(n, m int, rho float64) float64 {
	sum := 0.0
	for k := 0; k <= (n-m)/2; k++ {
		c := factorial(n-k) / (factorial(k) * factorial((n+m)/2-k) * factorial((n-m)/2-k))
		if k%2 == 1 {
			c = -c
		}
		sum += c * math.Pow(rho, float64(n-2*k))
	}
	return sum
}

// Zernike evaluates the normalized Zernike polynomial of Noll index j.
func Zernike(j int, rho, phi float64) float64 {
	n, m := NollToNM(j)
	switch {
	case m == 0:
		return math.Sqrt(float64(n+1)) * radial(n, 0, rho)
	case m > 0:
		return math.Sqrt(2*float64(n+1)) * radial(n, m, rho) * math.Cos(float64(m)*phi)
	default:
		return math.Sqrt(2*float64(n+1)) * radial(n, -m, rho) * math.Sin(float64(-m)*phi)
	}
}

// NewPolynomialBasis evaluates n Zernike polynomials over rf and makes
// them orthonormal over its pupil: with C = L L' the Cholesky factor of
// their pupil covariance, Q = inv(L) Z.
func NewPolynomialBasis(rf *ReferenceFrame, n int) (*PolynomialBasis, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d polynomials", ErrBasisDegenerate, n)
	}

	npx := rf.Nx * rf.Ny
	pupil := []int{}
	for i, outside := range rf.Pupil {
		if !outside {
			pupil = append(pupil, i)
		}
	}
	if len(pupil) < n {
		return nil, fmt.Errorf("%w: %d pupil pixels for %d polynomials", ErrBasisDegenerate, len(pupil), n)
	}

	rho, phi := rf.Rho.Values(), rf.Phi.Values()
	z := make([][]float64, n)
	for j := range z {
		z[j] = make([]float64, npx)
		for i := 0; i < npx; i++ {
			z[j][i] = Zernike(j+1, rho[i], phi[i])
		}
	}

	c := pupilCovariance(z, pupil)
	var chol mat.Cholesky
	if ok := chol.Factorize(c); !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", ErrBasisDegenerate)
	}
	var l, linv mat.TriDense
	chol.LTo(&l)
	if err := linv.InverseTri(&l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBasisDegenerate, err)
	}

	q := make([][]float64, n)
	for j := range q {
		q[j] = make([]float64, npx)
		for k := 0; k <= j; k++ {
			lk := linv.At(j, k)
			if lk == 0 {
				continue
			}
			for i := range q[j] {
				q[j][i] += lk * z[k][i]
			}
		}
	}

	basis := &PolynomialBasis{Frame: rf, N: n, Q: make(emath.MaskedStack, n)}
	for j := range q {
		basis.Q[j] = emath.NewMaskedGridFrom(emath.NewFloatGridFromValues(rf.Nx, q[j]), rf.Pupil)
	}
	basis.Cov = pupilCovariance(q, pupil)

	return basis, nil
}

// pupilCovariance is the mean over the pupil pixels of f_i*f_j.
func pupilCovariance(f [][]float64, pupil []int) *mat.SymDense {
	n := len(f)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for _, p := range pupil {
				sum += f[i][p] * f[j][p]
			}
			c.SetSym(i, j, sum/float64(len(pupil)))
		}
	}
	return c
}
