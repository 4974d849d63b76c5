package phasemap

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/sagmap/pkg/emath"
)

// An Ellipse describes the optical aperture of a sequence. A is the semi
// axis along the direction at angle Phi from the +x axis (counter
// clockwise in x/y pixel coordinates), B the other one. Straight from a
// fit A is the semi-major axis; if the major axis lies within 5deg of
// vertical, the axes are swapped, Phi is turned back by 90deg and
// RFInverted is set, so that every sequence shares one convention. Phi
// always lies in (-pi/2, pi/2].
type Ellipse struct {
	A, B       float64
	Xc, Yc     float64
	Phi        float64
	RFInverted bool

	Iterations int // fits performed by the outlier rejection loop
	NPoints    int // boundary points left in the final fit
}

func (e Ellipse) String() string {
	str := fmt.Sprintf("Ellipse[(%6.2f,%6.2f) a:%6.2f b:%6.2f, %5.2fdeg", e.Xc, e.Yc, e.A, e.B, e.Phi*180/math.Pi)
	if e.RFInverted {
		str += ", inverted"
	}
	return str + "]"
}

// NormalizedRadius2 is (u/A)^2 + (v/B)^2, where (u,v) are the ellipse's
// own axis coordinates of the point.
func (e Ellipse) NormalizedRadius2(x, y float64) float64 {
	c, s := math.Cos(e.Phi), math.Sin(e.Phi)
	dx, dy := x-e.Xc, y-e.Yc
	u := c*dx + s*dy
	v := -s*dx + c*dy
	return (u/e.A)*(u/e.A) + (v/e.B)*(v/e.B)
}

// Inside reports whether the point is well inside the ellipse, i.e. its
// normalized radius squared is below tol.
func (e Ellipse) Inside(x, y, tol float64) bool { return e.NormalizedRadius2(x, y) < tol }

// ConicToEllipse converts the conic
//
//	c0*x^2 + c1*x*y + c2*y^2 + c3*x + c4*y + c5 = 0
//
// into center, semi-axes and angle. The conic's overall sign is arbitrary.
// A is the semi-major axis and Phi the angle of that axis from +x, in
// [-pi/4, 3pi/4).
func ConicToEllipse(c [6]float64) (Ellipse, error) {
	// the axis formulas below assume c0+c2 > 0
	if c[0]+c[2] < 0 {
		for i := range c {
			c[i] = -c[i]
		}
	}
	a, b, cc := c[0], c[1]/2, c[2]
	d, f, g := c[3]/2, c[4]/2, c[5]

	disc := b*b - a*cc
	if disc >= 0 {
		return Ellipse{}, fmt.Errorf("%w: conic %v is not an ellipse", ErrNoEllipse, c)
	}

	x0 := (cc*d - b*f) / disc
	y0 := (a*f - b*d) / disc

	num := 2 * (a*f*f + cc*d*d + g*b*b - 2*b*d*f - a*cc*g)
	root := math.Sqrt((a-cc)*(a-cc) + 4*b*b)
	width := math.Sqrt(num / (disc * (root - (cc + a))))
	height := math.Sqrt(num / (disc * (-root - (cc + a))))
	if math.IsNaN(width) || math.IsNaN(height) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return Ellipse{}, fmt.Errorf("%w: conic %v has no real axes", ErrNoEllipse, c)
	}

	var phi float64
	switch {
	case b == 0 && a < cc:
		phi = 0
	case b == 0 && a > cc:
		phi = math.Pi / 2
	case a < cc:
		phi = 0.5 * math.Atan(2*b/(a-cc))
	case a > cc:
		phi = 0.5 * (math.Pi + math.Atan(2*b/(a-cc)))
	default: // a == c
		phi = 0
	}

	return Ellipse{A: width, B: height, Xc: x0, Yc: y0, Phi: phi}, nil
}

// BoundaryPoints returns the pixels where the 0/1 validity image changes
// fast enough to be on the aperture edge.
func BoundaryPoints(mask []bool, w, h int, threshold float64) (xs, ys []float64) {
	valid := emath.NewFloatGrid(w, h)
	for i, invalid := range mask {
		if !invalid {
			valid.Values()[i] = 1
		}
	}

	gm := valid.GradientMagnitude()
	for i, g := range gm.Values() {
		if g > threshold {
			xs = append(xs, float64(i%w))
			ys = append(ys, float64(i/w))
		}
	}
	return xs, ys
}

// FitEllipse fits the aperture edge of a supermask (true = invalid).
// Boundary points that end up well inside the fitted ellipse are dropped
// and the fit repeated, until none are left or cfg.MaxIterations fits
// have been made.
func FitEllipse(cfg Config, mask []bool, w, h int) (Ellipse, error) {
	if w <= 0 || h <= 0 || len(mask) != w*h {
		return Ellipse{}, fmt.Errorf("%w: %d mask values for a %dx%d map", ErrBadMask, len(mask), w, h)
	}

	xs, ys := BoundaryPoints(mask, w, h, cfg.BoundaryThreshold)

	e, err := fitWithRejection(xs, ys, cfg.InsideTolerance, cfg.MaxIterations)
	if err != nil {
		return Ellipse{}, err
	}
	if cfg.Verbosity > 1 {
		log.Printf(" -- raw fit %s, %d iterations\n", e, e.Iterations)
	}

	return normalizeOrientation(e), nil
}

func fitWithRejection(xs, ys []float64, tol float64, maxIter int) (Ellipse, error) {
	for iter := 1; iter <= maxIter; iter++ {
		e, err := fitPoints(xs, ys)
		if err != nil {
			return Ellipse{}, err
		}

		keptX, keptY := xs[:0:0], ys[:0:0]
		for i := range xs {
			if !e.Inside(xs[i], ys[i], tol) {
				keptX = append(keptX, xs[i])
				keptY = append(keptY, ys[i])
			}
		}

		if len(keptX) == len(xs) {
			e.Iterations = iter
			e.NPoints = len(xs)
			return e, nil
		}
		xs, ys = keptX, keptY
	}

	return Ellipse{}, fmt.Errorf("%w after %d iterations", ErrEllipseNotConverged, maxIter)
}

// normalizeOrientation applies the near-vertical swap to a raw fit, then
// wraps Phi into (-pi/2, pi/2]. Turning an ellipse by pi leaves it unchanged.
func normalizeOrientation(e Ellipse) Ellipse {
	if math.Abs(e.Phi-math.Pi/2) < 5*math.Pi/180 {
		e.A, e.B = e.B, e.A
		e.Phi -= math.Pi / 2
		e.RFInverted = true
	}
	for e.Phi > math.Pi/2 {
		e.Phi -= math.Pi
	}
	for e.Phi <= -math.Pi/2 {
		e.Phi += math.Pi
	}
	return e
}

func fitPoints(xs, ys []float64) (Ellipse, error) {
	coeffs, err := fitConic(xs, ys)
	if err != nil {
		return Ellipse{}, err
	}
	return ConicToEllipse(coeffs)
}

// fitConic is the Halir & Flusser direct least squares ellipse fit
// ("Numerically stable direct least squares fitting of ellipses", 1998).
// The points are centred and scaled before the fit, and the conic mapped
// back to pixel coordinates afterwards.
func fitConic(xs, ys []float64) ([6]float64, error) {
	var out [6]float64
	n := len(xs)
	if n < 6 || len(ys) != n {
		return out, fmt.Errorf("%w: %d boundary points", ErrNoEllipse, n)
	}

	mx, my := stat.Mean(xs, nil), stat.Mean(ys, nil)
	s := math.Sqrt((stat.PopVariance(xs, nil) + stat.PopVariance(ys, nil)) / 2)
	if s == 0 {
		return out, fmt.Errorf("%w: all boundary points coincide", ErrNoEllipse)
	}

	d1 := mat.NewDense(n, 3, nil) // quadratic part
	d2 := mat.NewDense(n, 3, nil) // linear part
	for i := 0; i < n; i++ {
		u, v := (xs[i]-mx)/s, (ys[i]-my)/s
		d1.SetRow(i, []float64{u * u, u * v, v * v})
		d2.SetRow(i, []float64{u, v, 1})
	}

	var s1, s2, s3, s3inv mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)
	if err := s3inv.Inverse(&s3); err != nil {
		return out, fmt.Errorf("%w: linear scatter matrix: %v", ErrNoEllipse, err)
	}

	// T = -inv(S3) S2', M = S1 + S2 T
	var t, m mat.Dense
	t.Mul(&s3inv, s2.T())
	t.Scale(-1, &t)
	m.Mul(&s2, &t)
	m.Add(&s1, &m)

	// premultiply by inv(C1), C1 = [[0,0,2],[0,-1,0],[2,0,0]]
	red := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		red.Set(0, j, m.At(2, j)/2)
		red.Set(1, j, -m.At(1, j))
		red.Set(2, j, m.At(0, j)/2)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(red, mat.EigenRight); !ok {
		return out, fmt.Errorf("%w: eigen decomposition failed", ErrNoEllipse)
	}
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	var a1 []float64
	for j := 0; j < 3; j++ {
		v := []float64{real(vecs.At(0, j)), real(vecs.At(1, j)), real(vecs.At(2, j))}
		if 4*v[0]*v[2]-v[1]*v[1] > 0 {
			a1 = v
			break
		}
	}
	if a1 == nil {
		return out, fmt.Errorf("%w: no elliptical eigenvector", ErrNoEllipse)
	}

	a2 := mat.NewVecDense(3, nil)
	a2.MulVec(&t, mat.NewVecDense(3, a1))

	// conic in scaled coordinates, then back to pixels
	a, b, c := a1[0], a1[1], a1[2]
	d, e, f := a2.AtVec(0), a2.AtVec(1), a2.AtVec(2)

	s2inv := 1 / (s * s)
	out[0] = a * s2inv
	out[1] = b * s2inv
	out[2] = c * s2inv
	out[3] = (-2*a*mx-b*my)*s2inv + d/s
	out[4] = (-2*c*my-b*mx)*s2inv + e/s
	out[5] = (a*mx*mx+b*mx*my+c*my*my)*s2inv - (d*mx+e*my)/s + f

	// fix the overall scale, to keep the numbers readable in logs
	if norm := math.Sqrt(floats.Dot(out[:], out[:])); norm > 0 {
		floats.Scale(1/norm, out[:])
	}

	return out, nil
}
