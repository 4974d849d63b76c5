package emath

// Some basic affine transformations, used in map registration

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64" // Will be "image/math/f64" at some point
)

// Aff3 is a 2x3 affine matrix, row major, mapping (x,y) to
// (m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]). Pixel coords, so
// the Y axis points downwards.
type Aff3 f64.Aff3

func (p Aff3) Mult(q Aff3) Aff3 {
	return Aff3{
		p[3*0+0]*q[3*0+0] + p[3*0+1]*q[3*1+0],
		p[3*0+0]*q[3*0+1] + p[3*0+1]*q[3*1+1],
		p[3*0+0]*q[3*0+2] + p[3*0+1]*q[3*1+2] + p[3*0+2],
		p[3*1+0]*q[3*0+0] + p[3*1+1]*q[3*1+0],
		p[3*1+0]*q[3*0+1] + p[3*1+1]*q[3*1+1],
		p[3*1+0]*q[3*0+2] + p[3*1+1]*q[3*1+2] + p[3*1+2],
	}
}

func Identity() Aff3 {
	return Aff3{1, 0, 0, 0, 1, 0}
}

func (m1 Aff3) Translate(tx, ty float64) Aff3 {
	return m1.Mult(Aff3{1, 0, tx, 0, 1, ty})
}

// Rotate composes a rotation by thetaRad, counter-clockwise in the
// maths convention (x right, y up). On a y-down display that is clockwise.
func (m1 Aff3) Rotate(thetaRad float64) Aff3 {
	cosTheta := math.Cos(thetaRad)
	sinTheta := math.Sin(thetaRad)
	return m1.Mult(Aff3{cosTheta, -1 * sinTheta, 0, sinTheta, cosTheta, 0})
}

func RotateAbout(thetaRad, x, y float64) Aff3 {
	// Remember they compose back to front - rightmost operations performed first
	return Identity().Translate(x, y).Rotate(thetaRad).Translate(-1*x, -1*y)
}

// Apply maps a point through the matrix.
func (m Aff3) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Invert returns the inverse transform. A singular matrix yields an
// error; rigid transforms never are.
func (m Aff3) Invert() (Aff3, error) {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-300 {
		return Aff3{}, fmt.Errorf("affine matrix %s is singular", m)
	}
	inv := Aff3{
		m[4] / det, -m[1] / det, 0,
		-m[3] / det, m[0] / det, 0,
	}
	inv[2] = -(inv[0]*m[2] + inv[1]*m[5])
	inv[5] = -(inv[3]*m[2] + inv[4]*m[5])
	return inv, nil
}

func (m Aff3) String() string {
	return fmt.Sprintf("[%10f, %10f, %10f] [%10f, %10f, %10f]", m[0], m[1], m[2], m[3], m[4], m[5])
}
