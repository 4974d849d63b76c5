package phasemap

import (
	"fmt"
	"math"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A ReferenceFrame is the geometry shared by every registered sequence:
// an elliptical pupil around the grid center and polar coordinates that
// put the edge of the uncropped aperture at unit radius along x.
type ReferenceFrame struct {
	Nx, Ny int
	Xc, Yc int
	A, B   float64 // semi-axes the coordinates are scaled by
	Crop   float64

	Pupil []bool    // true outside the (cropped) aperture
	X, Y  []float64 // normalized coordinates of each column / row

	Rho *emath.MaskedGrid
	Phi *emath.MaskedGrid
}

// NewReferenceFrame builds the frame for semi-axes a (along x) and b
// (along y) on an nx by ny grid. The pupil holds the pixels whose centers
// fall inside the ellipse of semi-axes (1-crop)a and (1-crop)b.
func NewReferenceFrame(a, b float64, nx, ny int, crop float64) (*ReferenceFrame, error) {
	if a <= 0 || b <= 0 || math.IsNaN(a) || math.IsNaN(b) {
		return nil, fmt.Errorf("reference frame semi-axes must be positive, got %f, %f", a, b)
	}
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("reference frame shape %dx%d is empty", nx, ny)
	}
	if crop < 0 || crop >= 1 {
		return nil, fmt.Errorf("crop factor %f out of [0,1)", crop)
	}

	rf := &ReferenceFrame{
		Nx: nx, Ny: ny,
		Xc: nx / 2, Yc: ny / 2,
		A: a, B: b,
		Crop:  crop,
		Pupil: make([]bool, nx*ny),
		X:     make([]float64, nx),
		Y:     make([]float64, ny),
		Rho:   emath.NewMaskedGrid(nx, ny),
		Phi:   emath.NewMaskedGrid(nx, ny),
	}

	for i := range rf.X {
		rf.X[i] = float64(i-rf.Xc) / a
	}
	for j := range rf.Y {
		rf.Y[j] = float64(j-rf.Yc) / a
	}

	ca, cb := (1-crop)*a, (1-crop)*b
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			dx, dy := float64(i-rf.Xc), float64(j-rf.Yc)
			outside := (dx/ca)*(dx/ca)+(dy/cb)*(dy/cb) > 1
			rf.Pupil[j*nx+i] = outside

			rf.Rho.Set(i, j, math.Hypot(rf.X[i], rf.Y[j]))
			rf.Phi.Set(i, j, math.Atan2(rf.Y[j], rf.X[i]))
			rf.Rho.SetMasked(i, j, outside)
			rf.Phi.SetMasked(i, j, outside)
		}
	}

	return rf, nil
}

// MeanAxesFrame uses the mean semi-axes of a set of fitted apertures.
func MeanAxesFrame(ellipses []Ellipse, nx, ny int, crop float64) (*ReferenceFrame, error) {
	if len(ellipses) == 0 {
		return nil, fmt.Errorf("mean axes frame: no ellipses")
	}
	sa, sb := 0.0, 0.0
	for _, e := range ellipses {
		sa += e.A
		sb += e.B
	}
	n := float64(len(ellipses))
	return NewReferenceFrame(sa/n, sb/n, nx, ny, crop)
}

// PupilCount is the number of pixels inside the pupil.
func (rf *ReferenceFrame) PupilCount() int {
	n := 0
	for _, outside := range rf.Pupil {
		if !outside {
			n++
		}
	}
	return n
}

func (rf *ReferenceFrame) String() string {
	return fmt.Sprintf("RefFrame[%dx%d, center (%d,%d), a:%.2f b:%.2f crop:%.2f, %d px]",
		rf.Nx, rf.Ny, rf.Xc, rf.Yc, rf.A, rf.B, rf.Crop, rf.PupilCount())
}
