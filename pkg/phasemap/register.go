package phasemap

import (
	"fmt"
	"math"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A RigidTransform maps a sequence's pixels into the common reference
// frame: a rotation by -Phi about the aperture center (Xc,Yc), which
// brings the ellipse axes onto the grid axes, followed by a translation
// by (Dx,Dy) that moves the center onto the target.
type RigidTransform struct {
	Xc, Yc float64
	Dx, Dy float64
	Phi    float64
}

// NewRigidTransform builds the transform that centers e on (tx, ty).
func NewRigidTransform(e Ellipse, tx, ty float64) RigidTransform {
	return RigidTransform{
		Xc:  e.Xc,
		Yc:  e.Yc,
		Dx:  tx - e.Xc,
		Dy:  ty - e.Yc,
		Phi: e.Phi,
	}
}

// FrameCenter is the default registration target, (nx/2, ny/2) in whole
// pixels.
func FrameCenter(nx, ny int) (float64, float64) { return float64(nx / 2), float64(ny / 2) }

func (rt RigidTransform) String() string {
	return fmt.Sprintf("Rigid[(%6.2f,%6.2f) about (%6.2f,%6.2f), %5.2fdeg]", rt.Dx, rt.Dy, rt.Xc, rt.Yc, rt.Phi*180/math.Pi)
}

// ToMatrix returns the forward (source to reference frame) matrix.
func (rt RigidTransform) ToMatrix() emath.Aff3 {
	m := emath.RotateAbout(-rt.Phi, rt.Xc, rt.Yc)
	return emath.Identity().Translate(rt.Dx, rt.Dy).Mult(m)
}

// Apply resamples m into the reference frame. Each output pixel is pulled
// back through the inverse transform and interpolated bilinearly from the
// four source pixels around it; if any of those with a non-zero weight is
// off the grid or invalid, so is the output pixel.
func (rt RigidTransform) Apply(m *emath.MaskedGrid) (*emath.MaskedGrid, error) {
	inv, err := rt.ToMatrix().Invert()
	if err != nil {
		return nil, err
	}

	w, h := m.Dx(), m.Dy()
	out := emath.NewMaskedGrid(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inv.Apply(float64(x), float64(y))
			v, ok := bilinear(m, sx, sy)
			if !ok {
				out.SetMasked(x, y, true)
				continue
			}
			out.Set(x, y, v)
		}
	}

	return out, nil
}

const weightEpsilon = 1e-9

func bilinear(m *emath.MaskedGrid, sx, sy float64) (float64, bool) {
	x0, y0 := math.Floor(sx), math.Floor(sy)
	fx, fy := sx-x0, sy-y0
	ix, iy := int(x0), int(y0)

	sum := 0.0
	for _, tap := range [4]struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		if tap.w < weightEpsilon {
			continue
		}
		px, py := ix+tap.dx, iy+tap.dy
		if px < 0 || py < 0 || px >= m.Dx() || py >= m.Dy() || m.IsMasked(px, py) {
			return 0, false
		}
		sum += tap.w * m.Get(px, py)
	}

	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, false
	}
	return sum, true
}

// Register moves m into the reference frame defined by its own aperture
// ellipse e, centered on the middle of the grid.
func Register(m *emath.MaskedGrid, e Ellipse) (*emath.MaskedGrid, error) {
	tx, ty := FrameCenter(m.Dx(), m.Dy())
	return NewRigidTransform(e, tx, ty).Apply(m)
}

// RegisterFrames applies the same registration to every frame.
func RegisterFrames(frames emath.MaskedStack, e Ellipse) (emath.MaskedStack, error) {
	out := make(emath.MaskedStack, len(frames))
	for i, frame := range frames {
		reg, err := Register(frame, e)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %v", i, err)
		}
		out[i] = reg
	}
	return out, nil
}
