package emath

import "fmt"

// A MaskedStack is an ordered set of equally shaped masked grids, e.g. the
// frames of one measurement sequence.
type MaskedStack []*MaskedGrid

func (s MaskedStack) Dims() (w, h int) {
	if len(s) == 0 {
		return 0, 0
	}
	return s[0].Dx(), s[0].Dy()
}

// Check returns an error if the frames do not all share one shape.
func (s MaskedStack) Check() error {
	for i, g := range s {
		if g == nil {
			return fmt.Errorf("frame %d is nil", i)
		}
		if !g.SameShape(s[0]) {
			return fmt.Errorf("frame %d is %dx%d, frame 0 is %dx%d", i, g.Dx(), g.Dy(), s[0].Dx(), s[0].Dy())
		}
	}
	return nil
}

func (s MaskedStack) Copy() MaskedStack {
	out := make(MaskedStack, len(s))
	for i, g := range s {
		out[i] = g.Copy()
	}
	return out
}

// Counts returns the number of valid pixels in each frame.
func (s MaskedStack) Counts() []int {
	counts := make([]int, len(s))
	for i, g := range s {
		counts[i] = g.Count()
	}
	return counts
}

func (s MaskedStack) Select(idx []int) MaskedStack {
	out := make(MaskedStack, 0, len(idx))
	for _, i := range idx {
		out = append(out, s[i])
	}
	return out
}

// OrMask is the union of all the frames' invalid pixels.
func (s MaskedStack) OrMask() []bool {
	w, h := s.Dims()
	out := make([]bool, w*h)
	for _, g := range s {
		if g.Mask == nil {
			continue
		}
		for i, b := range g.Mask {
			out[i] = out[i] || b
		}
	}
	return out
}

// Reduce collapses the stack pixel by pixel, considering only the valid
// samples of each pixel. A pixel with no valid sample is invalid.
func (s MaskedStack) Reduce(r Reducer) *MaskedGrid {
	w, h := s.Dims()
	out := NewMaskedGrid(w, h)
	buf := make([]float64, 0, len(s))

	for i := range out.values {
		buf = buf[:0]
		for _, g := range s {
			if !g.masked(i) {
				buf = append(buf, g.values[i])
			}
		}
		if len(buf) == 0 {
			out.Mask[i] = true
			continue
		}
		out.values[i] = r(buf)
	}

	return out
}
