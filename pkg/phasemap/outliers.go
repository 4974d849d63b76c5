package phasemap

import (
	"fmt"
	"math"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A RawFrameStack is one sequence as the loader delivers it. Orientation
// is 0 or math.Pi; the latter means the frames must be turned by 180deg
// to bring gravity into the same direction as the other sequences.
type RawFrameStack struct {
	Frames      emath.MaskedStack
	Names       []string
	Orientation float64
}

func (rs RawFrameStack) Flipped() bool { return rs.Orientation == math.Pi }

// A CleanMap is a RawFrameStack with outliers masked and, if needed,
// the 180deg flip applied. DiffRMS[i] is the scatter of frame i about
// the per-pixel median of the sequence.
type CleanMap struct {
	Frames  emath.MaskedStack
	DiffRMS []float64
	Flipped bool
}

// FilterOutliers masks pixels that stand out from their neighbourhood.
// Each frame has its mean removed, a median filtered background
// subtracted, and the residual is sigma clipped; clipped pixels are added
// to the frame's mask. The input frames are left untouched.
func FilterOutliers(cfg Config, raw RawFrameStack) (*CleanMap, error) {
	if err := raw.Frames.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	frames := raw.Frames.Copy()
	for i, frame := range frames {
		if err := filterFrame(cfg, frame); err != nil {
			return nil, fmt.Errorf("frame %d: %v", i, err)
		}
	}

	clean := &CleanMap{
		Frames:  frames,
		DiffRMS: diffRMS(frames),
	}

	if raw.Flipped() {
		for i, frame := range clean.Frames {
			clean.Frames[i] = frame.Flip180()
		}
		clean.Flipped = true
	}

	return clean, nil
}

// filterFrame updates frame in place: mean removed, outliers masked.
func filterFrame(cfg Config, frame *emath.MaskedGrid) error {
	if frame.Count() == 0 {
		return nil // nothing to clip; the frame stays fully invalid
	}

	mean := frame.Mean()
	zeroed := frame.AddScalar(-mean)
	copy(frame.Values(), zeroed.Values())

	// invalid pixels are filled with the (now zero) mean before filtering
	background, err := emath.MedianFilter(frame.Filled(0), cfg.KernelSize)
	if err != nil {
		return err
	}

	resid := frame.Sub(emath.NewMaskedGridFrom(background, nil))
	idx := make([]int, 0, resid.Len())
	vals := make([]float64, 0, resid.Len())
	for i, v := range resid.Values() {
		if resid.Mask == nil || !resid.Mask[i] {
			idx = append(idx, i)
			vals = append(vals, v)
		}
	}

	for j, clipped := range emath.SigmaClip(vals, cfg.Sigma, cfg.SigmaClipIters) {
		if clipped {
			frame.Invalidate(idx[j])
		}
	}

	return nil
}

// diffRMS is the population std of each frame minus the per-pixel median
// of the stack.
func diffRMS(frames emath.MaskedStack) []float64 {
	rms := make([]float64, len(frames))
	if len(frames) == 0 {
		return rms
	}
	med := frames.Reduce(emath.ReduceMedian)
	for i, frame := range frames {
		rms[i] = frame.Sub(med).StdDev()
	}
	return rms
}
