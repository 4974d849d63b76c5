package phasemap

import (
	"fmt"

	"github.com/abworrall/sagmap/pkg/emath"
)

// An IndexRange selects elements [Start, End) of a stack.
type IndexRange struct {
	Start, End int
}

func (r IndexRange) Len() int { return r.End - r.Start }

func (r IndexRange) Indices() []int {
	idx := make([]int, 0, r.Len())
	for i := r.Start; i < r.End; i++ {
		idx = append(idx, i)
	}
	return idx
}

func (r IndexRange) overlaps(o IndexRange) bool { return r.Start < o.End && o.Start < r.End }

func (r IndexRange) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// A Delta is the change between two epochs: DMap = Gain*Map1 - Map0.
type Delta struct {
	Map0, Map1 *emath.MaskedGrid
	DMap       *emath.MaskedGrid
	Gain       float64
	GainFitted bool
}

// DeltaMap reduces the maps selected by sel0 and sel1 into one map per
// epoch and subtracts them. A nil gain is fitted as the least squares
// scale of map1 onto map0 over their common valid pixels.
func DeltaMap(maps emath.MaskedStack, sel0, sel1 IndexRange, gain *float64, reducer emath.Reducer) (*Delta, error) {
	for _, sel := range []IndexRange{sel0, sel1} {
		if sel.Start < 0 || sel.End > len(maps) || sel.Len() <= 0 {
			return nil, fmt.Errorf("%w: %s of %d maps", ErrBadSelection, sel, len(maps))
		}
	}
	if sel0.overlaps(sel1) {
		return nil, fmt.Errorf("%w: %s overlaps %s", ErrBadSelection, sel0, sel1)
	}
	if err := maps.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	d := &Delta{
		Map0: maps.Select(sel0.Indices()).Reduce(reducer),
		Map1: maps.Select(sel1.Indices()).Reduce(reducer),
	}

	if gain != nil {
		d.Gain = *gain
	} else {
		num := d.Map1.Mul(d.Map0).Sum()
		den := d.Map1.Mul(d.Map1)
		// restrict the denominator to the pixels the numerator saw
		den.OrMask(d.Map0.MaskCopy())
		if den.Sum() == 0 {
			return nil, fmt.Errorf("%w: %s has no signal to fit a gain on", ErrBadSelection, sel1)
		}
		d.Gain = num / den.Sum()
		d.GainFitted = true
	}

	d.DMap = d.Map1.Scale(d.Gain).Sub(d.Map0)
	return d, nil
}
