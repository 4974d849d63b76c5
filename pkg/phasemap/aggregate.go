package phasemap

import (
	"fmt"
	"log"

	"github.com/codahale/hdrhistogram"

	"github.com/abworrall/sagmap/pkg/emath"
)

// An Aggregate is the combined map of one sequence. SuperMask is the
// union of the masks of the frames that went into it.
type Aggregate struct {
	Combined  *emath.MaskedGrid
	SuperMask []bool
	Selected  []int
	Threshold float64
}

// AggregateFrames reduces the frames whose valid-pixel count is strictly
// above threshold into one map.
func AggregateFrames(clean *CleanMap, threshold float64, reducer emath.Reducer) (*Aggregate, error) {
	if clean == nil || len(clean.Frames) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrNoFramesSelected)
	}

	selected := []int{}
	for i, n := range clean.Frames.Counts() {
		if float64(n) > threshold {
			selected = append(selected, i)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: none of %d frames has more than %.1f valid pixels", ErrNoFramesSelected, len(clean.Frames), threshold)
	}

	frames := clean.Frames.Select(selected)
	return &Aggregate{
		Combined:  frames.Reduce(reducer),
		SuperMask: frames.OrMask(),
		Selected:  selected,
		Threshold: threshold,
	}, nil
}

// SelectionThreshold picks the given low percentile of the per-frame
// valid counts, so that only degenerate frames fall below it.
func SelectionThreshold(counts []int, percentile float64) (float64, error) {
	vals := make([]float64, len(counts))
	for i, n := range counts {
		vals[i] = float64(n)
	}
	t, err := emath.Percentile(vals, percentile)
	if err != nil {
		return 0, fmt.Errorf("selection threshold: %v", err)
	}
	return t, nil
}

// countSummary renders the distribution of per-frame valid counts, to
// check the threshold by eye.
func countSummary(counts []int) string {
	max := int64(1)
	for _, n := range counts {
		if int64(n) > max {
			max = int64(n)
		}
	}
	h := hdrhistogram.New(0, max+1, 3)
	for _, n := range counts {
		if err := h.RecordValue(int64(n)); err != nil {
			log.Printf("valid count %d not recorded: %v\n", n, err)
		}
	}
	return fmt.Sprintf("%d frames, valid px min %d, p1 %d, median %d, p99 %d, max %d",
		h.TotalCount(), h.Min(), h.ValueAtQuantile(1), h.ValueAtQuantile(50), h.ValueAtQuantile(99), h.Max())
}
