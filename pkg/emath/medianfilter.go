package emath

import (
	"fmt"
	"sort"
)

// MedianFilter slides a k x k window over the grid and replaces each value
// by the window median. Cells outside the grid count as zeros. k must be
// odd and positive.
func MedianFilter(g FloatGrid, k int) (FloatGrid, error) {
	if k <= 0 || k%2 == 0 {
		return FloatGrid{}, fmt.Errorf("median filter kernel %d is not odd and positive", k)
	}

	w, h := g.Dx(), g.Dy()
	half := k / 2
	out := g.NewFromThis()
	window := make([]float64, k*k)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					sx, sy := x+dx, y+dy
					if sx < 0 || sy < 0 || sx >= w || sy >= h {
						window[n] = 0
					} else {
						window[n] = g.Get(sx, sy)
					}
					n++
				}
			}
			sort.Float64s(window)
			out.Set(x, y, window[len(window)/2])
		}
	}

	return out, nil
}
