package emath

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median of vals, averaging the two middle values for even lengths. NaN
// for an empty slice. vals is not modified.
func Median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	s := make([]float64, n)
	copy(s, vals)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2.0
}

// Percentile returns the p-th percentile (p in [0,100]) of vals, linearly
// interpolated between samples.
func Percentile(vals []float64, p float64) (float64, error) {
	if len(vals) == 0 {
		return 0, fmt.Errorf("percentile of an empty set")
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %f out of [0,100]", p)
	}
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	return stat.Quantile(p/100.0, stat.LinInterp, s, nil), nil
}

// SigmaClip flags the values lying more than sigma standard deviations
// away from the median. Each pass recomputes median and (population)
// standard deviation over the values that survived the previous passes,
// and clipping stops once a pass flags nothing new, or after maxIters
// passes (maxIters <= 0 means no limit).
func SigmaClip(vals []float64, sigma float64, maxIters int) []bool {
	clipped := make([]bool, len(vals))
	kept := make([]float64, 0, len(vals))

	for iter := 0; maxIters <= 0 || iter < maxIters; iter++ {
		kept = kept[:0]
		for i, v := range vals {
			if !clipped[i] {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			break
		}

		med := Median(kept)
		std := stat.PopStdDev(kept, nil)
		lo, hi := med-sigma*std, med+sigma*std

		nNew := 0
		for i, v := range vals {
			if !clipped[i] && (v < lo || v > hi) {
				clipped[i] = true
				nNew++
			}
		}
		if nNew == 0 {
			break
		}
	}

	return clipped
}

// A Reducer collapses the valid samples of one pixel across a stack.
type Reducer func(vals []float64) float64

func ReduceMean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func ReduceMedian(vals []float64) float64 { return Median(vals) }

// GetReducer maps a config name onto a Reducer.
func GetReducer(name string) (Reducer, error) {
	switch name {
	case "mean", "":
		return ReduceMean, nil
	case "median":
		return ReduceMedian, nil
	default:
		return nil, fmt.Errorf("no Reducer named '%s'", name)
	}
}
