package phasemap

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A ZeroGPair names two sequences taken in mechanically opposite
// orientations. Tag only groups pairs for display.
type ZeroGPair struct {
	U, V int
	Tag  string
}

// PairsFromGroups zips matching groups of +g and -g sequence ids into
// pairs, tagging each pair with its group's tag.
func PairsFromGroups(gplus, gminus [][]int, tags []string) ([]ZeroGPair, error) {
	if len(gplus) != len(gminus) || len(tags) != len(gplus) {
		return nil, fmt.Errorf("%w: %d +g groups, %d -g groups, %d tags", ErrPairingMismatch, len(gplus), len(gminus), len(tags))
	}
	pairs := []ZeroGPair{}
	for g := range gplus {
		if len(gplus[g]) != len(gminus[g]) {
			return nil, fmt.Errorf("%w: group %d has %d +g and %d -g sequences", ErrPairingMismatch, g, len(gplus[g]), len(gminus[g]))
		}
		for k := range gplus[g] {
			pairs = append(pairs, ZeroGPair{U: gplus[g][k], V: gminus[g][k], Tag: tags[g]})
		}
	}
	return pairs, nil
}

// GroupsFromStarts expands [start+, start-] pairs into consecutive runs of
// counts[g] sequence ids each.
func GroupsFromStarts(starts [][]int, counts []int) (gplus, gminus [][]int, err error) {
	if len(starts) != len(counts) {
		return nil, nil, fmt.Errorf("%w: %d start pairs, %d counts", ErrPairingMismatch, len(starts), len(counts))
	}
	for g, s := range starts {
		if len(s) != 2 {
			return nil, nil, fmt.Errorf("%w: start pair %v", ErrPairingMismatch, s)
		}
		var p, m []int
		for k := 0; k < counts[g]; k++ {
			p = append(p, s[0]+k)
			m = append(m, s[1]+k)
		}
		gplus = append(gplus, p)
		gminus = append(gminus, m)
	}
	return gplus, gminus, nil
}

// A ZeroGResult holds the per-pair averages, in pair order, and their
// spread about the per-pixel median.
type ZeroGResult struct {
	Residuals   emath.MaskedStack // pair-averaged residuals
	MinusPTTF   emath.MaskedStack // pair-averaged map - PTTF
	Coeffs      [][]float64       // pair-averaged coefficients
	MedianCoeff []float64
	Median      *emath.MaskedGrid // per-pixel median of Residuals
	RMS         []float64         // per pair, std of residual - Median
	Tags        []string
}

// ZeroG averages each pair of opposite fits; gravity sag cancels in the
// average, leaving the zero-g shape.
func ZeroG(fits map[int]*FitResult, pairs []ZeroGPair) (*ZeroGResult, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no pairs", ErrPairingMismatch)
	}

	zg := &ZeroGResult{}
	for _, p := range pairs {
		fu, fv := fits[p.U], fits[p.V]
		if fu == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSequence, p.U)
		}
		if fv == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSequence, p.V)
		}
		if !fu.Residual.SameShape(fv.Residual) {
			return nil, fmt.Errorf("%w: pair (%d,%d)", ErrShapeMismatch, p.U, p.V)
		}
		if len(fu.Coeff) != len(fv.Coeff) {
			return nil, fmt.Errorf("%w: pair (%d,%d) has %d and %d coefficients", ErrShapeMismatch, p.U, p.V, len(fu.Coeff), len(fv.Coeff))
		}

		zg.Residuals = append(zg.Residuals, fu.Residual.Add(fv.Residual).Scale(0.5))
		zg.MinusPTTF = append(zg.MinusPTTF, fu.MinusPTTF.Add(fv.MinusPTTF).Scale(0.5))

		c := make([]float64, len(fu.Coeff))
		floats.AddScaled(c, 0.5, fu.Coeff)
		floats.AddScaled(c, 0.5, fv.Coeff)
		zg.Coeffs = append(zg.Coeffs, c)

		zg.Tags = append(zg.Tags, p.Tag)
	}

	if err := zg.Residuals.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	zg.MedianCoeff = make([]float64, len(zg.Coeffs[0]))
	col := make([]float64, len(zg.Coeffs))
	for k := range zg.MedianCoeff {
		for i, c := range zg.Coeffs {
			col[i] = c[k]
		}
		zg.MedianCoeff[k] = emath.Median(col)
	}

	zg.Median = zg.Residuals.Reduce(emath.ReduceMedian)
	zg.RMS = make([]float64, len(zg.Residuals))
	for i, r := range zg.Residuals {
		zg.RMS[i] = r.Sub(zg.Median).StdDev()
	}

	return zg, nil
}
