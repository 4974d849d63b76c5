package phasemap

import (
	"fmt"
	"math"
	"sort"

	"github.com/abworrall/sagmap/pkg/emath"
)

// A PSD is the radially binned power spectral density of a map.
type PSD struct {
	Bins     []float64 // nbins edges, spatial frequency
	Freq     []float64 // nbins-1 bin centers
	Power    []float64 // nbins-1 values
	Spectrum *emath.MaskedGrid
	Error    float64 // 1 - integrated PSD / variance
}

// A Window builds a w x h weighting, normalized to unit mean power over
// its valid pixels. Pixels it masks drop out of the PSD.
type Window func(w, h int) *emath.MaskedGrid

// GetWindow maps a config name onto a Window; "ellipse" tapers over the
// aperture e.
func GetWindow(name string, e Ellipse) (Window, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "hann":
		return HannWindow, nil
	case "ellipse":
		if e.A <= 0 || e.B <= 0 {
			return nil, fmt.Errorf("ellipse window needs an aperture, got %s", e)
		}
		return EllipseWindow(e), nil
	default:
		return nil, fmt.Errorf("no PSD window named '%s'", name)
	}
}

// HannWindow is the separable 2-D Hann window.
func HannWindow(w, h int) *emath.MaskedGrid {
	wx, wy := emath.HannWindow(w), emath.HannWindow(h)
	win := emath.NewMaskedGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			win.Set(x, y, wy[y]*wx[x])
		}
	}
	return normalizeWindow(win)
}

// EllipseWindow tapers from 1 at the center of e to 0 at its edge, with a
// Hann profile in elliptical radius; outside e it is invalid.
func EllipseWindow(e Ellipse) Window {
	return func(w, h int) *emath.MaskedGrid {
		win := emath.NewMaskedGrid(w, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r := math.Sqrt(e.NormalizedRadius2(float64(x), float64(y)))
				if r > 1 {
					win.SetMasked(x, y, true)
					continue
				}
				win.Set(x, y, 0.5*(1+math.Cos(math.Pi*r)))
			}
		}
		return normalizeWindow(win)
	}
}

func normalizeWindow(win *emath.MaskedGrid) *emath.MaskedGrid {
	power := win.Mul(win).Mean()
	if power <= 0 || math.IsNaN(power) {
		return win
	}
	return win.Scale(1 / math.Sqrt(power))
}

// ComputePSD estimates the PSD of m, with pixels delta apart. The map's
// mean is removed, invalid pixels contribute zero, and |FFT|^2 is summed
// into nbins-1 linear rings, each divided by its width and by the number
// of valid pixels. If win is not nil the map is weighted by it first.
// nbins <= 0 picks half the smaller map dimension.
func ComputePSD(m *emath.MaskedGrid, nbins int, delta float64, win Window) (*PSD, error) {
	w, h := m.Dx(), m.Dy()
	if nbins <= 0 {
		nbins = w / 2
		if h/2 < nbins {
			nbins = h / 2
		}
	}
	if nbins < 2 {
		return nil, fmt.Errorf("psd needs at least 2 bin edges, got %d", nbins)
	}
	if delta <= 0 {
		return nil, fmt.Errorf("psd sample spacing %f must be positive", delta)
	}

	data := m.Copy()
	if win != nil {
		data = data.Mul(win(w, h))
	}
	count := data.Count()
	if count == 0 {
		return nil, fmt.Errorf("psd: %w", ErrEmptyMap)
	}
	data = data.AddScalar(-data.Mean())
	variance := data.Mul(data).Mean()

	spec := emath.FFT2(data.Filled(0)).Shift()
	npx := float64(w * h)
	power := emath.NewMaskedGrid(w, h)
	for i, c := range spec.Values {
		power.Values()[i] = (real(c)*real(c) + imag(c)*imag(c)) / npx
	}

	fx, fy := emath.ShiftedFreqs(w, delta), emath.ShiftedFreqs(h, delta)
	freq := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			freq = append(freq, math.Hypot(fx[x], fy[y]))
		}
	}
	fmin, fmax := freq[0], freq[0]
	for _, f := range freq {
		fmin = math.Min(fmin, f)
		fmax = math.Max(fmax, f)
	}

	psd := &PSD{
		Bins:     emath.Linspace(fmin, fmax, nbins),
		Freq:     make([]float64, nbins-1),
		Power:    make([]float64, nbins-1),
		Spectrum: power,
	}
	for i, f := range freq {
		if k := binIndex(psd.Bins, f); k >= 0 {
			psd.Power[k] += power.Values()[i]
		}
	}

	integral := 0.0
	df := psd.Bins[1] - psd.Bins[0]
	for k := range psd.Power {
		width := psd.Bins[k+1] - psd.Bins[k]
		if width > 0 {
			psd.Power[k] /= width
		}
		psd.Power[k] /= float64(count)
		psd.Freq[k] = 0.5 * (psd.Bins[k] + psd.Bins[k+1])
		integral += psd.Power[k] * df
	}

	psd.Error = math.NaN()
	if variance > 0 {
		psd.Error = 1 - integral/variance
	}

	return psd, nil
}

// binIndex finds the bin holding f; the last bin is closed on the right.
func binIndex(edges []float64, f float64) int {
	n := len(edges) - 1
	if f < edges[0] || f > edges[n] {
		return -1
	}
	if f == edges[n] {
		return n - 1
	}
	k := sort.SearchFloat64s(edges, f)
	if k < len(edges) && edges[k] == f {
		return k
	}
	return k - 1
}
