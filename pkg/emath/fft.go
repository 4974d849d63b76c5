package emath

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// A ComplexGrid holds a 2-D spectrum, row major, the same shape as the
// FloatGrid it came from.
type ComplexGrid struct {
	W, H   int
	Values []complex128
}

func (c ComplexGrid) Get(x, y int) complex128 { return c.Values[y*c.W+x] }

// FFT2 is the unnormalized forward 2-D DFT of g: a 1-D transform along
// every row, then along every column.
func FFT2(g FloatGrid) ComplexGrid {
	w, h := g.Dx(), g.Dy()
	out := ComplexGrid{W: w, H: h, Values: make([]complex128, w*h)}
	for i, v := range g.values {
		out.Values[i] = complex(v, 0)
	}
	if w == 0 || h == 0 {
		return out
	}

	rowFFT := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		row := out.Values[y*w : (y+1)*w]
		rowFFT.Coefficients(row, row)
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = out.Values[y*w+x]
		}
		colFFT.Coefficients(col, col)
		for y := 0; y < h; y++ {
			out.Values[y*w+x] = col[y]
		}
	}

	return out
}

// Shift moves the zero frequency to the center of the grid, like numpy's
// fftshift.
func (c ComplexGrid) Shift() ComplexGrid {
	out := ComplexGrid{W: c.W, H: c.H, Values: make([]complex128, len(c.Values))}
	if c.W == 0 || c.H == 0 {
		return out
	}
	fx, fy := fourier.NewCmplxFFT(c.W), fourier.NewCmplxFFT(c.H)
	for y := 0; y < c.H; y++ {
		sy := fy.ShiftIdx(y)
		for x := 0; x < c.W; x++ {
			out.Values[y*c.W+x] = c.Values[sy*c.W+fx.ShiftIdx(x)]
		}
	}
	return out
}

// ShiftedFreqs returns the sample frequencies of a shifted axis of n
// samples spaced d apart, in ascending order.
func ShiftedFreqs(n int, d float64) []float64 {
	freqs := make([]float64, n)
	if n == 0 {
		return freqs
	}
	t := fourier.NewCmplxFFT(n)
	for i := range freqs {
		freqs[i] = t.Freq(t.ShiftIdx(i)) / d
	}
	return freqs
}
