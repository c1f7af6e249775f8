package convolve

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// FFT evaluates the convolution as a product in the frequency domain. Both
// arrays are zero padded to a power-of-two size that holds the full linear
// convolution, so there is no circular wrap-around.
//
// The output carries round-off of order 1e-16 times the largest output
// magnitude in every cell, including cells the weights cannot reach. Use a
// Footprint to tell those cells apart and At where a cell is small compared
// with the maximum.
type FFT struct{}

// Convolve implements Convolver.
func (FFT) Convolve(weights, samples *mat.Dense) *mat.Dense {
	kr, kc := weights.Dims()
	r, c := samples.Dims()
	ck, cl := (kr-1)/2, (kc-1)/2

	pr := nextPow2(r + kr - 1)
	pc := nextPow2(c + kc - 1)

	// The centred sum is a correlation; flipping the weights turns it into a
	// plain linear convolution whose full output is offset by (kr-1-ck, kc-1-cl).
	a := make([]complex128, pr*pc)
	b := make([]complex128, pr*pc)
	for i := 0; i < r; i++ {
		row := samples.RawRowView(i)
		for j := 0; j < c; j++ {
			a[i*pc+j] = complex(row[j], 0)
		}
	}
	for k := 0; k < kr; k++ {
		row := weights.RawRowView(k)
		for l := 0; l < kc; l++ {
			b[(kr-1-k)*pc+(kc-1-l)] = complex(row[l], 0)
		}
	}

	rowFFT := fourier.NewCmplxFFT(pc)
	colFFT := fourier.NewCmplxFFT(pr)
	transform2(a, pr, pc, rowFFT, colFFT, true)
	transform2(b, pr, pc, rowFFT, colFFT, true)
	for i := range a {
		a[i] *= b[i]
	}
	transform2(a, pr, pc, rowFFT, colFFT, false)

	norm := 1 / float64(pr*pc)
	oi, oj := kr-1-ck, kc-1-cl
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, real(a[(i+oi)*pc+j+oj])*norm)
		}
	}
	return out
}

// transform2 applies a forward or unnormalised inverse 2-D transform in place
// to the row-major array a of size rows x cols.
func transform2(a []complex128, rows, cols int, rowFFT, colFFT *fourier.CmplxFFT, forward bool) {
	buf := make([]complex128, cols)
	for i := 0; i < rows; i++ {
		seq := a[i*cols : (i+1)*cols]
		if forward {
			rowFFT.Coefficients(buf, seq)
		} else {
			rowFFT.Sequence(buf, seq)
		}
		copy(seq, buf)
	}

	col := make([]complex128, rows)
	out := make([]complex128, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			col[i] = a[i*cols+j]
		}
		if forward {
			colFFT.Coefficients(out, col)
		} else {
			colFFT.Sequence(out, col)
		}
		for i := 0; i < rows; i++ {
			a[i*cols+j] = out[i]
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
