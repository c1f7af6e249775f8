// Package convolve implements the 2-D linear convolution used by the fast
// filter. Weights are centred on the output cell: for a weight array of size
// K x L with centre (ck, cl) = ((K-1)/2, (L-1)/2),
//
//	out[i][j] = sum_{k,l} w[k][l] * s[i+k-ck][j+l-cl]
//
// with samples outside s treated as zero. The output has the shape of s.
package convolve

import (
	"gonum.org/v1/gonum/mat"
)

// Convolver computes the centred 2-D convolution of samples with weights.
type Convolver interface {
	Convolve(weights, samples *mat.Dense) *mat.Dense
}

// Direct evaluates the convolution sum with nested loops. It is exact and
// cheap for small weight arrays.
type Direct struct{}

// Convolve implements Convolver.
func (Direct) Convolve(weights, samples *mat.Dense) *mat.Dense {
	r, c := samples.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, At(weights, samples, i, j))
		}
	}
	return out
}

// At evaluates the convolution sum for the single output cell (i, j).
func At(weights, samples *mat.Dense, i, j int) float64 {
	kr, kc := weights.Dims()
	r, c := samples.Dims()
	ck, cl := (kr-1)/2, (kc-1)/2

	var sum float64
	for k := 0; k < kr; k++ {
		si := i + k - ck
		if si < 0 || si >= r {
			continue
		}
		row := samples.RawRowView(si)
		wrow := weights.RawRowView(k)
		for l := 0; l < kc; l++ {
			sj := j + l - cl
			if sj < 0 || sj >= c {
				continue
			}
			sum += wrow[l] * row[sj]
		}
	}
	return sum
}

// Footprint marks the output cells that a kr x kc weight array reaches from
// at least one nonzero sample. It is exact, unlike a threshold on a
// transformed output.
type Footprint struct {
	rows, cols int
	ck, cl     int
	kr, kc     int
	prefix     []int // (rows+1) x (cols+1) summed-area table of nonzero samples
}

// NewFootprint builds the footprint of samples under a kr x kc weight array.
func NewFootprint(kr, kc int, samples *mat.Dense) *Footprint {
	r, c := samples.Dims()
	f := &Footprint{
		rows: r, cols: c,
		ck: (kr - 1) / 2, cl: (kc - 1) / 2,
		kr: kr, kc: kc,
		prefix: make([]int, (r+1)*(c+1)),
	}
	w := c + 1
	for i := 0; i < r; i++ {
		row := samples.RawRowView(i)
		for j := 0; j < c; j++ {
			n := 0
			if row[j] != 0 {
				n = 1
			}
			f.prefix[(i+1)*w+j+1] = n + f.prefix[i*w+j+1] + f.prefix[(i+1)*w+j] - f.prefix[i*w+j]
		}
	}
	return f
}

// Covers reports whether output cell (i, j) sees any nonzero sample.
func (f *Footprint) Covers(i, j int) bool {
	i0, i1 := max(i-f.ck, 0), min(i+f.kr-1-f.ck, f.rows-1)
	j0, j1 := max(j-f.cl, 0), min(j+f.kc-1-f.cl, f.cols-1)
	if i0 > i1 || j0 > j1 {
		return false
	}
	w := f.cols + 1
	n := f.prefix[(i1+1)*w+j1+1] - f.prefix[i0*w+j1+1] - f.prefix[(i1+1)*w+j0] + f.prefix[i0*w+j0]
	return n > 0
}
