package fusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/speedfield/internal/convolve"
	"github.com/banshee-data/speedfield/internal/monitoring"
	"github.com/banshee-data/speedfield/internal/quantity"
)

// Axis is an equidistant grid axis from Min to at most Max in steps of Step.
// Both ends are included when Max lies a whole number of steps from Min;
// otherwise the axis ends at the last step below Max.
type Axis struct {
	Min, Step, Max float64
}

// Validate checks that the axis is finite, Step is positive and Max >= Min.
func (a Axis) Validate() error {
	for _, v := range []float64{a.Min, a.Step, a.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("axis %v: bounds must be finite: %w", a, ErrInvalidGrid)
		}
	}
	if !(a.Step > 0) {
		return fmt.Errorf("axis %v: step must be positive: %w", a, ErrInvalidGrid)
	}
	if a.Max < a.Min {
		return fmt.Errorf("axis %v: max below min: %w", a, ErrInvalidGrid)
	}
	return nil
}

// Len is the number of grid points. A Max that is not a whole number of steps
// from Min is rounded down to the last point below it.
func (a Axis) Len() int {
	return 1 + int(math.Floor((a.Max-a.Min)/a.Step+1e-9))
}

// Last is the final grid point.
func (a Axis) Last() float64 {
	return a.Min + float64(a.Len()-1)*a.Step
}

// Points returns the grid points in ascending order.
func (a Axis) Points() []float64 {
	n := a.Len()
	if n == 1 {
		return []float64{a.Min}
	}
	return floats.Span(make([]float64, n), a.Min, a.Last())
}

func (a Axis) String() string {
	return fmt.Sprintf("%g:%g:%g", a.Min, a.Step, a.Max)
}

// bin returns the index of the grid point nearest to v.
func (a Axis) bin(v float64) (int, bool) {
	i := int(math.Floor((v-a.Min)/a.Step + 0.5))
	return i, i >= 0 && i < a.Len()
}

// offsets are the kernel offsets along a, symmetric around zero: within the
// kernel bound and never wider than the grid itself.
func (a Axis) offsets(bound float64) []float64 {
	extent := math.Min(bound, a.Last()-a.Min)
	n := int(extent/a.Step + 1e-9)
	if n == 0 {
		return []float64{0}
	}
	return floats.Span(make([]float64, 2*n+1), -float64(n)*a.Step, float64(n)*a.Step)
}

// binnedStream holds the measurements of one stream summed per grid cell.
type binnedStream struct {
	stream *DataStream
	count  *mat.Dense
	sum    *mat.Dense
}

// convolvedStream holds the kernel sums of one stream under both hypotheses.
type convolvedStream struct {
	stream             *DataStream
	nCong, nFree       *mat.Dense // sum of weights
	congMean, freeMean *mat.Dense
}

// present reports whether the stream has weight at cell (i, j).
func (c *convolvedStream) present(i, j int) bool {
	return c.nCong.At(i, j) > 0 && c.nFree.At(i, j) > 0
}

// FilterFastSI estimates the quantities on the equidistant grid x by t. Data
// is first binned to the nearest grid cell, then each kernel sum is
// evaluated as a 2-D convolution. The grid runs from Min to Max inclusive
// when Max is a whole number of steps from Min; a Max between steps is
// dropped, so the result's Locations and Times report the points actually
// used. It returns a nil result and nil error when interrupted, checked after
// every convolution.
func (e *Engine) FilterFastSI(x, t Axis, qs ...quantity.Quantity) (*FilterResult, error) {
	return e.filterFastSI(e.begin(nil), x, t, qs)
}

func (e *Engine) filterFastSI(r *run, x, t Axis, qs []quantity.Quantity) (*FilterResult, error) {
	defer e.end(r)
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("location %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("time %w", err)
	}
	quantities, err := normalizeQuantities(qs)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	if r.notify(0) {
		return nil, nil
	}
	kernel := e.kernel
	nx, nt := x.Len(), t.Len()

	requested := make(map[string]bool, len(quantities))
	for _, q := range quantities {
		requested[q.Name()] = true
	}
	binned := e.binStreams(x, t, requested)

	ox, ot := x.offsets(kernel.XMax()), t.offsets(kernel.TMax())
	wCong := mat.NewDense(len(ox), len(ot), nil)
	wFree := mat.NewDense(len(ox), len(ot), nil)
	for k, dx := range ox {
		for l, dt := range ot {
			wCong.Set(k, l, kernel.Weight(e.cCong, dx, dt))
			wFree.Set(k, l, kernel.Weight(e.cFree, dx, dt))
		}
	}

	total := 4 * len(binned)
	done, exact := 0, 0
	conv := make([]*convolvedStream, 0, len(binned))
	for _, b := range binned {
		var out [4]*mat.Dense
		for k, in := range [4]struct{ w, s *mat.Dense }{
			{wCong, b.count}, {wCong, b.sum}, {wFree, b.count}, {wFree, b.sum},
		} {
			out[k] = e.convolver.Convolve(in.w, in.s)
			done++
			if r.notify(float64(done) / float64(total)) {
				monitoring.Logf("[Filter] fast filter interrupted after %d of %d convolutions in %s",
					done, total, monitoring.Elapsed(e.clock.Since(start)))
				return nil, nil
			}
		}
		c := &convolvedStream{stream: b.stream, nCong: out[0], nFree: out[2]}
		sCong, sFree := out[1], out[3]
		exact += condition(b, wCong, wFree, c.nCong, sCong, c.nFree, sFree)
		c.congMean = mat.NewDense(nx, nt, nil)
		c.congMean.DivElem(sCong, c.nCong)
		c.freeMean = mat.NewDense(nx, nt, nil)
		c.freeMean.DivElem(sFree, c.nFree)
		conv = append(conv, c)
	}

	// congestion indicator per source, NaN where the source has no speed
	indicator := make(map[*DataSource]*mat.Dense)
	var sources []*DataSource
	for _, c := range conv {
		if !c.stream.quantity.IsSpeed() {
			continue
		}
		src := c.stream.source
		w, ok := indicator[src]
		if !ok {
			w = nanDense(nx, nt)
			indicator[src] = w
			sources = append(sources, src)
		}
		for i := 0; i < nx; i++ {
			for j := 0; j < nt; j++ {
				if c.present(i, j) {
					u := math.Min(c.congMean.At(i, j), c.freeMean.At(i, j))
					w.Set(i, j, e.congestionIndicator(u))
				}
			}
		}
	}

	grids := make(map[string][][]float64, len(quantities))
	fallback := nanDense(nx, nt)
	for _, q := range quantities {
		num := mat.NewDense(nx, nt, nil)
		den := mat.NewDense(nx, nt, nil)
		for _, c := range conv {
			if !c.stream.quantity.Equal(q) {
				continue
			}
			own := indicator[c.stream.source]
			for i := 0; i < nx; i++ {
				for j := 0; j < nt; j++ {
					if !c.present(i, j) {
						continue
					}
					wc := math.NaN()
					if own != nil {
						wc = own.At(i, j)
					}
					if math.IsNaN(wc) {
						if math.IsNaN(fallback.At(i, j)) {
							fallback.Set(i, j, e.fastFallback(q, quantities, sources, indicator, grids, i, j))
						}
						wc = fallback.At(i, j)
					}
					wf := 1 - wc
					z := wc*c.congMean.At(i, j) + wf*c.freeMean.At(i, j)
					beta := wc*c.nCong.At(i, j) + wf*c.nFree.At(i, j)
					alpha := wc/c.stream.thetaCong + wf/c.stream.thetaFree
					weight := alpha * beta
					if !(weight > 0) {
						continue
					}
					num.Set(i, j, num.At(i, j)+weight*z)
					den.Set(i, j, den.At(i, j)+weight)
				}
			}
		}
		num.DivElem(num, den)
		grids[q.Name()] = denseRows(num)
	}
	r.notify(1.0)

	monitoring.Logf("[Filter] fast filter %dx%d streams=%d exact=%d quantities=%v completed in %s",
		nx, nt, len(binned), exact, quantities, monitoring.Elapsed(e.clock.Since(start)))
	return newFilterResult(x.Points(), t.Points(), quantities, grids), nil
}

// binStreams sums the stored measurements of speed streams and of streams of
// a requested quantity into the nearest grid cell.
func (e *Engine) binStreams(x, t Axis, requested map[string]bool) []*binnedStream {
	nx, nt := x.Len(), t.Len()
	index := make(map[*DataStream]*binnedStream)
	var out []*binnedStream
	for xm, series := range e.store.Locations(x.Min-x.Step/2, x.Last()+x.Step/2) {
		i, ok := x.bin(xm)
		if !ok {
			continue
		}
		for tm, samples := range series.Times(t.Min-t.Step/2, t.Last()+t.Step/2) {
			j, ok := t.bin(tm)
			if !ok {
				continue
			}
			for _, s := range samples {
				q := s.Stream.quantity
				if !q.IsSpeed() && !requested[q.Name()] {
					continue
				}
				b, ok := index[s.Stream]
				if !ok {
					b = &binnedStream{
						stream: s.Stream,
						count:  mat.NewDense(nx, nt, nil),
						sum:    mat.NewDense(nx, nt, nil),
					}
					index[s.Stream] = b
					out = append(out, b)
				}
				b.count.Set(i, j, b.count.At(i, j)+1)
				b.sum.Set(i, j, b.sum.At(i, j)+s.Value)
			}
		}
	}
	return out
}

// refineRatio is the fraction of a stream's largest convolved weight below
// which a cell is recomputed exactly. Transform round-off scales with the
// largest output, so small cells would otherwise lose their digits.
const refineRatio = 1e-4

// condition makes the four convolutions of one stream consistent: cells the
// kernel cannot reach from any sample are zero in all of them, and cells with
// little weight are evaluated by direct summation. It returns the number of
// cells evaluated exactly.
func condition(b *binnedStream, wCong, wFree, nCong, sCong, nFree, sFree *mat.Dense) int {
	kr, kc := wCong.Dims()
	fp := convolve.NewFootprint(kr, kc, b.count)
	limCong := refineRatio * mat.Max(nCong)
	limFree := refineRatio * mat.Max(nFree)
	nx, nt := b.count.Dims()
	refined := 0
	for i := 0; i < nx; i++ {
		for j := 0; j < nt; j++ {
			if !fp.Covers(i, j) {
				nCong.Set(i, j, 0)
				sCong.Set(i, j, 0)
				nFree.Set(i, j, 0)
				sFree.Set(i, j, 0)
				continue
			}
			if limCong > 0 && limFree > 0 && nCong.At(i, j) >= limCong && nFree.At(i, j) >= limFree {
				continue
			}
			nCong.Set(i, j, convolve.At(wCong, b.count, i, j))
			sCong.Set(i, j, convolve.At(wCong, b.sum, i, j))
			nFree.Set(i, j, convolve.At(wFree, b.count, i, j))
			sFree.Set(i, j, convolve.At(wFree, b.sum, i, j))
			refined++
		}
	}
	return refined
}

// fastFallback mirrors fallbackIndicator for the gridded indicators.
func (e *Engine) fastFallback(q quantity.Quantity, quantities []quantity.Quantity, sources []*DataSource, indicator map[*DataSource]*mat.Dense, grids map[string][][]float64, i, j int) float64 {
	for _, prev := range quantities {
		if prev.Equal(q) {
			break
		}
		if prev.IsSpeed() {
			if v := grids[prev.Name()][i][j]; !math.IsNaN(v) {
				return e.congestionIndicator(v)
			}
			break
		}
	}
	var sum float64
	var n int
	for _, src := range sources {
		if w := indicator[src].At(i, j); !math.IsNaN(w) {
			sum += w
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func nanDense(r, c int) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	d.Apply(func(_, _ int, _ float64) float64 { return math.NaN() }, d)
	return d
}

func denseRows(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), d.RawRowView(i)...)
	}
	return out
}
