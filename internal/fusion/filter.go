package fusion

import (
	"math"
	"slices"

	"github.com/banshee-data/speedfield/internal/monitoring"
	"github.com/banshee-data/speedfield/internal/quantity"
)

// streamMeans collects the dual weighted means of the streams seen at one
// output cell in the order they were first encountered.
type streamMeans struct {
	index  map[*DataStream]int
	stream []*DataStream
	mean   []DualWeightedMean
}

func newStreamMeans() *streamMeans {
	return &streamMeans{index: make(map[*DataStream]int)}
}

func (s *streamMeans) reset() {
	clear(s.index)
	s.stream = s.stream[:0]
	s.mean = s.mean[:0]
}

func (s *streamMeans) add(ds *DataStream, v, phiCong, phiFree float64) {
	k, ok := s.index[ds]
	if !ok {
		k = len(s.stream)
		s.index[ds] = k
		s.stream = append(s.stream, ds)
		s.mean = append(s.mean, DualWeightedMean{})
	}
	s.mean[k].Add(v, phiCong, phiFree)
}

// sourceIndicators holds the congestion indicator per data source at one cell.
type sourceIndicators struct {
	source []*DataSource
	w      []float64
}

func (s *sourceIndicators) reset() {
	s.source = s.source[:0]
	s.w = s.w[:0]
}

func (s *sourceIndicators) set(src *DataSource, w float64) {
	if k := slices.Index(s.source, src); k >= 0 {
		s.w[k] = w
		return
	}
	s.source = append(s.source, src)
	s.w = append(s.w, w)
}

func (s *sourceIndicators) get(src *DataSource) (float64, bool) {
	if k := slices.Index(s.source, src); k >= 0 {
		return s.w[k], true
	}
	return 0, false
}

func (s *sourceIndicators) mean() float64 {
	var m float64
	for _, w := range s.w {
		m += w / float64(len(s.w))
	}
	return m
}

// FilterSI estimates the quantities on the grid locations x times (m, s).
// Each cell sums every measurement within kernel support. It returns a nil
// result and nil error when interrupted.
func (e *Engine) FilterSI(locations, times []float64, qs ...quantity.Quantity) (*FilterResult, error) {
	return e.filterSI(e.begin(nil), locations, times, qs)
}

func (e *Engine) filterSI(r *run, locations, times []float64, qs []quantity.Quantity) (*FilterResult, error) {
	defer e.end(r)
	quantities, err := normalizeQuantities(qs)
	if err != nil {
		return nil, err
	}
	locations = slices.Clone(locations)
	times = slices.Clone(times)

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	kernel := e.kernel
	requested := make(map[string]bool, len(quantities))
	grids := make(map[string][][]float64, len(quantities))
	for _, q := range quantities {
		requested[q.Name()] = true
		grids[q.Name()] = newGrid(len(locations), len(times))
	}

	means := newStreamMeans()
	ind := &sourceIndicators{}
	for i, x := range locations {
		for j, t := range times {
			progress := (float64(i) + float64(j)/float64(len(times))) / float64(len(locations))
			if r.notify(progress) {
				monitoring.Logf("[Filter] direct filter interrupted at %.1f%% after %s",
					100*progress, monitoring.Elapsed(e.clock.Since(start)))
				return nil, nil
			}

			means.reset()
			for xm, series := range e.store.Locations(kernel.FromLocation(x), kernel.ToLocation(x)) {
				dx := xm - x
				for tm, samples := range series.Times(kernel.FromTime(t), kernel.ToTime(t)) {
					dt := tm - t
					phiCong := math.NaN()
					var phiFree float64
					for _, s := range samples {
						q := s.Stream.quantity
						if !q.IsSpeed() && !requested[q.Name()] {
							continue
						}
						if math.IsNaN(phiCong) {
							phiCong = kernel.Weight(e.cCong, dx, dt)
							phiFree = kernel.Weight(e.cFree, dx, dt)
						}
						if phiCong == 0 && phiFree == 0 {
							break // underflow, nothing to add at this key
						}
						means.add(s.Stream, s.Value, phiCong, phiFree)
					}
				}
			}
			e.fuseCell(i, j, means, ind, quantities, grids)
		}
	}
	r.notify(1.0)

	monitoring.Logf("[Filter] direct filter %dx%d quantities=%v completed in %s",
		len(locations), len(times), quantities, monitoring.Elapsed(e.clock.Since(start)))
	return newFilterResult(locations, times, quantities, grids), nil
}

// fuseCell turns the per-stream means at cell (i, j) into one value per
// requested quantity.
func (e *Engine) fuseCell(i, j int, means *streamMeans, ind *sourceIndicators, quantities []quantity.Quantity, grids map[string][][]float64) {
	ind.reset()
	for k, ds := range means.stream {
		if ds.quantity.IsSpeed() {
			m := means.mean[k]
			u := math.Min(m.Cong.Mean(), m.Free.Mean())
			ind.set(ds.source, e.congestionIndicator(u))
		}
	}

	// The fallback indicator for sources without speed depends on the
	// request order and, once computed, is reused for later quantities.
	fallback := math.NaN()
	haveFallback := false

	for _, q := range quantities {
		contributing := 0
		for _, ds := range means.stream {
			if ds.quantity.Equal(q) {
				contributing++
			}
		}

		var z WeightedMean
		for k, ds := range means.stream {
			if !ds.quantity.Equal(q) {
				continue
			}
			wCong, ok := ind.get(ds.source)
			if !ok {
				if !haveFallback {
					fallback = e.fallbackIndicator(q, quantities, ind, grids, i, j)
					haveFallback = true
				}
				wCong = fallback
			}
			wFree := 1.0 - wCong
			m := means.mean[k]
			zStream := wCong*m.Cong.Mean() + wFree*m.Free.Mean()

			weight := 1.0
			if contributing > 1 {
				// more and nearer data, and smaller error, weigh more
				beta := wCong*m.Cong.Denominator + wFree*m.Free.Denominator
				alpha := wCong/ds.thetaCong + wFree/ds.thetaFree
				weight = alpha * beta
			}
			z.Add(zStream, weight)
		}
		grids[q.Name()][i][j] = z.Mean()
	}
}

// fallbackIndicator estimates the congestion indicator for a source without
// speed data: from a speed quantity listed before q if there is one and it
// has an estimate at the cell, otherwise as the mean over the sources that do
// have speed data.
func (e *Engine) fallbackIndicator(q quantity.Quantity, quantities []quantity.Quantity, ind *sourceIndicators, grids map[string][][]float64, i, j int) float64 {
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
	return ind.mean()
}
