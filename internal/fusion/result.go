package fusion

import (
	"fmt"
	"slices"

	"github.com/banshee-data/speedfield/internal/quantity"
)

// FilterResult is the immutable output of one filter call. Accessors return
// copies.
type FilterResult struct {
	locations  []float64
	times      []float64
	quantities []quantity.Quantity
	grids      map[string][][]float64
}

func newFilterResult(locations, times []float64, qs []quantity.Quantity, grids map[string][][]float64) *FilterResult {
	return &FilterResult{
		locations:  locations,
		times:      times,
		quantities: qs,
		grids:      grids,
	}
}

// Locations are the grid locations in m.
func (r *FilterResult) Locations() []float64 { return slices.Clone(r.locations) }

// Times are the grid times in s.
func (r *FilterResult) Times() []float64 { return slices.Clone(r.times) }

// Quantities lists the filtered quantities in request order.
func (r *FilterResult) Quantities() []quantity.Quantity { return slices.Clone(r.quantities) }

// SI returns the estimate of q in SI units, indexed [location][time]. Cells
// without any data in kernel support are NaN.
func (r *FilterResult) SI(q quantity.Quantity) ([][]float64, error) {
	g, err := r.grid(q)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i] = slices.Clone(row)
	}
	return out, nil
}

// Get returns the estimate of q converted to its display unit.
func (r *FilterResult) Get(q quantity.Quantity) ([][]float64, error) {
	g, err := r.grid(q)
	if err != nil {
		return nil, err
	}
	return q.Convert(g), nil
}

func (r *FilterResult) grid(q quantity.Quantity) ([][]float64, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("result quantity: %w", ErrNilArgument)
	}
	g, ok := r.grids[q.Name()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", q.Name(), ErrQuantityNotRequested)
	}
	return g, nil
}

func newGrid(nx, nt int) [][]float64 {
	g := make([][]float64, nx)
	for i := range g {
		g[i] = make([]float64, nt)
	}
	return g
}

// normalizeQuantities rejects zero quantities and drops repeats, keeping the
// first occurrence so the request order still decides the fallback rule.
func normalizeQuantities(qs []quantity.Quantity) ([]quantity.Quantity, error) {
	out := make([]quantity.Quantity, 0, len(qs))
	seen := make(map[string]bool, len(qs))
	for i, q := range qs {
		if q.IsZero() {
			return nil, fmt.Errorf("quantity %d: %w", i, ErrNilArgument)
		}
		if seen[q.Name()] {
			continue
		}
		seen[q.Name()] = true
		out = append(out, q)
	}
	return out, nil
}
