package fusion

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedfield/internal/convolve"
	"github.com/banshee-data/speedfield/internal/quantity"
	"github.com/banshee-data/speedfield/internal/testutil"
)

func TestAxis(t *testing.T) {
	tests := []struct {
		name string
		axis Axis
		want []float64
	}{
		{"whole steps", Axis{0, 100, 300}, []float64{0, 100, 200, 300}},
		{"max between steps", Axis{0, 100, 350}, []float64{0, 100, 200, 300}},
		{"single point", Axis{5, 10, 5}, []float64{5}},
		{"float steps", Axis{0, 0.1, 0.3}, []float64{0, 0.1, 0.2, 0.3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.axis.Validate())
			assert.Equal(t, len(tt.want), tt.axis.Len())
			if diff := cmp.Diff(tt.want, tt.axis.Points(), approx); diff != "" {
				t.Errorf("Points() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, bad := range []Axis{{0, 0, 10}, {0, -1, 10}, {10, 1, 0}, {math.NaN(), 1, 10}, {0, 1, math.Inf(1)}} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidGrid, "axis %v", bad)
	}
}

func TestAxisBinning(t *testing.T) {
	a := Axis{0, 100, 300}
	tests := []struct {
		v    float64
		want int
		ok   bool
	}{
		{0, 0, true},
		{49, 0, true},
		{50, 1, true},
		{249.9, 2, true},
		{349, 3, true},
		{350, 4, false},
		{-51, -1, false},
	}
	for _, tt := range tests {
		i, ok := a.bin(tt.v)
		assert.Equal(t, tt.ok, ok, "bin(%v)", tt.v)
		if ok {
			assert.Equal(t, tt.want, i, "bin(%v)", tt.v)
		}
	}
}

func TestAxisOffsets(t *testing.T) {
	a := Axis{0, 100, 1000}
	assert.Equal(t, []float64{-200, -100, 0, 100, 200}, a.offsets(250))
	assert.Len(t, a.offsets(math.Inf(1)), 21, "unbounded offsets span the grid")
	assert.Equal(t, []float64{0}, a.offsets(50))
	assert.Equal(t, []float64{0}, Axis{5, 1, 5}.offsets(math.Inf(1)))
}

// fastFixture fills an engine with two sources on grid points of x by t.
func fastFixture(t *testing.T, x, tm Axis, opts ...Option) *Engine {
	t.Helper()
	e := NewDefault(opts...)
	loops, err := e.DataSource("loops")
	require.NoError(t, err)
	fcd, err := e.DataSource("fcd")
	require.NoError(t, err)
	radar, err := e.DataSource("radar")
	require.NoError(t, err)
	loopSpeed, err := loops.AddStreamSI(quantity.Speed, 2, 1)
	require.NoError(t, err)
	loopFlow, err := loops.AddStreamSI(quantity.Flow, 0.05, 0.1)
	require.NoError(t, err)
	fcdSpeed, err := fcd.AddStreamSI(quantity.Speed, 1, 3)
	require.NoError(t, err)
	radarFlow, err := radar.AddStreamSI(quantity.Flow, 0.2, 0.2)
	require.NoError(t, err)

	xs, ts := x.Points(), tm.Points()
	for i, xv := range xs {
		for j, tv := range ts {
			v := 8 + 0.01*xv + 0.03*tv
			if i%3 == 0 {
				require.NoError(t, e.AddStreamPointDataSI(loopSpeed, xv, tv, v))
				require.NoError(t, e.AddStreamPointDataSI(loopFlow, xv, tv, 0.3+0.0001*xv))
			}
			if (i+j)%4 == 1 {
				require.NoError(t, e.AddStreamPointDataSI(fcdSpeed, xv, tv, v+2))
			}
			if j%2 == 1 && i%3 == 1 {
				require.NoError(t, e.AddStreamPointDataSI(radarFlow, xv, tv, 0.5-0.0002*tv))
			}
		}
	}
	return e
}

func TestFilterFastMatchesDirect(t *testing.T) {
	x := Axis{0, 100, 1000}
	tm := Axis{0, 30, 300}

	kernels := []struct {
		name string
		set  func(*Engine) error
	}{
		{"unbounded exp", func(e *Engine) error { return e.SetKernelSI(300, 30) }},
		{"bounded exp", func(e *Engine) error { return e.SetBoundedKernelSI(300, 30, 250, 60) }},
		{"bounded gauss", func(e *Engine) error { return e.SetBoundedGaussKernelSI(300, 60, 400, 90) }},
	}
	convolvers := []struct {
		name string
		c    convolve.Convolver
	}{
		{"fft", convolve.FFT{}},
		{"direct", convolve.Direct{}},
	}

	for _, k := range kernels {
		for _, c := range convolvers {
			t.Run(k.name+"/"+c.name, func(t *testing.T) {
				e := fastFixture(t, x, tm, WithConvolver(c.c))
				require.NoError(t, k.set(e))
				qs := []quantity.Quantity{quantity.Flow, quantity.Speed}

				fast, err := e.FilterFastSI(x, tm, qs...)
				require.NoError(t, err)
				direct, err := e.FilterSI(x.Points(), tm.Points(), qs...)
				require.NoError(t, err)

				assert.Equal(t, direct.Locations(), fast.Locations())
				assert.Equal(t, direct.Times(), fast.Times())
				for _, q := range qs {
					testutil.AssertGridsApprox(t, mustSI(t, direct, q), mustSI(t, fast, q), 1e-6, 1e-9)
				}
			})
		}
	}
}

func TestFilterFastWideValueRange(t *testing.T) {
	// far apart measurements of very different size leave cells whose
	// weights are tiny compared with the largest convolved weight
	x, tm := Axis{0, 100, 6000}, Axis{0, 30, 60}
	kernels := []struct {
		name string
		set  func(*Engine) error
	}{
		{"unbounded", func(e *Engine) error { e.SetKernel(); return nil }},
		{"bounded", func(e *Engine) error { return e.SetBoundedKernelSI(DefaultSigma, DefaultTau, 6000, 60) }},
	}

	for _, k := range kernels {
		t.Run(k.name, func(t *testing.T) {
			grids := make(map[string][][]float64)
			for name, c := range map[string]convolve.Convolver{"fft": convolve.FFT{}, "direct": convolve.Direct{}} {
				e := NewDefault(WithConvolver(c))
				require.NoError(t, k.set(e))
				require.NoError(t, e.AddPointDataSI(quantity.Speed, 0, 0, 30))
				require.NoError(t, e.AddPointDataSI(quantity.Speed, 6000, 0, 0.01))

				res, err := e.FilterFastSI(x, tm, quantity.Speed)
				require.NoError(t, err)
				grids[name] = mustSI(t, res, quantity.Speed)

				if name == "direct" {
					res, err = e.FilterSI(x.Points(), tm.Points(), quantity.Speed)
					require.NoError(t, err)
					grids["sum"] = mustSI(t, res, quantity.Speed)
				}
			}

			testutil.AssertGridsApprox(t, grids["sum"], grids["direct"], 1e-6, 1e-9)
			testutil.AssertGridsApprox(t, grids["sum"], grids["fft"], 1e-6, 1e-9)
			for i, row := range grids["fft"] {
				for j, v := range row {
					require.False(t, math.IsNaN(v), "cell (%d,%d)", i, j)
					assert.GreaterOrEqual(t, v, 0.01-1e-9, "cell (%d,%d)", i, j)
					assert.LessOrEqual(t, v, 30+1e-9, "cell (%d,%d)", i, j)
				}
			}
		})
	}
}

func TestFilterFastBinsOffGridData(t *testing.T) {
	e := NewDefault()
	require.NoError(t, e.AddPointDataSI(quantity.Speed, 40, 14, 20))
	// outside the half-step margin around the grid
	require.NoError(t, e.AddPointDataSI(quantity.Speed, 360, 0, 5))

	x, tm := Axis{0, 100, 300}, Axis{0, 30, 60}
	res, err := e.FilterFastSI(x, tm, quantity.Speed)
	require.NoError(t, err)
	testutil.AssertGridsApprox(t, testutil.ConstGrid(4, 3, 20), mustSI(t, res, quantity.Speed), 1e-9, 0)
}

func TestFilterFastNoData(t *testing.T) {
	e := NewDefault()
	res, err := e.FilterFastSI(Axis{0, 100, 200}, Axis{0, 30, 30}, quantity.Speed)
	require.NoError(t, err)
	testutil.AssertAllNaN(t, mustSI(t, res, quantity.Speed))
}

func TestFilterFastInvalidGrid(t *testing.T) {
	e := NewDefault()
	_, err := e.FilterFastSI(Axis{0, 0, 100}, Axis{0, 30, 30}, quantity.Speed)
	assert.ErrorIs(t, err, ErrInvalidGrid)
	_, err = e.FilterFastSI(Axis{0, 10, 100}, Axis{30, 30, 0}, quantity.Speed)
	assert.ErrorIs(t, err, ErrInvalidGrid)
	_, err = e.FilterFastSI(Axis{0, 10, 100}, Axis{0, 30, 30}, quantity.Quantity{})
	assert.ErrorIs(t, err, ErrNilArgument)
}

var approx = cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) <= 1e-12 })
