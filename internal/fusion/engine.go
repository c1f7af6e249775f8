package fusion

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/speedfield/internal/config"
	"github.com/banshee-data/speedfield/internal/convolve"
	"github.com/banshee-data/speedfield/internal/monitoring"
	"github.com/banshee-data/speedfield/internal/quantity"
	"github.com/banshee-data/speedfield/internal/timeutil"
	"github.com/banshee-data/speedfield/internal/units"
)

// DefaultSourceName names the implicit source used for data by quantity.
const DefaultSourceName = "default"

// Params are the global wave model parameters, all in km/h.
type Params struct {
	CongestionWaveSpeed float64 // characteristic speed in congestion, negative (upstream)
	FreeFlowWaveSpeed   float64 // characteristic speed in free flow, positive
	SpeedScale          float64 // width of the congestion indicator transition
	ThresholdSpeed      float64 // speed at which the indicator equals 0.5
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		CongestionWaveSpeed: -18,
		FreeFlowWaveSpeed:   80,
		SpeedScale:          10,
		ThresholdSpeed:      80,
	}
}

// Validate checks that the wave speeds are finite and non-zero and the speed
// scale is positive.
func (p Params) Validate() error {
	nonZero := func(v float64) bool { return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) }
	if !nonZero(p.CongestionWaveSpeed) || !nonZero(p.FreeFlowWaveSpeed) {
		return fmt.Errorf("wave speeds %v/%v must be finite and non-zero: %w",
			p.CongestionWaveSpeed, p.FreeFlowWaveSpeed, ErrInvalidParams)
	}
	if !(p.SpeedScale > 0) || math.IsInf(p.SpeedScale, 0) {
		return fmt.Errorf("speed scale %v must be positive: %w", p.SpeedScale, ErrInvalidParams)
	}
	if math.IsNaN(p.ThresholdSpeed) || math.IsInf(p.ThresholdSpeed, 0) {
		return fmt.Errorf("threshold speed %v must be finite: %w", p.ThresholdSpeed, ErrInvalidParams)
	}
	return nil
}

type usageMode int

const (
	modeUnset usageMode = iota
	modeByQuantity
	modeByStream
)

func (m usageMode) String() string {
	switch m {
	case modeByQuantity:
		return "by-quantity"
	case modeByStream:
		return "by-stream"
	default:
		return "unset"
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConvolver selects the convolution used by FilterFastSI.
func WithConvolver(c convolve.Convolver) Option {
	return func(e *Engine) {
		if c != nil {
			e.convolver = c
		}
	}
}

// WithClock replaces the clock used for run timing and asynchronous waits.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// Engine fuses measurements into gridded estimates. All mutation and all
// filter calls on one Engine are serialised by a single lock; listener
// callbacks run while that lock is held and must not insert data or swap the
// kernel.
type Engine struct {
	params Params

	// SI copies of Params
	cCong, cFree, deltaV, vc float64

	convolver convolve.Convolver
	clock     timeutil.Clock

	mu             sync.Mutex
	kernel         *Kernel
	store          *Store
	mode           usageMode
	sources        map[string]*DataSource
	defaultSource  *DataSource
	defaultStreams map[string]*DataStream

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener ListenerID

	runsMu sync.Mutex
	runs   map[*run]struct{} // started or waiting for mu
}

// New returns an engine with the given parameters and the default kernel.
func New(p Params, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		params:    p,
		cCong:     units.KmhToMPS(p.CongestionWaveSpeed),
		cFree:     units.KmhToMPS(p.FreeFlowWaveSpeed),
		deltaV:    units.KmhToMPS(p.SpeedScale),
		vc:        units.KmhToMPS(p.ThresholdSpeed),
		convolver: convolve.FFT{},
		clock:     timeutil.RealClock{},
		kernel:    DefaultKernel(),
		store:     NewStore(),
		sources:   make(map[string]*DataSource),
		runs:      make(map[*run]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewDefault returns an engine with DefaultParams.
func NewDefault(opts ...Option) *Engine {
	e, err := New(DefaultParams(), opts...)
	if err != nil {
		panic(err) // defaults are valid
	}
	return e
}

// NewFromConfig builds an engine, its kernel and its configured data source
// streams from a loaded FilterConfig.
func NewFromConfig(cfg *config.FilterConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("filter config: %w", ErrNilArgument)
	}
	p := Params{
		CongestionWaveSpeed: cfg.GetCongestionWaveSpeed(),
		FreeFlowWaveSpeed:   cfg.GetFreeFlowWaveSpeed(),
		SpeedScale:          cfg.GetSpeedScale(),
		ThresholdSpeed:      cfg.GetThresholdSpeed(),
	}
	if cfg.GetConvolution() == config.ConvolutionDirect {
		opts = append([]Option{WithConvolver(convolve.Direct{})}, opts...)
	}
	e, err := New(p, opts...)
	if err != nil {
		return nil, err
	}

	var shape Shape
	switch cfg.GetKernelShape() {
	case config.ShapeGaussian:
		shape, err = NewGaussShape(cfg.GetSigma(), cfg.GetTau())
	default:
		shape, err = NewExpShape(cfg.GetSigma(), cfg.GetTau())
	}
	if err != nil {
		return nil, err
	}
	if err := e.SetKernelShapeSI(cfg.GetXMax(), cfg.GetTMax(), shape); err != nil {
		return nil, err
	}

	for _, sc := range cfg.Streams {
		q, ok := quantity.Lookup(sc.Quantity)
		if !ok {
			return nil, fmt.Errorf("stream %s/%s: unknown quantity", sc.Source, sc.Quantity)
		}
		src, err := e.DataSource(sc.Source)
		if err != nil {
			return nil, err
		}
		if _, err := src.AddStreamSI(q, sc.ThetaCongSI(q.Unit()), sc.ThetaFreeSI(q.Unit())); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Params returns the parameters the engine was built with, in km/h.
func (e *Engine) Params() Params { return e.params }

// congestionIndicator maps a speed (m/s) to a value in (0, 1), 0.5 at the
// threshold speed and approaching 1 in congestion.
func (e *Engine) congestionIndicator(u float64) float64 {
	return 0.5 * (1.0 + math.Tanh((e.vc-u)/e.deltaV))
}

// DataSource returns the source with the given name, creating it on first
// use. Requesting a source commits the engine to data by stream.
func (e *Engine) DataSource(name string) (*DataSource, error) {
	if name == "" {
		return nil, fmt.Errorf("data source name: %w", ErrNilArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enterMode(modeByStream); err != nil {
		return nil, fmt.Errorf("data source %q: %w", name, err)
	}
	src, ok := e.sources[name]
	if !ok {
		src = newDataSource(name)
		e.sources[name] = src
	}
	return src, nil
}

// enterMode must be called with e.mu held.
func (e *Engine) enterMode(m usageMode) error {
	if e.mode != modeUnset && e.mode != m {
		return fmt.Errorf("engine holds data %s, requested %s: %w", e.mode, m, ErrModeConflict)
	}
	e.mode = m
	return nil
}

// defaultStream must be called with e.mu held.
func (e *Engine) defaultStream(q quantity.Quantity) (*DataStream, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("quantity: %w", ErrNilArgument)
	}
	if err := e.enterMode(modeByQuantity); err != nil {
		return nil, err
	}
	if e.defaultSource == nil {
		e.defaultSource = newDataSource(DefaultSourceName)
		e.defaultStreams = make(map[string]*DataStream)
	}
	ds, ok := e.defaultStreams[q.Name()]
	if !ok {
		var err error
		ds, err = e.defaultSource.AddStreamSI(q, 1.0, 1.0)
		if err != nil {
			return nil, err
		}
		e.defaultStreams[q.Name()] = ds
	}
	return ds, nil
}

// checkStream must be called with e.mu held.
func (e *Engine) checkStream(ds *DataStream) error {
	if ds == nil {
		return fmt.Errorf("data stream: %w", ErrNilArgument)
	}
	if err := e.enterMode(modeByStream); err != nil {
		return err
	}
	if e.sources[ds.source.name] != ds.source {
		return fmt.Errorf("%v: %w", ds, ErrUnknownStream)
	}
	return nil
}

// AddPointDataSI adds one SI measurement of q at location x (m) and time t (s).
func (e *Engine) AddPointDataSI(q quantity.Quantity, x, t, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, err := e.defaultStream(q)
	if err != nil {
		return fmt.Errorf("add point data: %w", err)
	}
	e.store.Insert(x, t, ds, v)
	return nil
}

// AddStreamPointDataSI adds one SI measurement to an explicit stream.
func (e *Engine) AddStreamPointDataSI(ds *DataStream, x, t, v float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkStream(ds); err != nil {
		return fmt.Errorf("add point data: %w", err)
	}
	e.store.Insert(x, t, ds, v)
	return nil
}

// AddVectorDataSI adds measurements (xs[k], ts[k], vs[k]) of q.
func (e *Engine) AddVectorDataSI(q quantity.Quantity, xs, ts, vs []float64) error {
	if err := checkVector(xs, ts, vs); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, err := e.defaultStream(q)
	if err != nil {
		return fmt.Errorf("add vector data: %w", err)
	}
	e.insertVector(ds, xs, ts, vs)
	return nil
}

// AddStreamVectorDataSI adds measurements (xs[k], ts[k], vs[k]) to a stream.
func (e *Engine) AddStreamVectorDataSI(ds *DataStream, xs, ts, vs []float64) error {
	if err := checkVector(xs, ts, vs); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkStream(ds); err != nil {
		return fmt.Errorf("add vector data: %w", err)
	}
	e.insertVector(ds, xs, ts, vs)
	return nil
}

// AddGridDataSI adds vs[i][j] of q measured at location xs[i] and time ts[j].
func (e *Engine) AddGridDataSI(q quantity.Quantity, xs, ts []float64, vs [][]float64) error {
	if err := checkGrid(xs, ts, vs); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, err := e.defaultStream(q)
	if err != nil {
		return fmt.Errorf("add grid data: %w", err)
	}
	e.insertGrid(ds, xs, ts, vs)
	return nil
}

// AddStreamGridDataSI adds vs[i][j] measured at location xs[i] and time ts[j]
// to a stream.
func (e *Engine) AddStreamGridDataSI(ds *DataStream, xs, ts []float64, vs [][]float64) error {
	if err := checkGrid(xs, ts, vs); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkStream(ds); err != nil {
		return fmt.Errorf("add grid data: %w", err)
	}
	e.insertGrid(ds, xs, ts, vs)
	return nil
}

func (e *Engine) insertVector(ds *DataStream, xs, ts, vs []float64) {
	for k := range xs {
		e.store.Insert(xs[k], ts[k], ds, vs[k])
	}
}

func (e *Engine) insertGrid(ds *DataStream, xs, ts []float64, vs [][]float64) {
	for i, x := range xs {
		for j, t := range ts {
			e.store.Insert(x, t, ds, vs[i][j])
		}
	}
}

func checkVector(xs, ts, vs []float64) error {
	if len(xs) != len(ts) || len(xs) != len(vs) {
		return fmt.Errorf("vector data lengths %d/%d/%d: %w", len(xs), len(ts), len(vs), ErrDimensionMismatch)
	}
	return nil
}

func checkGrid(xs, ts []float64, vs [][]float64) error {
	if len(vs) != len(xs) {
		return fmt.Errorf("grid data has %d rows for %d locations: %w", len(vs), len(xs), ErrDimensionMismatch)
	}
	for i, row := range vs {
		if len(row) != len(ts) {
			return fmt.Errorf("grid data row %d has %d values for %d times: %w", i, len(row), len(ts), ErrDimensionMismatch)
		}
	}
	return nil
}

// ClearDataBefore removes all data with a time strictly before t (s).
func (e *Engine) ClearDataBefore(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.store.PurgeBefore(t)
	monitoring.Logf("[Filter] cleared %d measurements before t=%.1fs, %d remain", n, t, e.store.Len())
}

// Kernel returns the active kernel.
func (e *Engine) Kernel() *Kernel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kernel
}

// SetKernel restores the default unbounded exponential kernel.
func (e *Engine) SetKernel() {
	e.swapKernel(DefaultKernel())
}

// SetKernelSI selects an unbounded exponential kernel.
func (e *Engine) SetKernelSI(sigma, tau float64) error {
	return e.SetBoundedKernelSI(sigma, tau, math.Inf(1), math.Inf(1))
}

// SetBoundedKernelSI selects an exponential kernel with support bounds.
func (e *Engine) SetBoundedKernelSI(sigma, tau, xMax, tMax float64) error {
	shape, err := NewExpShape(sigma, tau)
	if err != nil {
		return err
	}
	return e.SetKernelShapeSI(xMax, tMax, shape)
}

// SetGaussKernelSI selects an unbounded Gaussian kernel.
func (e *Engine) SetGaussKernelSI(sigma, tau float64) error {
	return e.SetBoundedGaussKernelSI(sigma, tau, math.Inf(1), math.Inf(1))
}

// SetBoundedGaussKernelSI selects a Gaussian kernel with support bounds.
func (e *Engine) SetBoundedGaussKernelSI(sigma, tau, xMax, tMax float64) error {
	shape, err := NewGaussShape(sigma, tau)
	if err != nil {
		return err
	}
	return e.SetKernelShapeSI(xMax, tMax, shape)
}

// SetKernelShapeSI selects a kernel over any Shape.
func (e *Engine) SetKernelShapeSI(xMax, tMax float64, shape Shape) error {
	k, err := NewKernel(xMax, tMax, shape)
	if err != nil {
		return err
	}
	e.swapKernel(k)
	return nil
}

func (e *Engine) swapKernel(k *Kernel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kernel = k
	monitoring.Logf("[Filter] kernel set to %v", k)
}
