package fusion

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/speedfield/internal/quantity"
)

// DataSource is a named measurement provider, for example "loop detectors".
// It owns at most one DataStream per Quantity. Obtain sources through
// Engine.DataSource; sources are unique by name within an engine.
type DataSource struct {
	name string

	mu      sync.Mutex
	streams map[string]*DataStream
	order   []*DataStream
}

func newDataSource(name string) *DataSource {
	return &DataSource{name: name, streams: make(map[string]*DataStream)}
}

// Name identifies the source.
func (s *DataSource) Name() string { return s.name }

func (s *DataSource) String() string { return "DataSource[" + s.name + "]" }

// AddStreamSI binds the source to a quantity. thetaCong and thetaFree are the
// standard deviations of the measurement error under the congestion and
// free-flow hypotheses, in SI units of the quantity.
func (s *DataSource) AddStreamSI(q quantity.Quantity, thetaCong, thetaFree float64) (*DataStream, error) {
	if q.IsZero() {
		return nil, fmt.Errorf("add stream to %s: %w", s.name, ErrNilArgument)
	}
	if !validTheta(thetaCong) || !validTheta(thetaFree) {
		return nil, fmt.Errorf("add stream %s to %s: thetaCong=%v thetaFree=%v: %w",
			q.Name(), s.name, thetaCong, thetaFree, ErrInvalidReliability)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[q.Name()]; ok {
		return nil, fmt.Errorf("add stream %s to %s: %w", q.Name(), s.name, ErrDuplicateStream)
	}
	ds := &DataStream{source: s, quantity: q, thetaCong: thetaCong, thetaFree: thetaFree}
	s.streams[q.Name()] = ds
	s.order = append(s.order, ds)
	return ds, nil
}

// AddStream is AddStreamSI with thetas given in the quantity's display unit.
func (s *DataSource) AddStream(q quantity.Quantity, thetaCong, thetaFree float64) (*DataStream, error) {
	return s.AddStreamSI(q, q.FromDisplay(thetaCong), q.FromDisplay(thetaFree))
}

// Stream returns the stream bound to q, if any.
func (s *DataSource) Stream(q quantity.Quantity) (*DataStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.streams[q.Name()]
	return ds, ok
}

// Streams lists the source's streams in creation order.
func (s *DataSource) Streams() []*DataStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DataStream, len(s.order))
	copy(out, s.order)
	return out
}

func validTheta(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// DataStream binds one DataSource to one Quantity with fixed reliability.
// Streams are immutable; the pointer returned by AddStreamSI is canonical.
type DataStream struct {
	source    *DataSource
	quantity  quantity.Quantity
	thetaCong float64
	thetaFree float64
}

// DataSource returns the owning source.
func (d *DataStream) DataSource() *DataSource { return d.source }

// Quantity returns the measured quantity.
func (d *DataStream) Quantity() quantity.Quantity { return d.quantity }

// ThetaCong is the error standard deviation under congestion, SI.
func (d *DataStream) ThetaCong() float64 { return d.thetaCong }

// ThetaFree is the error standard deviation under free flow, SI.
func (d *DataStream) ThetaFree() float64 { return d.thetaFree }

// Equal compares source name and quantity name.
func (d *DataStream) Equal(o *DataStream) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.source.name == o.source.name && d.quantity.Equal(o.quantity)
}

func (d *DataStream) String() string {
	return fmt.Sprintf("DataStream[%s, %s]", d.source.name, d.quantity.Name())
}
