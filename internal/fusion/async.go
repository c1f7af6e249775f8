package fusion

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/speedfield/internal/monitoring"
	"github.com/banshee-data/speedfield/internal/quantity"
	"github.com/banshee-data/speedfield/internal/timeutil"
)

// maxRunningProgress caps reported progress until the result is attached, so
// a waiter for 1.0 never wakes before Result is available.
const maxRunningProgress = 0.999

// AsyncListener tracks one filter call running on its own goroutine.
type AsyncListener struct {
	id    uuid.UUID
	clock timeutil.Clock

	mu       sync.Mutex
	progress float64
	changed  chan struct{} // closed and replaced on every progress change
	state    RunState
	result   *FilterResult
	err      error

	done      chan struct{}
	interrupt atomic.Bool
	run       *run // set before the run starts
}

func newAsyncListener(clock timeutil.Clock) *AsyncListener {
	return &AsyncListener{
		id:      uuid.New(),
		clock:   clock,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// NotifyProgress implements Listener.
func (a *AsyncListener) NotifyProgress(ev *Event) {
	if a.interrupt.Load() {
		ev.Interrupt()
	}
	a.setProgress(math.Min(ev.Progress(), maxRunningProgress))
}

func (a *AsyncListener) setProgress(p float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p == a.progress {
		return
	}
	a.progress = p
	close(a.changed)
	a.changed = make(chan struct{})
}

func (a *AsyncListener) finish(res *FilterResult, err error) {
	a.mu.Lock()
	a.result, a.err = res, err
	switch {
	case err != nil:
		a.state = RunFailed
	case res == nil:
		a.state = RunInterrupted
	default:
		a.state = RunCompleted
	}
	a.mu.Unlock()

	a.setProgress(1.0)
	close(a.done)
}

// ID identifies the run in log output.
func (a *AsyncListener) ID() uuid.UUID { return a.id }

// Done is closed once the filter call has returned.
func (a *AsyncListener) Done() <-chan struct{} { return a.done }

// Interrupt requests the run to stop at its next progress point. It may be
// called before the run has started.
func (a *AsyncListener) Interrupt() {
	a.interrupt.Store(true)
	if a.run != nil {
		a.run.interrupt()
	}
}

// Progress is the last reported completion fraction.
func (a *AsyncListener) Progress() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

// State is the current run state.
func (a *AsyncListener) State() RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Result returns the filter outcome. Before completion it fails with
// ErrResultNotReady; an interrupted run yields a nil result and nil error.
func (a *AsyncListener) Result() (*FilterResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == RunRunning {
		return nil, fmt.Errorf("run %s: %w", a.id, ErrResultNotReady)
	}
	return a.result, a.err
}

// WaitFor blocks until progress reaches at least p or the timeout elapses and
// returns the progress at that point. A non-positive timeout waits without
// limit.
func (a *AsyncListener) WaitFor(p float64, timeout time.Duration) float64 {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := a.clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C()
	}
	for {
		a.mu.Lock()
		cur, changed := a.progress, a.changed
		a.mu.Unlock()
		if cur >= p {
			return cur
		}
		select {
		case <-changed:
		case <-a.done:
			return a.Progress()
		case <-expired:
			return a.Progress()
		}
	}
}

// FilterParallelSI runs FilterSI on a new goroutine.
func (e *Engine) FilterParallelSI(locations, times []float64, qs ...quantity.Quantity) *AsyncListener {
	locations, times, qs = slices.Clone(locations), slices.Clone(times), slices.Clone(qs)
	a := newAsyncListener(e.clock)
	a.run = e.begin(a)
	monitoring.Logf("[Filter] run %s: direct filter %dx%d started", a.id, len(locations), len(times))
	go func() {
		res, err := e.filterSI(a.run, locations, times, qs)
		a.finish(res, err)
		monitoring.Logf("[Filter] run %s: %s", a.id, a.State())
	}()
	return a
}

// FilterParallelFastSI runs FilterFastSI on a new goroutine.
func (e *Engine) FilterParallelFastSI(x, t Axis, qs ...quantity.Quantity) *AsyncListener {
	qs = slices.Clone(qs)
	a := newAsyncListener(e.clock)
	a.run = e.begin(a)
	monitoring.Logf("[Filter] run %s: fast filter %v by %v started", a.id, x, t)
	go func() {
		res, err := e.filterFastSI(a.run, x, t, qs)
		a.finish(res, err)
		monitoring.Logf("[Filter] run %s: %s", a.id, a.State())
	}()
	return a
}
