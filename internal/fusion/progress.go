package fusion

import (
	"fmt"
	"slices"
	"sync/atomic"
)

// Listener receives progress events while a filter runs. Callbacks run on the
// filtering goroutine; a listener may call Event.Interrupt to abort the run.
type Listener interface {
	NotifyProgress(ev *Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev *Event)

// NotifyProgress implements Listener.
func (f ListenerFunc) NotifyProgress(ev *Event) { f(ev) }

// ListenerID identifies a registered listener for RemoveListener.
type ListenerID int

type listenerEntry struct {
	id       ListenerID
	listener Listener
}

// AddListener registers l for progress events of every subsequent filter call.
func (e *Engine) AddListener(l Listener) (ListenerID, error) {
	if l == nil {
		return 0, fmt.Errorf("listener: %w", ErrNilArgument)
	}
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.nextListener++
	e.listeners = append(e.listeners, listenerEntry{id: e.nextListener, listener: l})
	return e.nextListener, nil
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (e *Engine) RemoveListener(id ListenerID) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = slices.DeleteFunc(e.listeners, func(le listenerEntry) bool { return le.id == id })
}

// Interrupt requests every filter call that is running or waiting for the
// engine, including ones just launched by FilterParallelSI, to stop at its
// next progress point. Interrupted calls return a nil result. Calls started
// afterwards are not affected.
func (e *Engine) Interrupt() {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	for r := range e.runs {
		r.interrupt()
	}
}

// Event is one progress notification.
type Event struct {
	run      *run
	progress float64
}

// Progress is the completed fraction in [0, 1]. It reads 1 once interruption
// was requested.
func (ev *Event) Progress() float64 {
	if ev.run.interrupted.Load() {
		return 1.0
	}
	return ev.progress
}

// Interrupt requests the run that published this event to stop.
func (ev *Event) Interrupt() { ev.run.interrupt() }

// Interrupted reports whether interruption was requested for this run.
func (ev *Event) Interrupted() bool { return ev.run.interrupted.Load() }

// Engine is the engine running the filter.
func (ev *Event) Engine() *Engine { return ev.run.engine }

// RunState is the state of one filter invocation.
type RunState int

const (
	RunRunning RunState = iota
	RunCompleted
	RunInterrupted
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunInterrupted:
		return "interrupted"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// run carries the progress state of one filter invocation.
type run struct {
	engine      *Engine
	extra       Listener
	interrupted atomic.Bool
}

func (r *run) interrupt() { r.interrupted.Store(true) }

// begin registers a new run. It is called before the run waits for e.mu so
// Interrupt reaches queued runs too.
func (e *Engine) begin(extra Listener) *run {
	r := &run{engine: e, extra: extra}
	e.runsMu.Lock()
	e.runs[r] = struct{}{}
	e.runsMu.Unlock()
	return r
}

func (e *Engine) end(r *run) {
	e.runsMu.Lock()
	delete(e.runs, r)
	e.runsMu.Unlock()
}

// notify publishes progress to all listeners and reports whether the run
// must stop.
func (r *run) notify(progress float64) bool {
	e := r.engine
	e.listenersMu.Lock()
	entries := slices.Clone(e.listeners)
	e.listenersMu.Unlock()

	if len(entries) > 0 || r.extra != nil {
		ev := &Event{run: r, progress: progress}
		for _, le := range entries {
			le.listener.NotifyProgress(ev)
		}
		if r.extra != nil {
			r.extra.NotifyProgress(ev)
		}
	}
	return r.interrupted.Load()
}
