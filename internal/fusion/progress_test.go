package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speedfield/internal/quantity"
)

type recorder struct {
	events []float64
	engine *Engine
	stopAt int // interrupt on this call, 0 never
}

func (r *recorder) NotifyProgress(ev *Event) {
	if len(r.events)+1 == r.stopAt {
		ev.Interrupt()
	}
	r.events = append(r.events, ev.Progress())
	r.engine = ev.Engine()
}

func progressEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewDefault()
	require.NoError(t, e.AddVectorDataSI(quantity.Speed, []float64{0, 100}, []float64{0, 10}, []float64{20, 25}))
	return e
}

func TestProgressDirect(t *testing.T) {
	e := progressEngine(t)
	rec := &recorder{}
	_, err := e.AddListener(rec)
	require.NoError(t, err)

	res, err := e.FilterSI([]float64{0, 50, 100}, []float64{0, 5, 10, 15}, quantity.Speed)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, rec.events, 3*4+1)
	assert.Equal(t, 0.0, rec.events[0])
	assert.InDelta(t, 1.0/12, rec.events[1], 1e-12)
	assert.InDelta(t, 1.0/3, rec.events[4], 1e-12)
	assert.Equal(t, 1.0, rec.events[len(rec.events)-1])
	assert.IsNonDecreasing(t, rec.events)
	assert.Same(t, e, rec.engine)
}

func TestProgressFast(t *testing.T) {
	e := progressEngine(t)
	rec := &recorder{}
	_, err := e.AddListener(rec)
	require.NoError(t, err)

	_, err = e.FilterFastSI(Axis{0, 50, 100}, Axis{0, 5, 15}, quantity.Speed)
	require.NoError(t, err)

	// start, four convolutions for the single stream, end
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1, 1}, rec.events)
}

func TestInterruptFromListener(t *testing.T) {
	tests := []struct {
		name   string
		stopAt int
		filter func(*Engine) (*FilterResult, error)
		calls  int
	}{
		{
			name:   "direct on second cell",
			stopAt: 2,
			filter: func(e *Engine) (*FilterResult, error) {
				return e.FilterSI([]float64{0, 50, 100}, []float64{0, 5}, quantity.Speed)
			},
			calls: 2,
		},
		{
			name:   "fast at start",
			stopAt: 1,
			filter: func(e *Engine) (*FilterResult, error) {
				return e.FilterFastSI(Axis{0, 50, 100}, Axis{0, 5, 10}, quantity.Speed)
			},
			calls: 1,
		},
		{
			name:   "fast in the first stream",
			stopAt: 2,
			filter: func(e *Engine) (*FilterResult, error) {
				return e.FilterFastSI(Axis{0, 50, 100}, Axis{0, 5, 10}, quantity.Speed)
			},
			// stops right after the first convolution
			calls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := progressEngine(t)
			rec := &recorder{stopAt: tt.stopAt}
			_, err := e.AddListener(rec)
			require.NoError(t, err)

			res, err := tt.filter(e)
			assert.NoError(t, err)
			assert.Nil(t, res)
			assert.Len(t, rec.events, tt.calls)
			assert.Equal(t, 1.0, rec.events[len(rec.events)-1], "interrupted runs report completion")

			// the flag belongs to the interrupted run only
			rec.stopAt = 0
			res, err = tt.filter(e)
			assert.NoError(t, err)
			assert.NotNil(t, res)
		})
	}
}

func TestRemoveListener(t *testing.T) {
	e := progressEngine(t)
	a, b := &recorder{}, &recorder{}
	idA, err := e.AddListener(a)
	require.NoError(t, err)
	_, err = e.AddListener(b)
	require.NoError(t, err)

	e.RemoveListener(idA)
	e.RemoveListener(ListenerID(999))
	_, err = e.FilterSI([]float64{0}, []float64{0}, quantity.Speed)
	require.NoError(t, err)
	assert.Empty(t, a.events)
	assert.Len(t, b.events, 2)

	_, err = e.AddListener(nil)
	assert.ErrorIs(t, err, ErrNilArgument)
}

func TestListenerFuncCanManageListeners(t *testing.T) {
	e := progressEngine(t)
	var calls int
	var id ListenerID
	id, err := e.AddListener(ListenerFunc(func(ev *Event) {
		calls++
		e.RemoveListener(id)
	}))
	require.NoError(t, err)

	_, err = e.FilterSI([]float64{0, 50}, []float64{0}, quantity.Speed)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEngineInterruptWhenIdle(t *testing.T) {
	e := progressEngine(t)
	e.Interrupt()
	res, err := e.FilterSI([]float64{0}, []float64{0}, quantity.Speed)
	require.NoError(t, err)
	assert.NotNil(t, res, "interrupting an idle engine does not affect the next run")
}

func TestEngineInterruptDuringRun(t *testing.T) {
	e := progressEngine(t)
	var seen []bool
	_, err := e.AddListener(ListenerFunc(func(ev *Event) {
		if len(seen) == 1 {
			ev.Engine().Interrupt()
		}
		seen = append(seen, ev.Interrupted())
	}))
	require.NoError(t, err)

	res, err := e.FilterSI([]float64{0, 50, 100}, []float64{0}, quantity.Speed)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []bool{false, true}, seen)
}

func TestRunStateString(t *testing.T) {
	assert.Equal(t, "completed", RunCompleted.String())
	assert.Equal(t, "interrupted", RunInterrupted.String())
	assert.Equal(t, "RunState(9)", RunState(9).String())
}
