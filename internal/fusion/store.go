package fusion

import (
	"iter"
	"math"
	"slices"
	"sort"
)

// Sample is one stream's value at a (location, time) key.
type Sample struct {
	Stream *DataStream
	Value  float64
}

// Store holds measurements keyed by location, then time, then stream. Both key
// levels are kept sorted so range queries walk keys in ascending order.
// A Store is not safe for concurrent use; Engine serialises access.
type Store struct {
	locations []float64
	series    []*Series
	size      int
}

// Series holds the time-ordered measurements at one location.
type Series struct {
	times   []float64
	samples [][]Sample
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Len is the number of stored values.
func (s *Store) Len() int { return s.size }

// Insert stores v for the given key. NaN values are dropped. A value for an
// existing (location, time, stream) key replaces the previous one. Keys with
// a NaN coordinate cannot be ordered and are dropped as well.
func (s *Store) Insert(x, t float64, stream *DataStream, v float64) {
	if math.IsNaN(v) || math.IsNaN(x) || math.IsNaN(t) {
		return
	}
	i, found := slices.BinarySearch(s.locations, x)
	if !found {
		s.locations = slices.Insert(s.locations, i, x)
		s.series = slices.Insert(s.series, i, &Series{})
	}
	if s.series[i].insert(t, stream, v) {
		s.size++
	}
}

// Locations iterates over locations in [from, to] in ascending order.
func (s *Store) Locations(from, to float64) iter.Seq2[float64, *Series] {
	return func(yield func(float64, *Series) bool) {
		lo, hi := bounds(s.locations, from, to)
		for i := lo; i < hi; i++ {
			if !yield(s.locations[i], s.series[i]) {
				return
			}
		}
	}
}

// PurgeBefore removes every value with a time strictly before t and returns
// the number of values removed. Locations left without data are dropped.
func (s *Store) PurgeBefore(t float64) int {
	removed := 0
	keep := 0
	for i, ser := range s.series {
		removed += ser.purgeBefore(t)
		if len(ser.times) == 0 {
			continue
		}
		s.locations[keep] = s.locations[i]
		s.series[keep] = ser
		keep++
	}
	clear(s.series[keep:])
	s.locations = s.locations[:keep]
	s.series = s.series[:keep]
	s.size -= removed
	return removed
}

// Times iterates over times in [from, to] in ascending order. The yielded
// samples are in stream insertion order and must not be modified.
func (ser *Series) Times(from, to float64) iter.Seq2[float64, []Sample] {
	return func(yield func(float64, []Sample) bool) {
		lo, hi := bounds(ser.times, from, to)
		for i := lo; i < hi; i++ {
			if !yield(ser.times[i], ser.samples[i]) {
				return
			}
		}
	}
}

// Len is the number of distinct times at this location.
func (ser *Series) Len() int { return len(ser.times) }

// insert reports whether a new value was added (false on overwrite).
func (ser *Series) insert(t float64, stream *DataStream, v float64) bool {
	j, found := slices.BinarySearch(ser.times, t)
	if !found {
		ser.times = slices.Insert(ser.times, j, t)
		ser.samples = slices.Insert(ser.samples, j, []Sample{{Stream: stream, Value: v}})
		return true
	}
	for k := range ser.samples[j] {
		if ser.samples[j][k].Stream == stream {
			ser.samples[j][k].Value = v
			return false
		}
	}
	ser.samples[j] = append(ser.samples[j], Sample{Stream: stream, Value: v})
	return true
}

func (ser *Series) purgeBefore(t float64) int {
	n := sort.SearchFloat64s(ser.times, t)
	if n == 0 {
		return 0
	}
	removed := 0
	for _, samples := range ser.samples[:n] {
		removed += len(samples)
	}
	ser.times = slices.Delete(ser.times, 0, n)
	ser.samples = slices.Delete(ser.samples, 0, n)
	return removed
}

// bounds returns the index range of keys within [from, to].
func bounds(keys []float64, from, to float64) (int, int) {
	if from > to || math.IsNaN(from) || math.IsNaN(to) {
		return 0, 0
	}
	lo := sort.SearchFloat64s(keys, from)
	hi := sort.Search(len(keys), func(i int) bool { return keys[i] > to })
	return lo, hi
}
