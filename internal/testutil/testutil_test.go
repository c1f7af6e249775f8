package testutil

import (
	"math"
	"testing"
)

func TestGridsApproxEqual(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name      string
		want, got [][]float64
		equal     bool
	}{
		{"identical", [][]float64{{1, 2}}, [][]float64{{1, 2}}, true},
		{"within tolerance", [][]float64{{1, 2}}, [][]float64{{1 + 1e-12, 2}}, true},
		{"nan aligned", [][]float64{{nan, 2}}, [][]float64{{nan, 2}}, true},
		{"nan misaligned", [][]float64{{nan, 2}}, [][]float64{{1, 2}}, false},
		{"value differs", [][]float64{{1, 2}}, [][]float64{{1, 3}}, false},
		{"shape differs", [][]float64{{1, 2}}, [][]float64{{1, 2}, {3, 4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GridsApproxEqual(tt.want, tt.got, 1e-9, 1e-9); got != tt.equal {
				t.Errorf("GridsApproxEqual() = %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestAssertAllNaN(t *testing.T) {
	fakeT := &testing.T{}
	AssertAllNaN(fakeT, [][]float64{{math.NaN()}, {math.NaN()}})
	if fakeT.Failed() {
		t.Error("expected no failure for an all-NaN grid")
	}
}

func TestConstGrid(t *testing.T) {
	g := ConstGrid(2, 3, 7)
	if len(g) != 2 || len(g[0]) != 3 || g[1][2] != 7 {
		t.Errorf("ConstGrid(2, 3, 7) = %v", g)
	}
}
