// Package testutil provides shared test helpers for gridded filter output.
package testutil

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// GridsApproxEqual reports whether two grids match within the relative
// fraction and absolute margin. NaN cells must line up.
func GridsApproxEqual(want, got [][]float64, fraction, margin float64) bool {
	return cmp.Equal(want, got, cmpopts.EquateNaNs(), cmpopts.EquateApprox(fraction, margin))
}

// AssertGridsApprox fails the test with a cell diff when the grids differ.
func AssertGridsApprox(t testing.TB, want, got [][]float64, fraction, margin float64) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs(), cmpopts.EquateApprox(fraction, margin)); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}

// AssertAllNaN fails the test if any cell of g holds a number.
func AssertAllNaN(t testing.TB, g [][]float64) {
	t.Helper()
	for i, row := range g {
		for j, v := range row {
			if !math.IsNaN(v) {
				t.Errorf("cell [%d][%d] = %v, want NaN", i, j, v)
			}
		}
	}
}

// ConstGrid returns an nx by nt grid filled with v.
func ConstGrid(nx, nt int, v float64) [][]float64 {
	g := make([][]float64, nx)
	for i := range g {
		g[i] = make([]float64, nt)
		for j := range g[i] {
			g[i][j] = v
		}
	}
	return g
}
