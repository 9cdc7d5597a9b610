package dop

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// OffsetGrid returns the histogram dividers {-inf, -5, -4.5, ..., 4.5, 5,
// +inf} in metres.
func OffsetGrid() []float64 {
	grid := []float64{math.Inf(-1)}
	for i := -10; i <= 10; i++ {
		grid = append(grid, float64(i)/2)
	}
	return append(grid, math.Inf(1))
}

// Histogram counts offsets per axis on the fixed grid. Bin i covers
// [Edges[i], Edges[i+1]).
type Histogram struct {
	Edges []float64
	East  []float64
	North []float64
	Up    []float64
}

// OffsetHistogram bins the offsets of every axis on OffsetGrid. Non-finite
// offsets are ignored.
func OffsetHistogram(offsets []Offset) Histogram {
	grid := OffsetGrid()
	axis := func(get func(Offset) float64) []float64 {
		xs := make([]float64, 0, len(offsets))
		for _, o := range offsets {
			if v := get(o); !math.IsNaN(v) && !math.IsInf(v, 0) {
				xs = append(xs, v)
			}
		}
		slices.Sort(xs)
		return stat.Histogram(nil, grid, xs, nil)
	}
	return Histogram{
		Edges: grid,
		East:  axis(func(o Offset) float64 { return o.E }),
		North: axis(func(o Offset) float64 { return o.N }),
		Up:    axis(func(o Offset) float64 { return o.U }),
	}
}
