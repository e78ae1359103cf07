// Package binning implements equal-interval ordinal scoring of hazard
// metric distributions. A distribution's strictly positive range is split
// into 5 equal-width bins scored 1-5; zero is a reserved score 0. Edges fit
// on a projected distribution are reused verbatim to score the paired
// historical distribution so that the same raw value maps to the same score
// in either period.
package binning

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/seamark-analytics/climrisk/internal/model"
)

// ErrDegenerate is returned by Fit when a distribution contains no positive
// values, leaving the interval width undefined. Callers score every district
// 0 in that case.
var ErrDegenerate = eris.New("binning: distribution has no positive values")

// ErrConstant is returned by Fit when all positive values are identical, so
// equal-width intervals collapse to zero width. Callers score every positive
// value 1 (the global minimum belongs to bin 1) and every zero 0.
var ErrConstant = eris.New("binning: all positive values are identical")

// Fit computes 5 equal-width bin edges over the values strictly greater
// than zero. Zeros and NaNs are excluded from the range computation; zero
// values always score 0 regardless of the fitted range.
func Fit(values []float64) (model.BinEdges, error) {
	var edges model.BinEdges

	pos := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsNaN(v) {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return edges, ErrDegenerate
	}

	lo := floats.Min(pos)
	hi := floats.Max(pos)
	if lo == hi {
		return edges, ErrConstant
	}

	width := (hi - lo) / model.NumBins
	for i := 0; i <= model.NumBins; i++ {
		edges[i] = lo + width*float64(i)
	}
	// Pin the last edge to the exact maximum rather than accumulated sums.
	edges[model.NumBins] = hi

	if err := edges.Validate(); err != nil {
		return edges, eris.Wrap(err, "binning: fit")
	}
	return edges, nil
}

// Score locates the interval containing value and returns its 1-indexed bin
// number. Interval membership uses an inclusive upper bound, so a boundary
// value belongs to the lower-indexed bin; the global minimum belongs to bin
// 1. Values outside the fitted range are clamped: above the maximum scores
// 5, below the minimum but above zero scores 1. A value of exactly zero
// scores 0 for any edges.
func Score(value float64, edges model.BinEdges) int {
	if value <= 0 {
		return 0
	}
	if value <= edges.Min() {
		return 1
	}
	if value >= edges.Max() {
		return model.NumBins
	}

	// Walk the stored edges rather than dividing by the width: the stored
	// boundaries are what callers persist and report, and recomputing the
	// bin arithmetically can round an exact boundary hit into the upper bin.
	for i := 1; i < model.NumBins; i++ {
		if value <= edges[i] {
			return i
		}
	}
	return model.NumBins
}

// FixedEdges returns equal-width edges spanning [lo, hi]. It is used for
// hazards with a fixed reference range, such as flood coverage over
// [0, 100].
func FixedEdges(lo, hi float64) model.BinEdges {
	var edges model.BinEdges
	width := (hi - lo) / model.NumBins
	for i := 0; i <= model.NumBins; i++ {
		edges[i] = lo + width*float64(i)
	}
	edges[model.NumBins] = hi
	return edges
}
