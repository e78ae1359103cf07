package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// RawMetric is one raw hazard measurement for a district and period. Absent
// marks a district for which no value could be obtained (failed retrieval,
// missing coverage); it is distinct from a measured zero and must never be
// coerced to one implicitly.
type RawMetric struct {
	DistrictID string  `json:"district_id"`
	Hazard     Hazard  `json:"hazard"`
	Period     Period  `json:"period"`
	Value      float64 `json:"value"`
	Absent     bool    `json:"absent,omitempty"`
}

// Metric builds a present RawMetric.
func Metric(districtID string, h Hazard, p Period, value float64) RawMetric {
	return RawMetric{DistrictID: districtID, Hazard: h, Period: p, Value: value}
}

// AbsentMetric builds a RawMetric marking that no value was obtained.
func AbsentMetric(districtID string, h Hazard, p Period) RawMetric {
	return RawMetric{DistrictID: districtID, Hazard: h, Period: p, Absent: true}
}

// MetricTable maps district id to the raw metric for one hazard and period.
type MetricTable map[string]RawMetric

// Values returns the present (non-absent) values in the table.
func (t MetricTable) Values() []float64 {
	vals := make([]float64, 0, len(t))
	for _, m := range t {
		if !m.Absent {
			vals = append(vals, m.Value)
		}
	}
	return vals
}

// ScoreRecord is the scored form of a RawMetric. Score is 0 iff the raw
// value is exactly zero; scores 1-5 are monotonic in the raw value. Absent
// metrics carry through with Absent set and Score 0.
type ScoreRecord struct {
	DistrictID string  `json:"district_id"`
	Hazard     Hazard  `json:"hazard"`
	Period     Period  `json:"period"`
	RawValue   float64 `json:"raw_value"`
	Score      int     `json:"score"`
	Absent     bool    `json:"absent,omitempty"`
}

// BinEdges is the ordered sequence of 6 boundary values defining 5
// equal-width scoring intervals over the non-zero range of a reference
// distribution. Edges are fit once on projected data and reused verbatim for
// the paired historical distribution.
type BinEdges [6]float64

// NumBins is the number of scoring intervals defined by a BinEdges value.
const NumBins = 5

// Min returns the lower bound of the first interval.
func (b BinEdges) Min() float64 { return b[0] }

// Max returns the upper bound of the last interval.
func (b BinEdges) Max() float64 { return b[NumBins] }

// Width returns the common interval width.
func (b BinEdges) Width() float64 { return (b.Max() - b.Min()) / NumBins }

// Validate checks that the edges are strictly ascending and equal-width
// within floating-point tolerance.
func (b BinEdges) Validate() error {
	w := b.Width()
	if !(w > 0) {
		return eris.Errorf("model: bin edges span is not positive (min=%g max=%g)", b.Min(), b.Max())
	}
	tol := w * 1e-9
	for i := 0; i < NumBins; i++ {
		if b[i+1] <= b[i] {
			return eris.Errorf("model: bin edges not ascending at index %d", i)
		}
		if math.Abs((b[i+1]-b[i])-w) > tol {
			return eris.Errorf("model: bin %d width %g differs from %g", i+1, b[i+1]-b[i], w)
		}
	}
	return nil
}
