package domain

import (
	"fmt"
	"math"
)

// Normalize min-max rescales each named metric across the batch and returns
// one map of normalized values per record, index-aligned with records. Raw
// values are not modified.
//
// A metric with zero variance across the batch, including a batch of one,
// normalizes to 0 for every record. Results stay in [0, 1] for any finite
// input, including spans wider than math.MaxFloat64.
func Normalize(records []Record, metrics []string) ([]map[string]float64, error) {
	out := make([]map[string]float64, len(records))
	for i := range out {
		out[i] = make(map[string]float64, len(metrics))
	}
	if len(records) == 0 {
		return out, nil
	}

	for _, m := range metrics {
		lo, hi, err := metricBounds(records, m)
		if err != nil {
			return nil, err
		}
		for i := range records {
			out[i][m] = rescale(records[i].Metrics[m], lo, hi)
		}
	}
	return out, nil
}

// metricBounds returns the batch minimum and maximum of a metric.
func metricBounds(records []Record, metric string) (float64, float64, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range records {
		v, ok := records[i].Metrics[metric]
		if !ok {
			return 0, 0, fmt.Errorf("%w: record %q has no metric %q", ErrConfiguration, records[i].ID, metric)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, fmt.Errorf("%w: record %q metric %q is not finite", ErrConfiguration, records[i].ID, metric)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi, nil
}

// rescale maps v from [lo, hi] onto [0, 1]. When hi-lo overflows, the
// operands are halved first; halving is exact for normal floats.
func rescale(v, lo, hi float64) float64 {
	span := hi - lo
	if span == 0 {
		return 0
	}
	n := (v - lo) / span
	if math.IsInf(span, 0) {
		n = (v/2 - lo/2) / (hi/2 - lo/2)
	}
	return math.Max(0, math.Min(1, n))
}
