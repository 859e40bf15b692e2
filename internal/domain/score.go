package domain

import (
	"fmt"
	"math"
	"sort"
)

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 1e-6

// Weights maps metric names to non-negative weights summing to 1.0.
type Weights map[string]float64

// Validate checks that the weights are non-empty, finite, non-negative and
// sum to 1.0 within WeightTolerance.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: weights are empty", ErrConfiguration)
	}
	var sum float64
	for _, m := range w.Metrics() {
		v := w[m]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weight for %q is not finite", ErrConfiguration, m)
		}
		if v < 0 {
			return fmt.Errorf("%w: weight for %q is negative (%g)", ErrConfiguration, m, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %g, want 1.0", ErrConfiguration, sum)
	}
	return nil
}

// ValidateAgainst checks that every weighted metric is declared by the schema.
func (w Weights) ValidateAgainst(s Schema) error {
	for _, m := range w.Metrics() {
		if !s.Has(m) {
			return fmt.Errorf("%w: weight references metric %q unknown to dataset %q", ErrConfiguration, m, s.Dataset)
		}
	}
	return nil
}

// Metrics returns the weighted metric names in sorted order so that summation
// order, and therefore the floating-point result, is stable.
func (w Weights) Metrics() []string {
	names := make([]string, 0, len(w))
	for m := range w {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Score computes 100 * Σ weight[m] * normalized[m]. The result is clamped to
// [0, 100] to absorb the weight-sum tolerance. A weighted metric missing from
// normalized, or a non-finite total, is a configuration error.
func Score(normalized map[string]float64, w Weights) (float64, error) {
	var total float64
	for _, m := range w.Metrics() {
		n, ok := normalized[m]
		if !ok {
			return 0, fmt.Errorf("%w: metric %q is weighted but absent from record", ErrConfiguration, m)
		}
		total += w[m] * n
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: weighted score is not finite", ErrConfiguration)
	}
	return clamp(100*total, 0, 100), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
