package domain

import (
	"fmt"
	"math"
	"strings"
)

// MaxScore is the upper end of the risk score range.
const MaxScore = 100.0

// Bin is a right-closed score interval ending at UpperBound.
type Bin struct {
	UpperBound float64 `json:"upper_bound" yaml:"upper_bound"`
	Label      string  `json:"label" yaml:"label" validate:"required"`
}

// Bins is an ordered list of bins with strictly increasing upper bounds.
type Bins []Bin

// Level is the outcome of classifying a score.
type Level struct {
	Label string
	Rank  int
}

// DefaultBins returns the four-level scale Low < Medium < High < Critical.
func DefaultBins() Bins {
	return Bins{
		{UpperBound: 30, Label: "Low"},
		{UpperBound: 60, Label: "Medium"},
		{UpperBound: 80, Label: "High"},
		{UpperBound: 100, Label: "Critical"},
	}
}

// Validate checks that bounds are finite and strictly increasing, the last
// bound covers MaxScore, and labels are non-empty and unique.
func (b Bins) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("%w: bins are empty", ErrConfiguration)
	}
	seen := make(map[string]bool, len(b))
	for i, bin := range b {
		if math.IsNaN(bin.UpperBound) || math.IsInf(bin.UpperBound, 0) {
			return fmt.Errorf("%w: bin %d bound is not finite", ErrConfiguration, i)
		}
		label := strings.TrimSpace(bin.Label)
		if label == "" {
			return fmt.Errorf("%w: bin %d has an empty label", ErrConfiguration, i)
		}
		if seen[label] {
			return fmt.Errorf("%w: duplicate bin label %q", ErrConfiguration, label)
		}
		seen[label] = true
		if i > 0 && bin.UpperBound <= b[i-1].UpperBound {
			return fmt.Errorf("%w: bin bounds not strictly increasing at %d (%g <= %g)",
				ErrConfiguration, i, bin.UpperBound, b[i-1].UpperBound)
		}
	}
	if last := b[len(b)-1].UpperBound; last < MaxScore {
		return fmt.Errorf("%w: last bin bound %g does not cover %g", ErrConfiguration, last, MaxScore)
	}
	return nil
}

// Classify returns the first bin whose upper bound is >= score. Scores above
// the last bound are clamped into the last bin.
func (b Bins) Classify(score float64) Level {
	if len(b) == 0 {
		return Level{Rank: -1}
	}
	for i, bin := range b {
		if score <= bin.UpperBound {
			return Level{Label: bin.Label, Rank: i}
		}
	}
	last := len(b) - 1
	return Level{Label: b[last].Label, Rank: last}
}

// Labels returns the bin labels in rank order.
func (b Bins) Labels() []string {
	out := make([]string, len(b))
	for i, bin := range b {
		out[i] = bin.Label
	}
	return out
}
