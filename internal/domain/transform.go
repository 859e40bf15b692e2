package domain

import (
	"fmt"
	"math"
	"strings"
)

// Drop reasons reported by Sanitize.
const (
	DropMissingID      = "missing_id"
	DropDuplicateID    = "duplicate_id"
	DropMissingMetric  = "missing_metric"
	DropNonFiniteValue = "non_finite_value"
)

// Scorer turns a batch of records into scored records using fixed weights
// and bins. It holds no mutable state; the same input always yields the same
// output.
type Scorer struct {
	schema  Schema
	weights Weights
	bins    Bins
}

// NewScorer validates the weights against the schema and the bins, and
// returns a Scorer. All failures wrap ErrConfiguration.
func NewScorer(schema Schema, weights Weights, bins Bins) (*Scorer, error) {
	if len(schema.Metrics) == 0 {
		return nil, fmt.Errorf("%w: dataset %q declares no metrics", ErrConfiguration, schema.Dataset)
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := weights.ValidateAgainst(schema); err != nil {
		return nil, err
	}
	if err := bins.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{schema: schema, weights: weights, bins: bins}, nil
}

// Schema returns the dataset schema the scorer was built for.
func (s *Scorer) Schema() Schema { return s.schema }

// Labels returns the ordered risk level labels.
func (s *Scorer) Labels() []string { return s.bins.Labels() }

// ScoreBatch normalizes the weighted metrics across the batch, scores each
// record and classifies the score. The input records are not modified.
func (s *Scorer) ScoreBatch(records []Record) ([]ScoredRecord, error) {
	normalized, err := Normalize(records, s.weights.Metrics())
	if err != nil {
		return nil, err
	}

	out := make([]ScoredRecord, len(records))
	for i := range records {
		score, err := Score(normalized[i], s.weights)
		if err != nil {
			return nil, fmt.Errorf("score record %q: %w", records[i].ID, err)
		}
		level := s.bins.Classify(score)
		out[i] = ScoredRecord{
			Record:     records[i],
			Normalized: normalized[i],
			RiskScore:  score,
			RiskLevel:  level.Label,
			RiskRank:   level.Rank,
		}
	}
	return out, nil
}

// Snapshot scores a batch and wraps the result with its labels and a
// timestamp from the package clock. An empty batch returns ErrEmptyBatch.
func (s *Scorer) Snapshot(records []Record, dropped int) (*Snapshot, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	scored, err := s.ScoreBatch(records)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Dataset:     s.schema.Dataset,
		Schema:      s.schema.Metrics,
		Labels:      s.bins.Labels(),
		Records:     scored,
		Dropped:     dropped,
		GeneratedAt: clock.Now().UTC(),
	}, nil
}

// Sanitize drops records that cannot be scored under the schema: blank or
// duplicate IDs, missing schema metrics, and non-finite values. It returns the
// kept records in input order and a count per drop reason.
func Sanitize(records []Record, schema Schema) ([]Record, map[string]int) {
	kept := make([]Record, 0, len(records))
	dropped := make(map[string]int)
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		reason := dropReason(rec, schema, seen)
		if reason != "" {
			dropped[reason]++
			continue
		}
		seen[rec.ID] = true
		kept = append(kept, rec)
	}
	return kept, dropped
}

func dropReason(rec Record, schema Schema, seen map[string]bool) string {
	if strings.TrimSpace(rec.ID) == "" {
		return DropMissingID
	}
	if seen[rec.ID] {
		return DropDuplicateID
	}
	for _, m := range schema.Metrics {
		v, ok := rec.Metrics[m]
		if !ok {
			return DropMissingMetric
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return DropNonFiniteValue
		}
	}
	return ""
}
