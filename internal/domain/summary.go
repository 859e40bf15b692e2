package domain

// MetricStats aggregates one metric over a view.
type MetricStats struct {
	Sum  float64 `json:"sum"`
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Summary holds aggregate statistics over a filtered view.
type Summary struct {
	Count       int                    `json:"count"`
	MeanScore   float64                `json:"mean_score"`
	Metrics     map[string]MetricStats `json:"metrics"`
	LevelCounts map[string]int         `json:"level_counts"`
}

// Summarize computes statistics over records for the schema metrics. Every
// label gets a LevelCounts entry, zero included. It returns false for an
// empty input instead of producing means over zero records.
func Summarize(records []ScoredRecord, metrics, labels []string) (Summary, bool) {
	if len(records) == 0 {
		return Summary{}, false
	}

	s := Summary{
		Count:       len(records),
		Metrics:     make(map[string]MetricStats, len(metrics)),
		LevelCounts: make(map[string]int, len(labels)),
	}
	for _, l := range labels {
		s.LevelCounts[l] = 0
	}

	var scoreSum float64
	for i := range records {
		scoreSum += records[i].RiskScore
		s.LevelCounts[records[i].RiskLevel]++
	}
	s.MeanScore = scoreSum / float64(len(records))

	for _, m := range metrics {
		st := MetricStats{Min: records[0].Metrics[m], Max: records[0].Metrics[m]}
		for i := range records {
			v := records[i].Metrics[m]
			st.Sum += v
			st.Min = min(st.Min, v)
			st.Max = max(st.Max, v)
		}
		st.Mean = st.Sum / float64(len(records))
		s.Metrics[m] = st
	}
	return s, true
}
