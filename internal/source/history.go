package source

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// HistoryPoint is one value of a fabricated metric series.
type HistoryPoint struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// HistoryParams describes a trend-plus-noise series ending at End.
type HistoryParams struct {
	Seed   uint64
	Key    string // record id; gives each record its own series
	Base   float64
	Trend  float64 // change per step
	Noise  float64 // standard deviation of the gaussian noise
	Points int
	Step   time.Duration
	End    time.Time
}

// History fabricates a reproducible series: value_i = base + trend*i + noise,
// floored at zero. The same parameters always returns the same series. Nothing is
// retained between calls.
func History(params HistoryParams) []HistoryPoint {
	if params.Points <= 0 {
		return []HistoryPoint{}
	}
	rng := rand.New(rand.NewPCG(params.Seed, keyHash(params.Key)))

	out := make([]HistoryPoint, params.Points)
	first := params.End.Add(-time.Duration(params.Points-1) * params.Step)
	for i := range out {
		v := params.Base + params.Trend*float64(i) + rng.NormFloat64()*params.Noise
		out[i] = HistoryPoint{
			At:    first.Add(time.Duration(i) * params.Step),
			Value: math.Max(0, v),
		}
	}
	return out
}

func keyHash(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// slug lowercases a category and replaces spaces so it can prefix record IDs.
func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}
