// Package source provides the synthetic data source used when no remote
// provider is configured, and the seeded history generator behind trend
// charts.
package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
)

// Options configures a Synthetic source. Zero values fall back to the
// dataset defaults.
type Options struct {
	Seed       uint64
	Size       int
	Categories []string
	Start      time.Time
}

// DefaultStart is the first observation time of cycle zero.
var DefaultStart = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Synthetic generates reproducible batches. The batch of refresh cycle n is
// a pure function of (seed, n), so two sources built with the same options
// produce identical sequences.
type Synthetic struct {
	schema     domain.Schema
	seed       uint64
	size       int
	categories []string
	start      time.Time
	cycle      atomic.Uint64
}

// NewSynthetic creates a generator for one of the built-in datasets.
func NewSynthetic(dataset string, opts Options) (*Synthetic, error) {
	schema, ok := domain.SchemaFor(dataset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown dataset %q", domain.ErrConfiguration, dataset)
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("%w: synthetic size must be positive, got %d", domain.ErrConfiguration, opts.Size)
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultCategories(dataset)
	}
	start := opts.Start
	if start.IsZero() {
		start = DefaultStart
	}
	return &Synthetic{
		schema:     schema,
		seed:       opts.Seed,
		size:       opts.Size,
		categories: categories,
		start:      start,
	}, nil
}

// DefaultCategories returns the category values each dataset draws from.
func DefaultCategories(dataset string) []string {
	switch dataset {
	case domain.DatasetCity:
		return []string{"Ethiopia", "Kenya", "Nigeria", "Ghana", "Egypt"}
	case domain.DatasetTraffic:
		return []string{"A1", "B2", "C3"}
	case domain.DatasetAirQuality:
		return []string{"Site A", "Site B", "Site C"}
	case domain.DatasetEnergy:
		return []string{"North", "South", "East", "West"}
	default:
		return nil
	}
}

// Schema returns the dataset schema.
func (s *Synthetic) Schema() domain.Schema { return s.schema }

// Fetch generates the next cycle's batch.
func (s *Synthetic) Fetch(ctx context.Context) (domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return domain.Batch{}, err
	}
	cycle := s.cycle.Add(1) - 1
	return s.Generate(cycle), nil
}

// Generate builds the batch for a given cycle without advancing the source.
func (s *Synthetic) Generate(cycle uint64) domain.Batch {
	rng := rand.New(rand.NewPCG(s.seed, cycle))
	step := s.step()
	base := s.start.Add(time.Duration(cycle) * time.Duration(s.size) * step)

	records := make([]domain.Record, s.size)
	for i := range records {
		category := s.categories[rng.IntN(len(s.categories))]
		records[i] = domain.Record{
			ID:         fmt.Sprintf("%s-%04d", slug(category), i+1),
			Category:   category,
			Metrics:    s.metrics(rng),
			Location:   s.location(rng, category),
			ObservedAt: base.Add(time.Duration(i) * step),
		}
	}
	return domain.Batch{Schema: s.schema, Records: records}
}

// step is the spacing between observations: hourly traffic, daily elsewhere.
func (s *Synthetic) step() time.Duration {
	if s.schema.Dataset == domain.DatasetTraffic {
		return time.Hour
	}
	return 24 * time.Hour
}

func (s *Synthetic) metrics(rng *rand.Rand) map[string]float64 {
	switch s.schema.Dataset {
	case domain.DatasetCity:
		pm25 := uniform(rng, 5, 120)
		return map[string]float64{
			domain.MetricPM25:            pm25,
			domain.MetricAQI:             clamp(pm25*1.6+rng.NormFloat64()*10, 0, 500),
			domain.MetricCongestionLevel: rng.Float64(),
		}
	case domain.DatasetTraffic:
		speed := math.Max(5, 45+rng.NormFloat64()*5)
		return map[string]float64{
			domain.MetricVehicleCount:    float64(poisson(rng, 20)),
			domain.MetricAvgSpeedKPH:     speed,
			domain.MetricCongestionLevel: clamp(1-speed/60, 0, 1),
		}
	case domain.DatasetAirQuality:
		return map[string]float64{
			domain.MetricPM25: uniform(rng, 10, 70),
			domain.MetricNO2:  uniform(rng, 5, 30),
			domain.MetricO3:   uniform(rng, 15, 40),
		}
	case domain.DatasetEnergy:
		kwh := uniform(rng, 1000, 5000)
		return map[string]float64{
			domain.MetricEnergyKWh:  kwh,
			domain.MetricPeakLoadKW: kwh / 24 * uniform(rng, 1.2, 2.0),
		}
	default:
		return map[string]float64{}
	}
}

// location places a record near its category's anchor. Traffic roads share
// one bounding box around the city centre.
func (s *Synthetic) location(rng *rand.Rand, category string) *domain.Geo {
	if s.schema.Dataset == domain.DatasetTraffic {
		return &domain.Geo{Lat: uniform(rng, 9.00, 9.10), Lon: uniform(rng, 38.70, 38.80)}
	}
	anchor, ok := anchors[category]
	if !ok {
		anchor = domain.Geo{Lat: 9.05, Lon: 38.75}
	}
	return &domain.Geo{
		Lat: anchor.Lat + uniform(rng, -0.25, 0.25),
		Lon: anchor.Lon + uniform(rng, -0.25, 0.25),
	}
}

var anchors = map[string]domain.Geo{
	"Ethiopia": {Lat: 9.03, Lon: 38.74},
	"Kenya":    {Lat: -1.29, Lon: 36.82},
	"Nigeria":  {Lat: 6.52, Lon: 3.38},
	"Ghana":    {Lat: 5.60, Lon: -0.19},
	"Egypt":    {Lat: 30.04, Lon: 31.24},
	"Site A":   {Lat: 9.01, Lon: 38.76},
	"Site B":   {Lat: 9.06, Lon: 38.71},
	"Site C":   {Lat: 9.09, Lon: 38.79},
	"North":    {Lat: 9.10, Lon: 38.75},
	"South":    {Lat: 8.98, Lon: 38.75},
	"East":     {Lat: 9.04, Lon: 38.82},
	"West":     {Lat: 9.04, Lon: 38.68},
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// poisson draws from a Poisson distribution using Knuth's method, which is
// adequate for the small means used here.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
