package openmeteo

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Source implements pipeline.Source by fetching every configured city
// concurrently. A city whose fetch fails is excluded from the batch and
// counted in Batch.Failed; it never aborts the refresh.
type Source struct {
	fetcher     CityFetcher
	cities      []domain.City
	timeout     time.Duration
	concurrency int
	schema      domain.Schema
	logger      *slog.Logger
}

// NewSource creates a Source. timeout bounds each city request and
// concurrency bounds how many run at once.
func NewSource(fetcher CityFetcher, cities []domain.City, timeout time.Duration, concurrency int, logger *slog.Logger) *Source {
	if concurrency <= 0 {
		concurrency = 1
	}
	schema, _ := domain.SchemaFor(domain.DatasetAirQuality)
	return &Source{
		fetcher:     fetcher,
		cities:      cities,
		timeout:     timeout,
		concurrency: concurrency,
		schema:      schema,
		logger:      logger,
	}
}

// Fetch returns one record per city that could be fetched, in city order.
func (s *Source) Fetch(ctx context.Context) (domain.Batch, error) {
	results := make([]*domain.Record, len(s.cities))
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, city := range s.cities {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			rec, err := s.fetcher.FetchCity(fetchCtx, city)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("city fetch failed, excluding from batch", "city", city.Name, "country", city.Country, "error", err)
				return nil
			}
			results[i] = &rec
			return nil
		})
	}
	_ = g.Wait() // per-city failures are counted, never returned

	if err := ctx.Err(); err != nil {
		return domain.Batch{}, err
	}

	records := make([]domain.Record, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return domain.Batch{Schema: s.schema, Records: records, Failed: int(failed.Load())}, nil
}
