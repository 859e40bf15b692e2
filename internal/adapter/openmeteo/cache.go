package openmeteo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/cache"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedFetcher wraps a CityFetcher with a TTL cache. Keys combine the city
// with the current time bucket, so a reading is reused only within the
// bucket it was fetched in and never past its expiry.
type CachedFetcher struct {
	inner   CityFetcher
	cache   *cache.LRU[domain.Record]
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator. A nil clock uses the real clock.
func NewCachedFetcher(inner CityFetcher, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedFetcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedFetcher{
		inner:   inner,
		cache:   cache.New[domain.Record](maxEntries, ttl, clock),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedFetcher) FetchCity(ctx context.Context, city domain.City) (domain.Record, error) {
	key := c.key(city)
	if rec, ok := c.cache.Get(key); ok {
		c.metrics.FetchCache.WithLabelValues("hit").Inc()
		return rec, nil
	}
	c.metrics.FetchCache.WithLabelValues("miss").Inc()

	rec, err := c.inner.FetchCity(ctx, city)
	if err != nil {
		return rec, err
	}
	c.cache.Put(key, rec)
	return rec, nil
}

func (c *CachedFetcher) key(city domain.City) string {
	var bucket int64
	if c.ttl > 0 {
		bucket = c.clock.Now().UTC().Truncate(c.ttl).Unix()
	}
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(city.Name), strings.ToLower(city.Country), bucket)
}
