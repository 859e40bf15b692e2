package mapbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/urban-risk-service/internal/cache"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache. City
// coordinates do not change, so entries never expire.
type CachedGeocoder struct {
	inner domain.Geocoder
	cache *cache.LRU[domain.GeocodingResult]
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		cache: cache.New[domain.GeocodingResult](maxEntries, 0, nil),
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, name, country string) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("fwd:%s|%s", strings.ToLower(name), strings.ToLower(country))
	if result, ok := c.cache.Get(key); ok {
		return result, nil
	}
	result, err := c.inner.ForwardGeocode(ctx, name, country)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if result.FormattedAddress != "" {
		c.cache.Put(key, result)
	}
	return result, nil
}
