package domain

import (
	"context"
	"log/slog"
)

// City is a monitored city for remote data sources. Location may be nil
// when only the name is known.
type City struct {
	Name     string `yaml:"name" validate:"required"`
	Country  string `yaml:"country" validate:"required"`
	Location *Geo   `yaml:"location,omitempty"`
}

// ResolveCities fills in missing city coordinates with forward geocoding.
// Cities that already have coordinates are kept as-is. A city that cannot
// be resolved is dropped with a warning rather than failing the whole list.
// With a nil geocoder, cities lacking coordinates are dropped.
func ResolveCities(ctx context.Context, cities []City, geocoder Geocoder, logger *slog.Logger) []City {
	out := make([]City, 0, len(cities))
	for _, c := range cities {
		if c.Location != nil {
			out = append(out, c)
			continue
		}
		if geocoder == nil {
			logger.Warn("city has no coordinates and geocoding is disabled", "city", c.Name, "country", c.Country)
			continue
		}

		result, err := geocoder.ForwardGeocode(ctx, c.Name, c.Country)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"city", c.Name,
				"country", c.Country,
				"error", err,
			)
			continue
		}
		if result.Lat == 0 && result.Lon == 0 {
			logger.Warn("forward geocoding returned no result", "city", c.Name, "country", c.Country)
			continue
		}
		c.Location = &Geo{Lat: result.Lat, Lon: result.Lon}
		out = append(out, c)
	}
	return out
}
