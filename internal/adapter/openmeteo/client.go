// Package openmeteo fetches current air quality readings per city from the
// Open-Meteo air quality API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
)

// CityFetcher returns the current reading for one city as a Record.
type CityFetcher interface {
	FetchCity(ctx context.Context, city domain.City) (domain.Record, error)
}

// currentVariables are the pollutants requested, in the order of the
// air_quality schema.
const currentVariables = "pm2_5,nitrogen_dioxide,ozone"

// Open-Meteo reports current time in ISO-8601 without seconds or zone (GMT).
const timeLayout = "2006-01-02T15:04"

// Client implements CityFetcher using the Open-Meteo air quality API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. The timeout bounds each request.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// FetchCity requests the current pm2_5, nitrogen dioxide, and ozone levels at
// the city's coordinates. Any transport failure, non-2xx status, or reading
// with a missing value wraps domain.ErrDataSource.
func (c *Client) FetchCity(ctx context.Context, city domain.City) (domain.Record, error) {
	if city.Location == nil {
		return domain.Record{}, fmt.Errorf("%w: city %q has no coordinates", domain.ErrDataSource, city.Name)
	}

	params := url.Values{
		"latitude":  {strconv.FormatFloat(city.Location.Lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(city.Location.Lon, 'f', 4, 64)},
		"current":   {currentVariables},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Record{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return domain.Record{}, fmt.Errorf("%w: air quality request for %q: %w", domain.ErrDataSource, city.Name, err)
	}
	defer resp.Body.Close()

	rec, err := decodeRecord(resp, city)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return domain.Record{}, err
	}
	c.metrics.FetchRequests.WithLabelValues("success").Inc()
	c.logger.Debug("fetched air quality", "city", city.Name, "duration", time.Since(start))
	return rec, nil
}

func decodeRecord(resp *http.Response, city domain.City) (domain.Record, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Record{}, fmt.Errorf("%w: open-meteo status %d for %q: %s", domain.ErrDataSource, resp.StatusCode, city.Name, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Record{}, fmt.Errorf("%w: decode response for %q: %w", domain.ErrDataSource, city.Name, err)
	}
	cur := payload.Current
	if cur.PM25 == nil || cur.NO2 == nil || cur.O3 == nil {
		return domain.Record{}, fmt.Errorf("%w: incomplete reading for %q", domain.ErrDataSource, city.Name)
	}

	observed, err := time.Parse(timeLayout, cur.Time)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: parse time %q for %q: %w", domain.ErrDataSource, cur.Time, city.Name, err)
	}

	loc := *city.Location
	return domain.Record{
		ID:       RecordID(city),
		Category: city.Country,
		Metrics: map[string]float64{
			domain.MetricPM25: *cur.PM25,
			domain.MetricNO2:  *cur.NO2,
			domain.MetricO3:   *cur.O3,
		},
		Location:   &loc,
		ObservedAt: observed.UTC(),
	}, nil
}

// RecordID derives a stable record id from the city name and country, so
// same-named cities in different countries stay distinct.
func RecordID(city domain.City) string {
	id := slug(city.Name)
	if country := slug(city.Country); country != "" {
		id += "-" + country
	}
	return id
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// Open-Meteo API response types.

type response struct {
	Current current `json:"current"`
}

type current struct {
	Time string   `json:"time"`
	PM25 *float64 `json:"pm2_5"`
	NO2  *float64 `json:"nitrogen_dioxide"`
	O3   *float64 `json:"ozone"`
}
