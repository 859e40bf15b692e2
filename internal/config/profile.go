package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Profile is the risk model for one dataset: metric weights, level bins, and
// the city list used by remote sources.
type Profile struct {
	Dataset string         `yaml:"dataset" validate:"required,oneof=city traffic air_quality energy"`
	Weights domain.Weights `yaml:"weights" validate:"required,min=1,dive,keys,required,endkeys,gte=0,lte=1"`
	Bins    domain.Bins    `yaml:"bins" validate:"required,min=1,dive"`
	Cities  []domain.City  `yaml:"cities,omitempty" validate:"omitempty,dive"`
}

var profileValidate = validator.New()

// LoadProfile reads a YAML profile from path and validates it.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read risk profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile. Unknown fields are
// rejected so a misspelled key does not silently fall back to defaults.
func ParseProfile(data []byte) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode risk profile: %v", domain.ErrConfiguration, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile's shape, then the scoring rules the domain
// enforces: weights summing to one over schema metrics and well-formed bins.
func (p *Profile) Validate() error {
	if err := profileValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: risk profile: %s", domain.ErrConfiguration, describe(verrs))
		}
		return fmt.Errorf("%w: risk profile: %v", domain.ErrConfiguration, err)
	}
	schema, ok := domain.SchemaFor(p.Dataset)
	if !ok {
		return fmt.Errorf("%w: unknown dataset %q", domain.ErrConfiguration, p.Dataset)
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if err := p.Weights.ValidateAgainst(schema); err != nil {
		return err
	}
	return p.Bins.Validate()
}

// Scorer builds the domain scorer for the profile's dataset.
func (p *Profile) Scorer() (*domain.Scorer, error) {
	schema, ok := domain.SchemaFor(p.Dataset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown dataset %q", domain.ErrConfiguration, p.Dataset)
	}
	return domain.NewScorer(schema, p.Weights, p.Bins)
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ResolveProfile returns the profile at path, or the built-in profile for
// dataset when path is empty. A file profile must name the same dataset.
func ResolveProfile(path, dataset string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(dataset)
	}
	p, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	if p.Dataset != dataset {
		return nil, fmt.Errorf("%w: profile dataset %q does not match DATASET %q", domain.ErrConfiguration, p.Dataset, dataset)
	}
	return p, nil
}

// DefaultProfile returns the built-in profile for a dataset.
func DefaultProfile(dataset string) (*Profile, error) {
	weights, ok := defaultWeights[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dataset %q", domain.ErrConfiguration, dataset)
	}
	p := &Profile{
		Dataset: dataset,
		Weights: make(domain.Weights, len(weights)),
		Bins:    domain.DefaultBins(),
	}
	for k, v := range weights {
		p.Weights[k] = v
	}
	if dataset == domain.DatasetAirQuality {
		p.Cities = DefaultCities()
	}
	return p, nil
}

var defaultWeights = map[string]domain.Weights{
	domain.DatasetCity: {
		domain.MetricPM25:            0.4,
		domain.MetricAQI:             0.3,
		domain.MetricCongestionLevel: 0.3,
	},
	domain.DatasetTraffic: {
		domain.MetricCongestionLevel: 0.6,
		domain.MetricVehicleCount:    0.4,
	},
	domain.DatasetAirQuality: {
		domain.MetricPM25: 0.5,
		domain.MetricNO2:  0.3,
		domain.MetricO3:   0.2,
	},
	domain.DatasetEnergy: {
		domain.MetricEnergyKWh:  0.6,
		domain.MetricPeakLoadKW: 0.4,
	},
}

// DefaultCities returns the cities monitored by the remote air quality source.
func DefaultCities() []domain.City {
	return []domain.City{
		{Name: "Addis Ababa", Country: "Ethiopia", Location: &domain.Geo{Lat: 9.03, Lon: 38.74}},
		{Name: "Dire Dawa", Country: "Ethiopia", Location: &domain.Geo{Lat: 9.60, Lon: 41.85}},
		{Name: "Nairobi", Country: "Kenya", Location: &domain.Geo{Lat: -1.29, Lon: 36.82}},
		{Name: "Mombasa", Country: "Kenya", Location: &domain.Geo{Lat: -4.04, Lon: 39.67}},
		{Name: "Lagos", Country: "Nigeria", Location: &domain.Geo{Lat: 6.52, Lon: 3.38}},
		{Name: "Accra", Country: "Ghana", Location: &domain.Geo{Lat: 5.60, Lon: -0.19}},
		{Name: "Cairo", Country: "Egypt", Location: &domain.Geo{Lat: 30.04, Lon: 31.24}},
	}
}
