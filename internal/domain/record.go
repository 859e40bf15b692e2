package domain

import (
	"slices"
	"time"
)

// Dataset names accepted by configuration.
const (
	DatasetCity       = "city"
	DatasetTraffic    = "traffic"
	DatasetAirQuality = "air_quality"
	DatasetEnergy     = "energy"
)

// Metric names used by the built-in datasets.
const (
	MetricPM25            = "pm2_5"
	MetricAQI             = "aqi"
	MetricCongestionLevel = "congestion_level"
	MetricVehicleCount    = "vehicle_count"
	MetricAvgSpeedKPH     = "avg_speed_kph"
	MetricNO2             = "no2"
	MetricO3              = "o3"
	MetricEnergyKWh       = "energy_kwh"
	MetricPeakLoadKW      = "peak_load_kw"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is one raw observation for a city, road segment, site, or district.
type Record struct {
	ID         string             `json:"id"`
	Category   string             `json:"category"`
	Metrics    map[string]float64 `json:"metrics"`
	Location   *Geo               `json:"location,omitempty"`
	ObservedAt time.Time          `json:"observed_at"`
}

// ScoredRecord is a Record augmented with its normalized metrics, composite
// risk score and ordinal risk level.
type ScoredRecord struct {
	Record

	Normalized map[string]float64 `json:"normalized"`
	RiskScore  float64            `json:"risk_score"`
	RiskLevel  string             `json:"risk_level"`
	RiskRank   int                `json:"risk_rank"`
}

// Schema declares the ordered metric names of a dataset.
type Schema struct {
	Dataset string
	Metrics []string
}

// Has reports whether the schema declares the metric.
func (s Schema) Has(metric string) bool {
	return slices.Contains(s.Metrics, metric)
}

// SchemaFor returns the built-in schema for a dataset name.
func SchemaFor(dataset string) (Schema, bool) {
	switch dataset {
	case DatasetCity:
		return Schema{Dataset: dataset, Metrics: []string{MetricPM25, MetricAQI, MetricCongestionLevel}}, true
	case DatasetTraffic:
		return Schema{Dataset: dataset, Metrics: []string{MetricVehicleCount, MetricAvgSpeedKPH, MetricCongestionLevel}}, true
	case DatasetAirQuality:
		return Schema{Dataset: dataset, Metrics: []string{MetricPM25, MetricNO2, MetricO3}}, true
	case DatasetEnergy:
		return Schema{Dataset: dataset, Metrics: []string{MetricEnergyKWh, MetricPeakLoadKW}}, true
	default:
		return Schema{}, false
	}
}

// Batch is the set of records produced by a data source in one refresh.
// Failed counts records the source could not produce.
type Batch struct {
	Schema  Schema
	Records []Record
	Failed  int
}

// Snapshot is the immutable scored result of one refresh.
type Snapshot struct {
	Dataset     string         `json:"dataset"`
	Schema      []string       `json:"schema"`
	Labels      []string       `json:"labels"`
	Records     []ScoredRecord `json:"records"`
	Dropped     int            `json:"dropped"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Categories returns the distinct categories in first-seen order.
func (s *Snapshot) Categories() []string {
	seen := make(map[string]bool, len(s.Records))
	out := make([]string, 0)
	for i := range s.Records {
		c := s.Records[i].Category
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Find returns the record with the given id.
func (s *Snapshot) Find(id string) (ScoredRecord, bool) {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return s.Records[i], true
		}
	}
	return ScoredRecord{}, false
}
