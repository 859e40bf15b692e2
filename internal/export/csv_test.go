package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader(t *testing.T) {
	assert.Equal(t,
		[]string{"id", "category", "pm2_5", "no2", "o3", "risk_score", "risk_level"},
		Header([]string{domain.MetricPM25, domain.MetricNO2, domain.MetricO3}),
	)
}

func TestWriteCSV(t *testing.T) {
	records := []domain.ScoredRecord{
		{
			Record: domain.Record{
				ID:       "addis",
				Category: "Ethiopia",
				Metrics:  map[string]float64{domain.MetricPM25: 48.256, domain.MetricAQI: 120},
			},
			RiskScore: 66.6666,
			RiskLevel: "High",
		},
		{
			Record: domain.Record{
				ID:       "site, north", // needs quoting
				Category: "Kenya",
				Metrics:  map[string]float64{domain.MetricPM25: 0.004},
			},
			RiskScore: 0,
			RiskLevel: "Low",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{domain.MetricPM25, domain.MetricAQI}, records))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"id", "category", "pm2_5", "aqi", "risk_score", "risk_level"}, rows[0])
	assert.Equal(t, []string{"addis", "Ethiopia", "48.26", "120.00", "66.67", "High"}, rows[1])
	assert.Equal(t, []string{"site, north", "Kenya", "0.00", "", "0.00", "Low"}, rows[2])
}

func TestWriteCSV_HeaderOnlyForEmptyView(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{domain.MetricEnergyKWh}, nil))
	assert.Equal(t, "id,category,energy_kwh,risk_score,risk_level\n", buf.String())
}
