// Package export renders scored records as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
)

// Precision is the number of decimal places written for numeric columns.
const Precision = 2

// Header returns the CSV header for a dataset schema:
// id, category, each schema metric in order, risk_score, risk_level.
func Header(metrics []string) []string {
	header := make([]string, 0, len(metrics)+4)
	header = append(header, "id", "category")
	header = append(header, metrics...)
	return append(header, "risk_score", "risk_level")
}

// WriteCSV writes the header row followed by one row per record. A metric
// absent from a record is written as an empty cell.
func WriteCSV(w io.Writer, metrics []string, records []domain.ScoredRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(metrics)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, 0, len(metrics)+4)
	for i := range records {
		rec := &records[i]
		row = row[:0]
		row = append(row, rec.ID, rec.Category)
		for _, m := range metrics {
			v, ok := rec.Metrics[m]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(rec.RiskScore), rec.RiskLevel)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %q: %w", rec.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', Precision, 64)
}
