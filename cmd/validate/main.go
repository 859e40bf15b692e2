// Command validate checks a risk profile and the fixtures produced by genmock
// for internal consistency. It re-scores the raw records with the profile and
// verifies the scored fixture, and optionally the CSV export, match.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dataset city \
//	  -raw-json data/mock/city_raw.json \
//	  -scored-json data/mock/city_scored.json \
//	  -csv data/mock/city_scored.csv
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/couchcryptid/urban-risk-service/internal/config"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/export"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dataset := flag.String("dataset", domain.DatasetCity, "dataset the fixtures were generated for")
	profilePath := flag.String("profile", "", "risk profile YAML (defaults to the built-in profile)")
	rawJSON := flag.String("raw-json", "", "path to the raw records JSON fixture")
	scoredJSON := flag.String("scored-json", "", "path to the scored snapshot JSON fixture")
	csvPath := flag.String("csv", "", "optional path to the scored CSV export")
	flag.Parse()

	if *rawJSON == "" || *scoredJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dataset, *profilePath, *rawJSON, *scoredJSON, *csvPath); code != 0 {
		os.Exit(code)
	}
}

func run(dataset, profilePath, rawPath, scoredPath, csvPath string) int {
	fmt.Println("=== Urban Risk Fixture Validation ===")
	fmt.Println()

	profile, err := config.ResolveProfile(profilePath, dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load profile: %v\n", err)
		return 1
	}
	schema, _ := domain.SchemaFor(dataset)

	raw, err := loadJSON[[]domain.Record](rawPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load raw JSON: %v\n", err)
		return 1
	}
	snap, err := loadJSON[domain.Snapshot](scoredPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load scored JSON: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateProfile(profile, schema),
		validateRawIntegrity(raw, schema),
		validateScoringParity(profile, schema, raw, &snap),
		validateInvariants(profile, &snap),
	}
	if csvPath != "" {
		phases = append(phases, validateCSV(csvPath, schema, &snap))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d raw JSON, %d scored JSON\n", len(raw), len(snap.Records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// ── Phases ──

func validateProfile(profile *config.Profile, schema domain.Schema) *phase {
	p := &phase{name: "Profile: weights and bins"}
	if err := profile.Validate(); err != nil {
		p.errorf("%v", err)
		return p
	}
	if _, err := domain.NewScorer(schema, profile.Weights, profile.Bins); err != nil {
		p.errorf("%v", err)
	}
	return p
}

func validateRawIntegrity(raw []domain.Record, schema domain.Schema) *phase {
	p := &phase{name: "Raw fixture: schema conformance"}
	if len(raw) == 0 {
		p.errorf("raw fixture is empty")
		return p
	}
	_, dropped := domain.Sanitize(raw, schema)
	for reason, n := range dropped {
		p.errorf("%d records would be dropped (%s)", n, reason)
	}
	return p
}

func validateScoringParity(profile *config.Profile, schema domain.Schema, raw []domain.Record, snap *domain.Snapshot) *phase {
	p := &phase{name: "Scored fixture: matches re-scoring"}

	scorer, err := domain.NewScorer(schema, profile.Weights, profile.Bins)
	if err != nil {
		p.errorf("build scorer: %v", err)
		return p
	}
	clean, _ := domain.Sanitize(raw, schema)
	rescored, err := scorer.ScoreBatch(clean)
	if err != nil {
		p.errorf("score raw fixture: %v", err)
		return p
	}

	if snap.Dataset != schema.Dataset {
		p.errorf("dataset: got %q, want %q", snap.Dataset, schema.Dataset)
	}
	if !slices.Equal(snap.Labels, profile.Bins.Labels()) {
		p.errorf("labels: got %v, want %v", snap.Labels, profile.Bins.Labels())
	}
	if len(rescored) != len(snap.Records) {
		p.errorf("count: re-scored %d, fixture %d", len(rescored), len(snap.Records))
		return p
	}

	for i := range rescored {
		want, got := &rescored[i], &snap.Records[i]
		if want.ID != got.ID {
			p.errorf("[%d] id: got %q, want %q", i, got.ID, want.ID)
			continue
		}
		if !floatEq(want.RiskScore, got.RiskScore) {
			p.errorf("[%s] score: got %g, want %g", got.ID, got.RiskScore, want.RiskScore)
		}
		if want.RiskLevel != got.RiskLevel || want.RiskRank != got.RiskRank {
			p.errorf("[%s] level: got %s/%d, want %s/%d", got.ID, got.RiskLevel, got.RiskRank, want.RiskLevel, want.RiskRank)
		}
		for m, v := range want.Normalized {
			if !floatEq(v, got.Normalized[m]) {
				p.errorf("[%s] normalized %s: got %g, want %g", got.ID, m, got.Normalized[m], v)
			}
		}
	}
	return p
}

func validateInvariants(profile *config.Profile, snap *domain.Snapshot) *phase {
	p := &phase{name: "Scored fixture: score and level invariants"}
	for i := range snap.Records {
		r := &snap.Records[i]
		if r.RiskScore < 0 || r.RiskScore > domain.MaxScore || math.IsNaN(r.RiskScore) {
			p.errorf("[%s] score %g outside [0, %g]", r.ID, r.RiskScore, domain.MaxScore)
		}
		if level := profile.Bins.Classify(r.RiskScore); level.Label != r.RiskLevel {
			p.errorf("[%s] score %g classified %q, fixture has %q", r.ID, r.RiskScore, level.Label, r.RiskLevel)
		}
		for m, v := range r.Normalized {
			if v < 0 || v > 1 {
				p.errorf("[%s] normalized %s = %g outside [0, 1]", r.ID, m, v)
			}
		}
	}
	return p
}

func validateCSV(path string, schema domain.Schema, snap *domain.Snapshot) *phase {
	p := &phase{name: "CSV export: header and rows"}

	f, err := os.Open(path)
	if err != nil {
		p.errorf("open: %v", err)
		return p
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		p.errorf("read: %v", err)
		return p
	}
	if len(rows) == 0 {
		p.errorf("no header row")
		return p
	}
	if want := export.Header(schema.Metrics); !slices.Equal(rows[0], want) {
		p.errorf("header: got %v, want %v", rows[0], want)
	}
	if got := len(rows) - 1; got != len(snap.Records) {
		p.errorf("rows: got %d, want %d", got, len(snap.Records))
		return p
	}
	for i, row := range rows[1:] {
		if row[0] != snap.Records[i].ID {
			p.errorf("row %d: id %q, want %q", i+1, row[0], snap.Records[i].ID)
		}
		if last := row[len(row)-1]; last != snap.Records[i].RiskLevel {
			p.errorf("row %d: level %q, want %q", i+1, last, snap.Records[i].RiskLevel)
		}
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
