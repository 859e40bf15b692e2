// Command genmock generates seeded fixtures for tests and demos. It runs the
// synthetic source through the real scoring path so the fixtures match what
// the service would serve for the same seed.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -dataset city -seed 42 -size 50 \
//	  -raw-out data/mock/city_raw.json \
//	  -scored-out data/mock/city_scored.json \
//	  -csv-out data/mock/city_scored.csv
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/config"
	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/export"
	"github.com/couchcryptid/urban-risk-service/internal/source"
	"github.com/jonboulle/clockwork"
)

var generatedAt = time.Date(2025, time.January, 1, 6, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataset := flag.String("dataset", domain.DatasetCity, "dataset to generate (city, traffic, air_quality, energy)")
	seed := flag.Uint64("seed", 42, "generator seed")
	size := flag.Int("size", 50, "records per batch")
	cycle := flag.Uint64("cycle", 0, "refresh cycle to generate")
	profilePath := flag.String("profile", "", "risk profile YAML (defaults to the built-in profile)")
	rawOut := flag.String("raw-out", "", "output path for the raw records JSON fixture")
	scoredOut := flag.String("scored-out", "", "output path for the scored snapshot JSON fixture")
	csvOut := flag.String("csv-out", "", "optional output path for the scored CSV export")
	flag.Parse()

	if *rawOut == "" || *scoredOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -raw-out, -scored-out")
	}

	// Fixed clock for reproducible GeneratedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(generatedAt))
	defer domain.SetClock(nil)

	profile, err := config.ResolveProfile(*profilePath, *dataset)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	scorer, err := profile.Scorer()
	if err != nil {
		return fmt.Errorf("build scorer: %w", err)
	}

	src, err := source.NewSynthetic(*dataset, source.Options{Seed: *seed, Size: *size})
	if err != nil {
		return err
	}
	batch := src.Generate(*cycle)
	log.Printf("%s: generated %d records (seed=%d, cycle=%d)", *dataset, len(batch.Records), *seed, *cycle)

	clean, dropped := domain.Sanitize(batch.Records, batch.Schema)
	droppedTotal := 0
	for _, n := range dropped {
		droppedTotal += n
	}
	snap, err := scorer.Snapshot(clean, droppedTotal)
	if err != nil {
		return fmt.Errorf("score batch: %w", err)
	}

	if err := writeJSON(*rawOut, batch.Records); err != nil {
		return fmt.Errorf("writing raw fixture: %w", err)
	}
	log.Printf("wrote raw fixture: %s", *rawOut)

	if err := writeJSON(*scoredOut, snap); err != nil {
		return fmt.Errorf("writing scored fixture: %w", err)
	}
	log.Printf("wrote scored fixture: %s", *scoredOut)

	if *csvOut != "" {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, batch.Schema.Metrics, snap.Records); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		if err := writeFile(*csvOut, buf.Bytes()); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
		log.Printf("wrote csv export: %s", *csvOut)
	}

	printStats(snap, batch.Schema.Metrics)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

type categoryCount struct {
	category string
	count    int
}

// printStats prints the numbers test assertions are written against.
func printStats(snap *domain.Snapshot, metrics []string) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d (dropped %d)\n", len(snap.Records), snap.Dropped)

	summary, ok := domain.Summarize(snap.Records, metrics, snap.Labels)
	if !ok {
		fmt.Println("Empty snapshot")
		return
	}
	fmt.Printf("Mean score: %.2f\n", summary.MeanScore)
	fmt.Print("By level:")
	for _, label := range snap.Labels {
		fmt.Printf(" %s=%d", label, summary.LevelCounts[label])
	}
	fmt.Println()
	for _, m := range metrics {
		s := summary.Metrics[m]
		fmt.Printf("  %s: sum=%.2f mean=%.2f min=%.2f max=%.2f\n", m, s.Sum, s.Mean, s.Min, s.Max)
	}

	counts := map[string]int{}
	for i := range snap.Records {
		counts[snap.Records[i].Category]++
	}
	cc := make([]categoryCount, 0, len(counts))
	for c, n := range counts {
		cc = append(cc, categoryCount{c, n})
	}
	sort.Slice(cc, func(i, j int) bool {
		if cc[i].count != cc[j].count {
			return cc[i].count > cc[j].count
		}
		return cc[i].category < cc[j].category
	})
	fmt.Printf("Categories (%d):", len(cc))
	for _, c := range cc {
		fmt.Printf(" %s=%d", c.category, c.count)
	}
	fmt.Println()

	printTopRecord(snap)
}

func printTopRecord(snap *domain.Snapshot) {
	var top *domain.ScoredRecord
	for i := range snap.Records {
		if top == nil || snap.Records[i].RiskScore > top.RiskScore {
			top = &snap.Records[i]
		}
	}
	if top == nil {
		return
	}
	fmt.Printf("\nHighest risk record:\n")
	fmt.Printf("  ID: %s\n", top.ID)
	fmt.Printf("  Category: %s\n", top.Category)
	fmt.Printf("  Score: %.2f, Level: %s, Rank: %d\n", top.RiskScore, top.RiskLevel, top.RiskRank)
	if top.Location != nil {
		fmt.Printf("  Lat: %g, Lon: %g\n", top.Location.Lat, top.Location.Lon)
	}
	fmt.Printf("  ObservedAt: %s\n", top.ObservedAt.Format(time.RFC3339))
}
