package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
	"github.com/couchcryptid/urban-risk-service/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	batches []domain.Batch
	err     error
	calls   atomic.Int64
}

func (m *mockSource) Fetch(_ context.Context) (domain.Batch, error) {
	i := int(m.calls.Add(1) - 1)
	if m.err != nil {
		return domain.Batch{}, m.err
	}
	if i >= len(m.batches) {
		return m.batches[len(m.batches)-1], nil
	}
	return m.batches[i], nil
}

// blockingSource parks inside Fetch until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
	batch   domain.Batch
}

func (b *blockingSource) Fetch(ctx context.Context) (domain.Batch, error) {
	close(b.entered)
	select {
	case <-b.release:
		return b.batch, nil
	case <-ctx.Done():
		return domain.Batch{}, ctx.Err()
	}
}

type mockLoader struct {
	mu     sync.Mutex
	loaded [][]domain.ScoredRecord
	err    error
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.ScoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, records)
	return nil
}

func (m *mockLoader) batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func citySchema() domain.Schema {
	s, _ := domain.SchemaFor(domain.DatasetCity)
	return s
}

func cityRecord(id, country string, pm25 float64) domain.Record {
	return domain.Record{
		ID:       id,
		Category: country,
		Metrics: map[string]float64{
			domain.MetricPM25:            pm25,
			domain.MetricAQI:             pm25 * 2,
			domain.MetricCongestionLevel: 0.5,
		},
	}
}

// pm25Scorer weights pm2_5 only so scores are easy to reason about.
func pm25Scorer(t *testing.T) *domain.Scorer {
	t.Helper()
	s, err := domain.NewScorer(citySchema(), domain.Weights{domain.MetricPM25: 1}, domain.DefaultBins())
	require.NoError(t, err)
	return s
}

func threeCityBatch() domain.Batch {
	return domain.Batch{
		Schema: citySchema(),
		Records: []domain.Record{
			cityRecord("nairobi", "Kenya", 10),
			cityRecord("addis", "Ethiopia", 20),
			cityRecord("mombasa", "Kenya", 30),
		},
	}
}

func newPipeline(t *testing.T, src pipeline.Source, loader pipeline.BatchLoader) *pipeline.Pipeline {
	t.Helper()
	return pipeline.New(src, pm25Scorer(t), loader, discardLogger(), newTestMetrics(), pipeline.Settings{
		RefreshInterval: 20 * time.Millisecond,
		HistorySeed:     42,
		HistoryPoints:   7,
	})
}

// --- tests ---

func TestPipeline_Refresh_EndToEnd(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	ldr := &mockLoader{}
	p := newPipeline(t, &mockSource{batches: []domain.Batch{threeCityBatch()}}, ldr)

	require.Error(t, p.CheckReadiness(context.Background()))
	_, err := p.Current()
	require.ErrorIs(t, err, pipeline.ErrNotReady)

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)

	type got struct {
		ID    string
		Score float64
		Level string
	}
	var results []got
	for _, r := range snap.Records {
		results = append(results, got{r.ID, r.RiskScore, r.RiskLevel})
	}
	want := []got{
		{"nairobi", 0, "Low"},
		{"addis", 50, "Medium"},
		{"mombasa", 100, "Critical"},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("scored records mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, fakeClock.Now().Equal(snap.GeneratedAt))
	assert.Equal(t, domain.DefaultBins().Labels(), snap.Labels)
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Equal(t, 1, ldr.batches())

	current, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, snap, current)
}

func TestPipeline_Refresh_Deterministic(t *testing.T) {
	src := &mockSource{batches: []domain.Batch{threeCityBatch()}}
	p := newPipeline(t, src, nil)

	first, err := p.Refresh(context.Background())
	require.NoError(t, err)
	second, err := p.Refresh(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Fatalf("same batch scored differently:\n%s", diff)
	}
}

func TestPipeline_Refresh_EmptyBatch(t *testing.T) {
	empty := domain.Batch{Schema: citySchema(), Records: []domain.Record{}}
	p := newPipeline(t, &mockSource{batches: []domain.Batch{threeCityBatch(), empty}}, nil)

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	// A later empty batch replaces the snapshot; no summary can be computed.
	_, err = p.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyBatch)

	_, err = p.Current()
	require.ErrorIs(t, err, domain.ErrEmptyBatch)
	_, _, err = p.View(domain.NewSelection("Kenya"))
	require.ErrorIs(t, err, domain.ErrEmptyBatch)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Refresh_AllRecordsDropped(t *testing.T) {
	batch := domain.Batch{
		Schema: citySchema(),
		Records: []domain.Record{
			{ID: "", Metrics: map[string]float64{}},
			{ID: "no-metrics", Metrics: map[string]float64{domain.MetricPM25: 1}},
		},
		Failed: 3,
	}
	p := newPipeline(t, &mockSource{batches: []domain.Batch{batch}}, nil)

	_, err := p.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestPipeline_Refresh_DropsInvalidRecords(t *testing.T) {
	batch := threeCityBatch()
	batch.Records = append(batch.Records,
		cityRecord("addis", "Ethiopia", 99), // duplicate id
		domain.Record{ID: "partial", Category: "Ghana", Metrics: map[string]float64{domain.MetricPM25: 5}},
	)
	batch.Failed = 2
	p := newPipeline(t, &mockSource{batches: []domain.Batch{batch}}, nil)

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, 4, snap.Dropped)
}

func TestPipeline_Refresh_SourceErrorKeepsPreviousSnapshot(t *testing.T) {
	src := &mockSource{batches: []domain.Batch{threeCityBatch()}}
	p := newPipeline(t, src, nil)

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)

	src.err = errors.New("upstream unavailable")
	_, err = p.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrDataSource)

	current, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, snap, current)
}

func TestPipeline_Refresh_DatasetMismatch(t *testing.T) {
	energy, _ := domain.SchemaFor(domain.DatasetEnergy)
	batch := domain.Batch{Schema: energy, Records: []domain.Record{{ID: "x"}}}
	p := newPipeline(t, &mockSource{batches: []domain.Batch{batch}}, nil)

	_, err := p.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestPipeline_Refresh_NotReentrant(t *testing.T) {
	src := &blockingSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		batch:   threeCityBatch(),
	}
	p := newPipeline(t, src, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background())
		done <- err
	}()

	<-src.entered
	_, err := p.Refresh(context.Background())
	require.ErrorIs(t, err, pipeline.ErrRefreshInProgress)

	close(src.release)
	require.NoError(t, <-done)
}

func TestPipeline_Refresh_PublishFailureIsNotFatal(t *testing.T) {
	ldr := &mockLoader{err: errors.New("broker down")}
	p := newPipeline(t, &mockSource{batches: []domain.Batch{threeCityBatch()}}, ldr)

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Records, 3)
}

func TestPipeline_View(t *testing.T) {
	p := newPipeline(t, &mockSource{batches: []domain.Batch{threeCityBatch()}}, nil)
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	view, snap, err := p.View(domain.NewSelection("Kenya"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatched, view.Status)
	require.Len(t, view.Records, 2)
	assert.Equal(t, "nairobi", view.Records[0].ID)
	assert.Len(t, snap.Records, 3)

	view, _, err = p.View(domain.NewSelection())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoSelection, view.Status)

	view, _, err = p.View(domain.NewSelection("Egypt"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoMatch, view.Status)
}

func TestPipeline_History(t *testing.T) {
	p := newPipeline(t, &mockSource{batches: []domain.Batch{threeCityBatch()}}, nil)

	_, err := p.History("addis")
	require.ErrorIs(t, err, pipeline.ErrNotReady)

	snap, err := p.Refresh(context.Background())
	require.NoError(t, err)

	series, err := p.History("addis")
	require.NoError(t, err)
	require.Len(t, series, 7)
	assert.True(t, snap.GeneratedAt.Equal(series[6].At))
	assert.InDelta(t, 50.0, series[6].Value, 1e-9)
	for _, pt := range series {
		assert.GreaterOrEqual(t, pt.Value, 0.0)
		assert.LessOrEqual(t, pt.Value, 100.0)
	}

	again, err := p.History("addis")
	require.NoError(t, err)
	assert.Equal(t, series, again)

	_, err = p.History("lagos")
	require.ErrorIs(t, err, pipeline.ErrRecordNotFound)
}

func TestPipeline_Run_RefreshesUntilCancelled(t *testing.T) {
	ldr := &mockLoader{}
	src := &mockSource{batches: []domain.Batch{threeCityBatch()}}
	p := newPipeline(t, src, ldr)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.GreaterOrEqual(t, src.calls.Load(), int64(2))
	assert.GreaterOrEqual(t, ldr.batches(), 2)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	src := &mockSource{batches: []domain.Batch{threeCityBatch()}}
	p := newPipeline(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, src.calls.Load())
}

func TestPipeline_Run_SourceErrorBacksOff(t *testing.T) {
	src := &mockSource{err: errors.New("timeout")}
	p := newPipeline(t, src, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	// 0ms, 200ms: backoff keeps attempts well below a tight loop.
	calls := src.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.LessOrEqual(t, calls, int64(4))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ConfigurationErrorStops(t *testing.T) {
	energy, _ := domain.SchemaFor(domain.DatasetEnergy)
	src := &mockSource{batches: []domain.Batch{{Schema: energy}}}
	p := newPipeline(t, src, nil)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, int64(1), src.calls.Load())
}
