package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/urban-risk-service/internal/domain"
	"github.com/couchcryptid/urban-risk-service/internal/observability"
	"github.com/couchcryptid/urban-risk-service/internal/source"
)

var (
	// ErrRefreshInProgress is returned when Refresh is called while another
	// refresh is still running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrNotReady is returned before the first refresh has completed.
	ErrNotReady = errors.New("no snapshot available yet")
	// ErrRecordNotFound is returned when a record id is not in the current snapshot.
	ErrRecordNotFound = errors.New("record not found")
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Source produces the raw batch for one refresh.
type Source interface {
	Fetch(ctx context.Context) (domain.Batch, error)
}

// BatchLoader writes scored records to a downstream sink.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.ScoredRecord) error
}

// Settings tunes the refresh loop and the history series.
type Settings struct {
	RefreshInterval time.Duration
	HistorySeed     uint64
	HistoryPoints   int
}

// state is what readers observe: the latest snapshot, or the reason there is
// none. It is replaced as a whole and never modified after publication.
type state struct {
	snapshot *domain.Snapshot
	err      error
}

// Pipeline orchestrates the fetch-sanitize-score-publish cycle and holds the
// current snapshot for readers.
type Pipeline struct {
	source   Source
	scorer   *domain.Scorer
	loader   BatchLoader
	logger   *slog.Logger
	metrics  *observability.Metrics
	settings Settings

	mu      sync.Mutex
	current atomic.Pointer[state]
	ready   atomic.Bool
}

// New creates a Pipeline. Pass a nil loader to disable publishing.
func New(src Source, scorer *domain.Scorer, loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics, settings Settings) *Pipeline {
	if settings.RefreshInterval <= 0 {
		settings.RefreshInterval = 5 * time.Minute
	}
	if settings.HistoryPoints <= 0 {
		settings.HistoryPoints = 30
	}
	return &Pipeline{
		source:   src,
		scorer:   scorer,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
		settings: settings,
	}
}

// CheckReadiness returns nil once at least one refresh has completed, or an
// error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a refresh yet")
	}
	return nil
}

// Current returns the latest snapshot. It returns ErrEmptyBatch when the last
// refresh produced no usable records, and ErrNotReady before the first one.
func (p *Pipeline) Current() (*domain.Snapshot, error) {
	st := p.current.Load()
	if st == nil {
		return nil, ErrNotReady
	}
	if st.err != nil {
		return nil, st.err
	}
	return st.snapshot, nil
}

// Labels returns the ordered risk level labels of the scorer.
func (p *Pipeline) Labels() []string { return p.scorer.Labels() }

// Refresh runs one cycle synchronously and publishes the resulting snapshot.
// It is not reentrant: a call made while another is running returns
// ErrRefreshInProgress without waiting. A failed fetch leaves the previous
// snapshot in place.
func (p *Pipeline) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	if !p.mu.TryLock() {
		p.metrics.Refreshes.WithLabelValues("busy").Inc()
		return nil, ErrRefreshInProgress
	}
	defer p.mu.Unlock()

	start := time.Now()
	batch, err := p.source.Fetch(ctx)
	if err != nil {
		p.metrics.Refreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: fetch batch: %w", domain.ErrDataSource, err)
	}

	schema := p.scorer.Schema()
	if batch.Schema.Dataset != "" && batch.Schema.Dataset != schema.Dataset {
		p.metrics.Refreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: source produced dataset %q, scorer expects %q",
			domain.ErrConfiguration, batch.Schema.Dataset, schema.Dataset)
	}

	kept, dropped := domain.Sanitize(batch.Records, schema)
	droppedTotal := batch.Failed
	for reason, n := range dropped {
		p.metrics.RecordsDropped.WithLabelValues(reason).Add(float64(n))
		droppedTotal += n
	}
	if batch.Failed > 0 {
		p.metrics.RecordsDropped.WithLabelValues("fetch_failed").Add(float64(batch.Failed))
	}
	if droppedTotal > 0 {
		p.logger.Warn("records excluded from scoring", "dropped", droppedTotal, "reasons", dropped, "fetch_failed", batch.Failed)
	}

	snap, err := p.scorer.Snapshot(kept, droppedTotal)
	if errors.Is(err, domain.ErrEmptyBatch) {
		p.current.Store(&state{err: domain.ErrEmptyBatch})
		p.ready.Store(true)
		p.metrics.Refreshes.WithLabelValues("empty").Inc()
		p.logger.Warn("refresh produced no usable records", "dataset", schema.Dataset, "dropped", droppedTotal)
		return nil, err
	}
	if err != nil {
		p.metrics.Refreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("score batch: %w", err)
	}

	p.current.Store(&state{snapshot: snap})
	p.ready.Store(true)
	p.observe(snap, time.Since(start))

	p.publish(ctx, snap)
	return snap, nil
}

func (p *Pipeline) observe(snap *domain.Snapshot, elapsed time.Duration) {
	p.metrics.Refreshes.WithLabelValues("success").Inc()
	p.metrics.RecordsIngested.Add(float64(len(snap.Records)))
	p.metrics.BatchSize.Observe(float64(len(snap.Records)))
	p.metrics.RefreshDuration.Observe(elapsed.Seconds())

	counts := make(map[string]int, len(snap.Labels))
	for i := range snap.Records {
		counts[snap.Records[i].RiskLevel]++
	}
	for _, label := range snap.Labels {
		p.metrics.RiskLevels.WithLabelValues(label).Set(float64(counts[label]))
	}

	p.logger.Info("snapshot refreshed",
		"dataset", snap.Dataset,
		"records", len(snap.Records),
		"dropped", snap.Dropped,
		"duration", elapsed,
	)
}

// publish writes the snapshot to the loader. Failures are logged and counted
// but never fail the refresh; the snapshot is already being served.
func (p *Pipeline) publish(ctx context.Context, snap *domain.Snapshot) {
	if p.loader == nil {
		return
	}
	if err := p.loader.LoadBatch(ctx, snap.Records); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish snapshot failed", "error", err, "records", len(snap.Records))
		return
	}
	p.metrics.PublishedTotal.Add(float64(len(snap.Records)))
}

// View filters the current snapshot by category selection.
func (p *Pipeline) View(sel domain.Selection) (domain.View, *domain.Snapshot, error) {
	snap, err := p.Current()
	if err != nil {
		return domain.View{}, nil, err
	}
	return domain.FilterView(snap.Records, sel), snap, nil
}

// History fabricates a reproducible daily risk score series for a record in
// the current snapshot, ending at the snapshot time. Nothing is retained.
func (p *Pipeline) History(id string) ([]source.HistoryPoint, error) {
	snap, err := p.Current()
	if err != nil {
		return nil, err
	}
	rec, ok := snap.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, id)
	}

	series := source.History(source.HistoryParams{
		Seed:   p.settings.HistorySeed,
		Key:    rec.ID,
		Base:   rec.RiskScore,
		Noise:  5,
		Points: p.settings.HistoryPoints,
		Step:   24 * time.Hour,
		End:    snap.GeneratedAt,
	})
	for i := range series {
		if series[i].Value > domain.MaxScore {
			series[i].Value = domain.MaxScore
		}
	}
	// The last point is the live score.
	series[len(series)-1].Value = rec.RiskScore
	return series, nil
}

// Run refreshes immediately and then on every RefreshInterval until the
// context is cancelled. Source failures are retried with exponential backoff.
// A configuration error stops the loop and is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "refresh_interval", p.settings.RefreshInterval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.settings.RefreshInterval
		_, err := p.Refresh(ctx)
		switch {
		case err == nil, errors.Is(err, ErrRefreshInProgress), errors.Is(err, domain.ErrEmptyBatch):
			backoff = initialBackoff
		case ctx.Err() != nil:
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case errors.Is(err, domain.ErrConfiguration):
			p.logger.Error("refresh failed with configuration error", "error", err)
			return err
		default:
			p.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		}

		if !sleepWithContext(ctx, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
