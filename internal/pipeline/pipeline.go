// Package pipeline drives one provider's incremental update: plan fetch
// windows, fetch and normalize each window in order isolating per-window
// failures, aggregate where the provider's cadence requires it, enrich, and
// merge the batch into the persisted history.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/observability"
	"github.com/smartproduce/weather-etl/internal/store"
)

// Fetcher is the upstream fetch capability for one provider: it resolves a
// window to provider-native samples. Implementations return
// domain.ErrEmptyResult for a valid response with no usable rows, a
// TransientFetchError for window-scoped failures, and a SchemaError when the
// payload shape is no longer recognized.
type Fetcher interface {
	Fetch(ctx context.Context, w Window) ([]domain.Sample, error)
}

// Enricher fetches a secondary daily-granularity signal over a date range,
// keyed by YYYY-MM-DD.
type Enricher interface {
	FetchDaily(ctx context.Context, start, end time.Time) (map[string]float64, error)
}

// Provider is the declarative definition of one upstream source. Adding a
// provider is a data change: a vocabulary, a conversion list, a chunking
// policy, and a fetcher.
type Provider struct {
	Name      string
	StoreFile string

	// Epoch is the fetch start when no history exists yet; LagDays is the
	// number of most-recent days excluded because upstream has not reliably
	// published them.
	Epoch   time.Time
	LagDays int

	Chunking    Chunking
	Vocabulary  domain.Vocabulary
	Conversions []domain.Conversion
	Fields      []domain.Field

	// DailyAggregate reduces sub-daily samples to daily cadence. TimeColumn
	// and TimeLayout fix the persisted timestamp representation.
	DailyAggregate bool
	TimeColumn     string
	TimeLayout     string

	Fetcher     Fetcher
	Enricher    Enricher
	EnrichField domain.Field
}

// subDaily reports whether the provider persists sub-daily timestamps, in
// which case the final stored day may be incomplete.
func (p Provider) subDaily() bool {
	return strings.Contains(p.TimeLayout, "15:04")
}

// Status is the terminal state of one provider run.
type Status int

const (
	// StatusUpdated means new rows were merged and persisted.
	StatusUpdated Status = iota
	// StatusNothingToDo means the store is already current through the
	// lag-safe horizon, or no window produced usable rows.
	StatusNothingToDo
)

// Result summarizes a successful provider run.
type Result struct {
	Provider string
	Status   Status
	// NewRows counts timestamps added to the store; RowsFetched counts
	// records in the fetched batch (including ones that superseded existing
	// timestamps).
	NewRows     int
	RowsFetched int
}

// Runner executes the update pipeline for a single provider against its
// historical store. Runs against the same store must be serialized by the
// caller; the Runner itself holds no locks.
type Runner struct {
	provider Provider
	store    *store.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner wires a provider definition to its store and observability.
func NewRunner(p Provider, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		provider: p,
		store:    st,
		logger:   logger.With("provider", p.Name),
		metrics:  metrics,
	}
}

// Run performs one incremental update. It is idempotent: re-running over an
// unchanged upstream dataset leaves the store content identical.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	result := Result{Provider: r.provider.Name}

	existing, err := r.store.Load()
	if err != nil {
		return result, err
	}

	start, end := r.fetchRange(existing)
	windows := Plan(start, end, r.provider.Chunking)
	if len(windows) == 0 {
		r.logger.Info("store already current", "through", fmtDate(end))
		result.Status = StatusNothingToDo
		return result, nil
	}

	r.logger.Info("fetching range",
		"start", fmtDate(start), "end", fmtDate(end), "windows", len(windows))

	batch, err := r.fetchAll(ctx, windows)
	if err != nil {
		return result, err
	}
	if len(batch) == 0 {
		r.logger.Info("no usable rows in any window")
		result.Status = StatusNothingToDo
		return result, nil
	}

	if r.provider.Enricher != nil {
		r.enrich(ctx, batch, start, end)
	}

	merged := store.Merge(existing, batch)
	if err := r.store.Save(merged); err != nil {
		return result, err
	}

	result.Status = StatusUpdated
	result.RowsFetched = len(batch)
	result.NewRows = len(merged) - len(existing)

	r.metrics.RowsMerged.WithLabelValues(r.provider.Name).Add(float64(result.NewRows))
	r.metrics.RunDuration.WithLabelValues(r.provider.Name).Observe(time.Since(started).Seconds())

	r.logger.Info("store updated",
		"path", r.store.Path(),
		"rows_fetched", result.RowsFetched,
		"rows_added", result.NewRows,
		"total_rows", len(merged))
	return result, nil
}

// fetchRange derives the run's date range: one time unit past the last
// persisted timestamp (or the provider epoch for a fresh store) through
// today minus the provider's lag buffer. For a sub-daily store the next
// unit is an hour, truncated to midnight: a partial final day starts the
// range on itself and is refetched whole, with the incoming-wins merge
// superseding the partial rows.
func (r *Runner) fetchRange(existing []domain.Record) (time.Time, time.Time) {
	start := r.provider.Epoch
	if last, ok := store.LastTime(existing); ok {
		if r.provider.subDaily() {
			start = midnightUTC(last.Add(time.Hour))
		} else {
			start = midnightUTC(last).AddDate(0, 0, 1)
		}
	}
	end := domain.Today().AddDate(0, 0, -r.provider.LagDays)
	return start, end
}

// fetchAll fetches every planned window in chronological order. A transient
// failure or empty result skips that window only; a schema error aborts the
// run. The returned batch is normalized and, when required, daily-aggregated.
func (r *Runner) fetchAll(ctx context.Context, windows []Window) ([]domain.Record, error) {
	var batch []domain.Record
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := r.fetchWindow(ctx, w)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrEmptyResult):
			r.logger.Debug("window empty", "start", fmtDate(w.Start), "end", fmtDate(w.End))
			continue
		case isTransient(err):
			r.metrics.ChunkFailures.WithLabelValues(r.provider.Name).Inc()
			r.logger.Warn("window skipped",
				"start", fmtDate(w.Start), "end", fmtDate(w.End), "error", err)
			continue
		default:
			return nil, err
		}

		r.metrics.ChunksFetched.WithLabelValues(r.provider.Name).Inc()
		batch = append(batch, records...)
	}
	return batch, nil
}

func (r *Runner) fetchWindow(ctx context.Context, w Window) ([]domain.Record, error) {
	samples, err := r.provider.Fetcher.Fetch(ctx, w)
	if err != nil {
		return nil, err
	}

	records := domain.Normalize(samples, r.provider.Vocabulary, r.provider.Conversions, r.provider.Fields, r.provider.Name)
	if r.provider.DailyAggregate {
		records = domain.AggregateDaily(records)
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return records, nil
}

// enrich joins the secondary daily signal onto the batch. It never
// re-fetches when the field is already densely populated, and a failed
// secondary fetch degrades to missing values rather than failing the run.
func (r *Runner) enrich(ctx context.Context, batch []domain.Record, start, end time.Time) {
	if !domain.NeedsEnrichment(batch, r.provider.EnrichField) {
		return
	}
	lookup, err := r.provider.Enricher.FetchDaily(ctx, start, end)
	if err != nil {
		r.logger.Warn("enrichment fetch failed, leaving values missing",
			"field", r.provider.EnrichField, "error", err)
		return
	}
	domain.JoinDaily(batch, r.provider.EnrichField, lookup)
}

func isTransient(err error) bool {
	var tfe *domain.TransientFetchError
	return errors.As(err, &tfe)
}

func fmtDate(t time.Time) string { return t.UTC().Format("2006-01-02") }
