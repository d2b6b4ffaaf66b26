// Package ingest runs collection passes: every requested source for every
// requested country, with each batch upserted into the store as it arrives.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/workflow-pulse/app/cache"
	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/database"
	"github.com/lysyi3m/workflow-pulse/app/metrics"
)

// Store is the write side the orchestrator needs.
type Store interface {
	UpsertWorkflow(ctx context.Context, item database.WorkflowItem, seenAt time.Time) (bool, error)
}

// Outcome is the result of one (source, country) pair.
type Outcome struct {
	Source  string
	Country string
	Count   int
	Err     error
}

type Report struct {
	RunID    string
	Outcomes []Outcome
	Total    int
	Created  int
	Duration time.Duration
}

// Failed lists outcomes whose source returned an error.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

type Orchestrator struct {
	mu          sync.Mutex
	store       Store
	invalidator cache.Invalidator
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator. invalidator may be nil.
func NewOrchestrator(store Store, invalidator cache.Invalidator) *Orchestrator {
	return &Orchestrator{
		store:       store,
		invalidator: invalidator,
		now:         time.Now,
	}
}

// Run collects from sources for each country in order. A source error is
// recorded in its Outcome and the pass moves on; only a store error aborts
// the run. The report is returned in both cases. Runs never overlap.
func (o *Orchestrator) Run(ctx context.Context, sources []collector.Source, countries []string) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	report := &Report{RunID: uuid.NewString()}
	logger := slog.With("run_id", report.RunID)

	logger.Info("Collection run started", "sources", len(sources), "countries", countries)

	var runErr error
	for _, src := range sources {
		for _, raw := range countries {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}

			country := collector.NormalizeCountry(raw)
			outcome, created, err := o.collectOne(ctx, logger, src, country)
			report.Outcomes = append(report.Outcomes, outcome)
			report.Total += outcome.Count
			report.Created += created
			if err != nil {
				runErr = err
				break
			}
		}
		if runErr != nil {
			break
		}
	}

	finished := o.now()
	report.Duration = finished.Sub(started)
	metrics.RecordRun(report.Duration, finished)

	if report.Total > 0 && o.invalidator != nil {
		if err := o.invalidator.Invalidate(ctx); err != nil {
			logger.Warn("Failed to invalidate cache", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("Collection run aborted", "error", runErr, "total", report.Total)
		return report, runErr
	}

	logger.Info("Collection run finished",
		"total", report.Total,
		"created", report.Created,
		"failed_pairs", len(report.Failed()),
		"duration", report.Duration)
	return report, nil
}

// collectOne runs a single source for one country and stores what it returns.
// The returned error is non-nil only when the store failed.
func (o *Orchestrator) collectOne(ctx context.Context, logger *slog.Logger, src collector.Source, country string) (Outcome, int, error) {
	outcome := Outcome{Source: src.Name(), Country: country}

	items, err := src.Collect(ctx, country)
	if err != nil {
		outcome.Err = err
		metrics.RecordCollection(src.Name(), country, 0, true)
		logger.Warn("Source failed, continuing",
			"source", src.Name(),
			"country", country,
			"error", err)
		return outcome, 0, nil
	}

	seenAt := o.now().UTC()
	created := 0
	for _, item := range items {
		isNew, err := o.store.UpsertWorkflow(ctx, toWorkflowItem(item), seenAt)
		if err != nil {
			return outcome, created, fmt.Errorf("failed to store %s item %q for %s: %w", src.Name(), item.Name, country, err)
		}
		outcome.Count++
		if isNew {
			created++
		}
	}

	metrics.RecordCollection(src.Name(), country, outcome.Count, false)
	logger.Info("Source collected",
		"source", src.Name(),
		"country", country,
		"items", outcome.Count,
		"created", created)
	return outcome, created, nil
}

func toWorkflowItem(item collector.Item) database.WorkflowItem {
	return database.WorkflowItem{
		Name:      item.Name,
		Platform:  string(item.Platform),
		Country:   item.Country,
		SourceURL: item.SourceURL,
		Metrics:   item.Metrics,
		Score:     item.Score,
	}
}
