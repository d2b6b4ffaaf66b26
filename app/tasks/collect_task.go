package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/ingest"
)

type SourceResolver interface {
	Resolve(name string) ([]collector.Source, error)
}

type Runner interface {
	Run(ctx context.Context, sources []collector.Source, countries []string) (*ingest.Report, error)
}

// CollectTask runs one collection pass for a source name ("all" included)
// across a set of countries. Report holds the last attempt's result.
type CollectTask struct {
	Task
	Countries []string
	Report    *ingest.Report
	resolver  SourceResolver
	runner    Runner
}

func NewCollectTask(source string, countries []string, resolver SourceResolver, runner Runner) *CollectTask {
	return &CollectTask{
		Task:      NewTask(TaskTypeCollect, source),
		Countries: countries,
		resolver:  resolver,
		runner:    runner,
	}
}

func (t *CollectTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sources, err := t.resolver.Resolve(t.Target)
	if err != nil {
		return fmt.Errorf("failed to resolve sources: %w", err)
	}

	report, err := t.runner.Run(ctx, sources, t.Countries)
	t.Report = report
	if err != nil {
		return fmt.Errorf("failed to run collection: %w", err)
	}

	slog.Info("Collect task completed",
		"id", t.ID,
		"source", t.Target,
		"run_id", report.RunID,
		"total", report.Total,
		"created", report.Created,
		"failed_pairs", len(report.Failed()),
		"attempt", t.RetryCount+1)

	return nil
}
