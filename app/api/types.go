package api

import (
	"context"
	"time"

	"github.com/lysyi3m/workflow-pulse/app/cache"
	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/database"
	"github.com/lysyi3m/workflow-pulse/app/ingest"
	"github.com/lysyi3m/workflow-pulse/app/status"
)

type WorkflowReader interface {
	ListWorkflows(ctx context.Context, filter database.ListFilter) ([]database.Workflow, error)
	GetWorkflowCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type StatusInferer interface {
	Infer(ctx context.Context) (status.Status, error)
}

type SourceLookup interface {
	Get(name string) (collector.Source, error)
}

type Runner interface {
	Run(ctx context.Context, sources []collector.Source, countries []string) (*ingest.Report, error)
}

type HealthReporter interface {
	Health(ctx context.Context) map[string]any
}

var (
	_ WorkflowReader = (*database.WorkflowRepository)(nil)
	_ StatusInferer  = (*status.Inferer)(nil)
	_ SourceLookup   = (*collector.Registry)(nil)
	_ Runner         = (*ingest.Orchestrator)(nil)
	_ HealthReporter = (*cache.Cache)(nil)
)

type Handler struct {
	repo    WorkflowReader
	status  StatusInferer
	sources SourceLookup
	runner  Runner
	cache   cache.ListCache
}

// WorkflowResponse is the public record shape of the read API.
type WorkflowResponse struct {
	Workflow          string             `json:"workflow"`
	Platform          string             `json:"platform"`
	Country           string             `json:"country"`
	SourceURL         string             `json:"source_url"`
	PopularityMetrics map[string]float64 `json:"popularity_metrics"`
	PopularityScore   float64            `json:"popularity_score"`
	LastSeen          *time.Time         `json:"last_seen"`
	CreatedAt         time.Time          `json:"created_at"`
}

type TriggerResponse struct {
	OK      bool   `json:"ok"`
	Source  string `json:"source"`
	Country string `json:"country"`
	Count   int    `json:"count"`
}

func toWorkflowResponse(w database.Workflow) WorkflowResponse {
	resp := WorkflowResponse{
		Workflow:          w.Name,
		Platform:          w.Platform,
		Country:           w.Country,
		SourceURL:         w.SourceURL,
		PopularityMetrics: w.Metrics,
		PopularityScore:   w.Score,
		CreatedAt:         w.CreatedAt.In(time.Local),
	}
	if w.LastSeen != nil {
		seen := w.LastSeen.In(time.Local)
		resp.LastSeen = &seen
	}
	if resp.PopularityMetrics == nil {
		resp.PopularityMetrics = map[string]float64{}
	}
	return resp
}
