package database

import (
	"context"
	"time"
)

// WorkflowRepositoryInterface defines the interface for workflow repository operations
type WorkflowRepositoryInterface interface {
	// UpsertWorkflow inserts the record for the item's natural key or updates
	// source URL, metrics, score and last seen in place. created_at is set
	// only on insert. It reports whether a new record was created.
	UpsertWorkflow(ctx context.Context, item WorkflowItem, seenAt time.Time) (bool, error)

	ListWorkflows(ctx context.Context, filter ListFilter) ([]Workflow, error)
	GetWorkflow(ctx context.Context, name, platform, country string) (*Workflow, error)
	GetWorkflowCount(ctx context.Context) (int, error)

	// GetLatestSeen returns the most recent last_seen across all records, or nil when empty.
	GetLatestSeen(ctx context.Context) (*time.Time, error)

	Ping(ctx context.Context) error
	Close() error
}

var _ WorkflowRepositoryInterface = (*WorkflowRepository)(nil)
