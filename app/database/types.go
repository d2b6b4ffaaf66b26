package database

import (
	"time"
)

// Workflow is a stored popularity record, unique by (Name, Platform, Country).
type Workflow struct {
	ID        int64
	Name      string
	Platform  string
	Country   string
	SourceURL string
	Metrics   map[string]float64
	Score     float64
	LastSeen  *time.Time
	CreatedAt time.Time
}

// WorkflowItem is the write model handed to UpsertWorkflow.
type WorkflowItem struct {
	Name      string
	Platform  string
	Country   string
	SourceURL string
	Metrics   map[string]float64
	Score     float64
}

type ListFilter struct {
	Platform string // case-insensitive, empty matches all
	Country  string // case-insensitive, empty matches all
	Limit    int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ClampLimit applies the read API bounds: non-positive means the default, and
// nothing above MaxListLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
