// Package status infers collection health from stored data.
//
// Nothing here talks to the scheduler. The last run is the most recent
// last_seen across all records, so a run that stored nothing leaves it unchanged.
package status

import (
	"context"
	"fmt"
	"time"
)

type LatestSeenReader interface {
	GetLatestSeen(ctx context.Context) (*time.Time, error)
}

type Status struct {
	LastRun       *time.Time `json:"last_run"`
	NextRun       *time.Time `json:"next_run"`
	IntervalHours int        `json:"interval_hours"`
}

// Due reports whether a collection should start at now. With no data it is always due.
func (s Status) Due(now time.Time) bool {
	return s.NextRun == nil || !now.Before(*s.NextRun)
}

type Inferer struct {
	repo     LatestSeenReader
	interval time.Duration
}

func NewInferer(repo LatestSeenReader, interval time.Duration) *Inferer {
	return &Inferer{repo: repo, interval: interval}
}

func (i *Inferer) Infer(ctx context.Context) (Status, error) {
	st := Status{IntervalHours: int(i.interval / time.Hour)}

	latest, err := i.repo.GetLatestSeen(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to infer status: %w", err)
	}
	if latest == nil {
		return st, nil
	}

	last := latest.UTC()
	next := last.Add(i.interval)
	st.LastRun = &last
	st.NextRun = &next
	return st, nil
}
