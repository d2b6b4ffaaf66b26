package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WorkflowRepository handles database operations for workflow popularity records
type WorkflowRepository struct {
	db *DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, workflow, platform, country, source_url, popularity_metrics, popularity_score, last_seen, created_at`

func (r *WorkflowRepository) UpsertWorkflow(ctx context.Context, item WorkflowItem, seenAt time.Time) (bool, error) {
	if item.Name == "" || item.Platform == "" || item.Country == "" {
		return false, fmt.Errorf("workflow, platform and country are required")
	}

	metrics := item.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return false, fmt.Errorf("failed to encode metrics: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx, r.db.rebind(`
		SELECT id FROM workflows WHERE workflow = ? AND platform = ? AND country = ?
	`), item.Name, item.Platform, item.Country).Scan(&existingID)
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return false, fmt.Errorf("failed to check existing workflow: %w", err)
	}

	seen := r.db.timeArg(seenAt)
	_, err = tx.ExecContext(ctx, r.db.rebind(`
		INSERT INTO workflows (workflow, platform, country, source_url, popularity_metrics, popularity_score, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workflow, platform, country) DO UPDATE SET
			source_url = excluded.source_url,
			popularity_metrics = excluded.popularity_metrics,
			popularity_score = excluded.popularity_score,
			last_seen = excluded.last_seen
	`), item.Name, item.Platform, item.Country, item.SourceURL, string(metricsJSON), item.Score, seen, seen)
	if err != nil {
		return false, fmt.Errorf("failed to upsert workflow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit workflow upsert: %w", err)
	}

	return created, nil
}

// ListWorkflows returns records ordered by score descending, ties broken by id
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, filter ListFilter) ([]Workflow, error) {
	var (
		where []string
		args  []any
	)
	if p := strings.TrimSpace(filter.Platform); p != "" {
		where = append(where, "LOWER(platform) = LOWER(?)")
		args = append(args, p)
	}
	if c := strings.TrimSpace(filter.Country); c != "" {
		where = append(where, "LOWER(country) = LOWER(?)")
		args = append(args, c)
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY popularity_score DESC, id ASC LIMIT ?`
	args = append(args, ClampLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var workflows []Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetWorkflow retrieves a record by its natural key, nil when absent
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, name, platform, country string) (*Workflow, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT `+workflowColumns+` FROM workflows
		WHERE workflow = ? AND platform = ? AND country = ?
	`), name, platform, country)

	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *WorkflowRepository) GetWorkflowCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get workflow count: %w", err)
	}
	return count, nil
}

func (r *WorkflowRepository) GetLatestSeen(ctx context.Context) (*time.Time, error) {
	var latest nullTime
	err := r.db.QueryRowContext(ctx, "SELECT MAX(last_seen) FROM workflows").Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest seen: %w", err)
	}
	return latest.Ptr(), nil
}

func (r *WorkflowRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *WorkflowRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	var (
		w           Workflow
		metricsJSON []byte
		lastSeen    nullTime
		createdAt   nullTime
	)
	err := row.Scan(&w.ID, &w.Name, &w.Platform, &w.Country, &w.SourceURL,
		&metricsJSON, &w.Score, &lastSeen, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	w.Metrics = map[string]float64{}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &w.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics for workflow %d: %w", w.ID, err)
		}
	}
	w.LastSeen = lastSeen.Ptr()
	w.CreatedAt = createdAt.Time

	return &w, nil
}
