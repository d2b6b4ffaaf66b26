package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeCollect TaskType = "collect"
)

const (
	DefaultMaxRetries = 3
	maxRetryDelay     = 30 * time.Second
)

// TaskInterface is a unit of work the scheduler's worker executes and,
// on failure, re-enqueues after a backoff.
type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetTarget() string
	GetRetryCount() int
	NextRetry(base time.Duration) (time.Duration, bool)
	Start()
	GetDuration() time.Duration
}

// Task carries the bookkeeping shared by every task type. Target names the
// source the task collects, or "all".
type Task struct {
	ID         string
	Type       TaskType
	Target     string
	RetryCount int
	MaxRetries int
	StartedAt  *time.Time
}

func NewTask(taskType TaskType, target string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Target:     target,
		MaxRetries: DefaultMaxRetries,
	}
}

func (t *Task) GetID() string      { return t.ID }
func (t *Task) GetType() TaskType  { return t.Type }
func (t *Task) GetTarget() string  { return t.Target }
func (t *Task) GetRetryCount() int { return t.RetryCount }

// NextRetry records another retry and returns its delay, doubling from base
// and capped at maxRetryDelay. It reports false once MaxRetries is spent.
func (t *Task) NextRetry(base time.Duration) (time.Duration, bool) {
	if t.RetryCount >= t.MaxRetries {
		return 0, false
	}
	t.RetryCount++
	return min(base<<(t.RetryCount-1), maxRetryDelay), true
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
