package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/workflow-pulse/app/status"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultCheckInterval = time.Minute
	DefaultRetryBase     = time.Second
	taskTimeout          = 30 * time.Minute
)

type StatusInferer interface {
	Infer(ctx context.Context) (status.Status, error)
}

// Scheduler runs collection tasks on a single worker. The cadence follows the
// scheduler's own last full pass. Stored data is consulted once, at the first
// check, to seed that pass so a restart resumes the cadence. Later writes from
// triggered single-source runs do not move it.
type Scheduler struct {
	inferer       StatusInferer
	resolver      SourceResolver
	runner        Runner
	countries     []string
	interval      time.Duration
	checkInterval time.Duration
	retryBase     time.Duration
	now           func() time.Time

	mu       sync.Mutex
	pending  bool
	seeded   bool
	lastPass time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(inferer StatusInferer, resolver SourceResolver, runner Runner, countries []string, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		inferer:       inferer,
		resolver:      resolver,
		runner:        runner,
		countries:     countries,
		interval:      interval,
		checkInterval: DefaultCheckInterval,
		retryBase:     DefaultRetryBase,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, 16),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		s.enqueueIfDue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueIfDue()
			}
		}
	}()

	slog.Info("Scheduler started", "interval", s.interval, "check_interval", s.checkInterval, "countries", s.countries)
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueIfDue adds a full collection once an interval has passed since the
// last full pass. At most one scheduled collection is pending at a time.
func (s *Scheduler) enqueueIfDue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending {
		slog.Debug("Collection already pending, skipping check")
		return
	}

	now := s.now()
	if !s.seeded {
		st, err := s.inferer.Infer(s.ctx)
		if err != nil {
			slog.Warn("Failed to infer status, skipping check", "error", err)
			return
		}
		if !st.Due(now) && st.LastRun != nil {
			s.lastPass = *st.LastRun
		}
		s.seeded = true
		slog.Debug("Scheduler cadence seeded", "last_run", st.LastRun)
	}

	if !s.lastPass.IsZero() && now.Before(s.lastPass.Add(s.interval)) {
		slog.Debug("Collection not due yet", "next_run", s.lastPass.Add(s.interval))
		return
	}

	task := NewCollectTask("all", s.countries, s.resolver, s.runner)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue CollectTask", "error", err)
		return
	}
	s.pending = true
	slog.Info("Collection enqueued", "id", task.GetID(), "last_pass", s.lastPass)
}

// finish records the end of a scheduled pass, successful or not, so a pass
// that keeps failing is not repeated before the interval elapses.
func (s *Scheduler) finish(task TaskInterface) {
	if task.GetType() != TaskTypeCollect {
		return
	}
	s.mu.Lock()
	s.pending = false
	s.lastPass = s.now()
	s.mu.Unlock()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		slog.Info("Task completed", "type", string(task.GetType()), "id", task.GetID(), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "duration", task.GetDuration())
		s.finish(task)
		return
	}

	slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if s.ctx.Err() != nil {
		slog.Debug("Scheduler stopped, dropping task", "type", string(task.GetType()), "id", task.GetID())
		s.finish(task)
		return
	}
	retryDelay, ok := task.NextRetry(s.retryBase)
	if !ok {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "last_error", err)
		s.finish(task)
		return
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "target", task.GetTarget(), "retry_count", task.GetRetryCount(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			s.finish(task)
		}
	}()
}
