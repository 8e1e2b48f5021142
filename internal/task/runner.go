package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/metrics"
	"github.com/pathlight/pathlight-api/internal/store"
)

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory dispatch queue.
	QueueSize int

	// TaskTimeout is the deadline after which a starting/running task is
	// reaped and marked timed out.
	TaskTimeout time.Duration

	// MonitorInterval defines how often the runner re-offers queued
	// overflow tasks and scans for over-deadline tasks.
	// If zero, defaults to 30 seconds.
	MonitorInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:     2,
		QueueSize:       100,
		TaskTimeout:     10 * time.Minute,
		MonitorInterval: 30 * time.Second,
	}
}

// Runner manages background task processing: a worker pool consuming the
// dispatch queue, recovery of unfinished work at startup, re-offering of
// queued overflow tasks, and the timeout reaper.
type Runner struct {
	registry   Registry
	queue      *TaskQueue
	factories  map[string]Factory
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a new Runner.
func NewRunner(registry Registry, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.MonitorInterval == 0 {
		config.MonitorInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		registry:   registry,
		queue:      NewTaskQueue(config.QueueSize, logger),
		factories:  make(map[string]Factory),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
	}
}

// RegisterFactory registers a factory used to rebuild runnables of its kind
// during recovery and requeueing.
func (r *Runner) RegisterFactory(f Factory) {
	r.factories[f.Kind()] = f
}

// Submit dispatches a runnable for background execution. The durable record
// must already exist; submission never blocks on execution. When the
// dispatch queue is full the task is parked in the queued status and the
// monitor re-offers it later, so the caller still gets a successful
// fire-and-forget handoff.
func (r *Runner) Submit(ctx context.Context, work Runnable) error {
	err := r.queue.Enqueue(work)
	if err == nil {
		metrics.TasksSubmitted.Inc()
		return nil
	}

	if errors.Is(err, ErrQueueFull) {
		queued := domain.TaskStatusQueued
		if updateErr := r.registry.Update(ctx, work.ID(), store.TaskUpdate{Status: &queued}); updateErr != nil {
			return fmt.Errorf("queue full and failed to park task as queued: %w", updateErr)
		}
		r.logger.Warn("dispatch queue full, task parked as queued",
			"task_id", work.ID(),
			"task_kind", work.Kind())
		metrics.TasksSubmitted.Inc()
		return nil
	}

	return fmt.Errorf("failed to enqueue task: %w", err)
}

// Start recovers unfinished tasks and begins processing.
func (r *Runner) Start() error {
	if err := r.recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.monitor()

	return nil
}

// Stop gracefully shuts down the task runner.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()
}

// recover re-dispatches tasks left in pending or queued status by a
// previous run. Tasks stuck in starting/running are left for the reaper:
// their writer may still be alive on another worker.
func (r *Runner) recover() error {
	ctx := context.Background()

	var recovered, skipped int
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusQueued} {
		tasks, err := r.registry.FindByStatus(ctx, status, 0)
		if err != nil {
			return fmt.Errorf("failed to find %s tasks: %w", status, err)
		}

		for _, t := range tasks {
			work, err := r.rebuild(t)
			if err != nil {
				r.logger.Error("failed to rebuild task for recovery",
					"task_id", t.ID,
					"task_kind", t.Kind,
					"error", err)
				skipped++
				continue
			}

			if err := r.queue.Enqueue(work); err != nil {
				// Queue full: park as queued, monitor retries later.
				queued := domain.TaskStatusQueued
				if updateErr := r.registry.Update(ctx, t.ID, store.TaskUpdate{Status: &queued}); updateErr != nil {
					r.logger.Error("failed to park recovered task as queued",
						"task_id", t.ID,
						"error", updateErr)
				}
				skipped++
				continue
			}
			recovered++
		}
	}

	r.logger.Info("recovered unfinished tasks",
		"requeued_count", recovered,
		"deferred_count", skipped)
	return nil
}

// rebuild reconstructs an executable runnable from a persisted record using
// the factory registered for its kind.
func (r *Runner) rebuild(t *domain.Task) (Runnable, error) {
	factory, ok := r.factories[t.Kind]
	if !ok {
		return nil, fmt.Errorf("no factory registered for task kind %q", t.Kind)
	}
	return factory.Rebuild(t)
}

// worker processes tasks from the queue.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case work, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			r.processTask(work, id)
		}
	}
}

// processTask claims and executes a single task. The claim is the
// single-writer gate: only the worker holding the claim may execute, and a
// task another worker already claimed (or that went terminal meanwhile) is
// skipped silently.
func (r *Runner) processTask(work Runnable, workerID int) {
	ctx := context.Background()
	logger := r.logger.With(
		"task_id", work.ID(),
		"task_kind", work.Kind(),
		"worker_id", workerID,
	)

	if _, err := r.registry.Claim(ctx, work.ID()); err != nil {
		if errors.Is(err, store.ErrTaskNotClaimable) {
			logger.Debug("task no longer claimable, skipping")
			return
		}
		logger.Error("failed to claim task", "error", err)
		return
	}

	logger.Info("processing task")
	start := time.Now()

	err := work.Execute(ctx)
	metrics.TaskDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error("task execution failed", "error", err)
		// Backstop: make sure the record goes terminal even if the workflow
		// bailed out before writing its own failure. Discarded if terminal.
		failed := domain.TaskStatusFailed
		detail := err.Error()
		if updateErr := r.registry.Update(ctx, work.ID(), store.TaskUpdate{
			Status:       &failed,
			ErrorDetails: &detail,
		}); updateErr != nil {
			logger.Error("failed to record task failure", "error", updateErr)
		}
		metrics.TasksFinished.WithLabelValues(string(domain.TaskStatusFailed)).Inc()
		return
	}

	logger.Info("task completed")
	metrics.TasksFinished.WithLabelValues(string(domain.TaskStatusCompleted)).Inc()
}

// monitor periodically re-offers queued overflow tasks to the dispatch
// queue and reaps tasks that have exceeded the execution deadline.
func (r *Runner) monitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()
			r.requeueParked(ctx)
			r.reapExpired(ctx)
		}
	}
}

// requeueParked re-offers queued tasks to the dispatch queue.
func (r *Runner) requeueParked(ctx context.Context) {
	tasks, err := r.registry.FindByStatus(ctx, domain.TaskStatusQueued, 0)
	if err != nil {
		r.logger.Error("failed to scan queued tasks", "error", err)
		return
	}

	for _, t := range tasks {
		work, err := r.rebuild(t)
		if err != nil {
			r.logger.Error("failed to rebuild queued task",
				"task_id", t.ID,
				"error", err)
			continue
		}
		if err := r.queue.Enqueue(work); err != nil {
			// Still full; it stays queued until the next tick.
			return
		}
		r.logger.Info("requeued parked task", "task_id", t.ID)
	}
}

// reapExpired marks starting/running tasks whose execution time has exceeded
// the deadline as timed out. The deadline is measured from the claim, not
// the last write, so a workflow that keeps checkpointing cannot outlive it.
// The workflow has no cancellation signal; any writes it attempts after this
// point are discarded because the task is terminal.
func (r *Runner) reapExpired(ctx context.Context) {
	if r.config.TaskTimeout <= 0 {
		return
	}

	tasks, err := r.registry.FindExpired(ctx,
		[]domain.TaskStatus{domain.TaskStatusStarting, domain.TaskStatusRunning},
		r.config.TaskTimeout)
	if err != nil {
		r.logger.Error("failed to scan for expired tasks", "error", err)
		return
	}

	for _, t := range tasks {
		timedOut := domain.TaskStatusTimedOut
		message := fmt.Sprintf("task exceeded the %s execution deadline", r.config.TaskTimeout)
		if err := r.registry.Update(ctx, t.ID, store.TaskUpdate{
			Status:  &timedOut,
			Message: &message,
		}); err != nil {
			r.logger.Error("failed to reap expired task",
				"task_id", t.ID,
				"error", err)
			continue
		}
		r.logger.Warn("reaped expired task",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"stale_status", t.Status)
		metrics.TasksFinished.WithLabelValues(string(domain.TaskStatusTimedOut)).Inc()
	}
}
