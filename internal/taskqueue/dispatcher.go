package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
)

// Dispatcher polls the durable task table and runs registered handlers across
// per-kind worker pools. It owns retry scheduling, the dead-task transition,
// and lease reclamation for stalled workers.
type Dispatcher struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	pollInterval  time.Duration
	errorInterval time.Duration
	lease         time.Duration
	reclaimEvery  time.Duration
	backoffBase   time.Duration
	backoffMax    time.Duration

	registrations map[string]Registration
	kindOrder     []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher constructs a dispatcher bound to the given store.
func NewDispatcher(cfg *config.Config, st *store.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		cfg:           cfg,
		store:         st,
		logger:        logging.NewComponentLogger(logger, "taskqueue"),
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		lease:         time.Duration(cfg.Workflow.TaskLeaseSeconds) * time.Second,
		reclaimEvery:  time.Duration(cfg.Workflow.LeaseReclaimInterval) * time.Second,
		backoffBase:   time.Duration(cfg.Workflow.BackoffBaseSeconds) * time.Second,
		backoffMax:    time.Duration(cfg.Workflow.BackoffMaxSeconds) * time.Second,
		registrations: make(map[string]Registration),
	}
}

// Register binds a handler to a task kind. Registration after Start is a
// programming error and panics.
func (d *Dispatcher) Register(kind string, reg Registration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		panic("taskqueue: Register after Start")
	}
	if reg.Handler == nil {
		panic("taskqueue: nil handler for kind " + kind)
	}
	if reg.Workers < 1 {
		reg.Workers = 1
	}
	if _, exists := d.registrations[kind]; !exists {
		d.kindOrder = append(d.kindOrder, kind)
	}
	d.registrations[kind] = reg
}

// Start begins background processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("taskqueue already running")
	}
	if len(d.registrations) == 0 {
		d.mu.Unlock()
		return errors.New("taskqueue has no registered handlers")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	workerCount := 0
	for _, kind := range d.kindOrder {
		workerCount += d.registrations[kind].Workers
	}
	d.wg.Add(workerCount + 1)
	d.mu.Unlock()

	for _, kind := range d.kindOrder {
		reg := d.registrations[kind]
		for i := 0; i < reg.Workers; i++ {
			go d.runWorker(runCtx, kind, reg)
		}
	}
	go d.runReclaimer(runCtx)

	d.logger.Info("task dispatcher started",
		logging.Int("workers", workerCount),
		logging.String(logging.FieldEventType, "dispatcher_started"),
	)
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	d.logger.Info("task dispatcher stopped",
		logging.String(logging.FieldEventType, "dispatcher_stopped"),
	)
}

func (d *Dispatcher) runWorker(ctx context.Context, kind string, reg Registration) {
	defer d.wg.Done()
	logger := d.logger.With(logging.String(logging.FieldTaskKind, kind))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := d.store.ClaimNextTask(ctx, kind, d.lease)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "task_claim_failed"),
			)
			d.wait(ctx, d.errorInterval)
			continue
		}
		if task == nil {
			d.wait(ctx, d.pollInterval)
			continue
		}

		d.processTask(ctx, logger, reg, task)
	}
}

func (d *Dispatcher) processTask(ctx context.Context, logger *slog.Logger, reg Registration, task *store.Task) {
	taskLogger := logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int(logging.FieldAttempt, task.Attempt),
	)
	taskLogger.Info("task started",
		logging.String(logging.FieldEventType, "task_started"),
	)
	started := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, d.lease)
	err := reg.Handler.Execute(execCtx, task)
	cancel()

	if err == nil {
		if completeErr := d.store.CompleteTask(ctx, task.ID); completeErr != nil {
			taskLogger.Error("failed to mark task done",
				logging.Error(completeErr),
				logging.String(logging.FieldEventType, "task_complete_failed"),
			)
			return
		}
		taskLogger.Info("task completed",
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldEventType, "task_completed"),
		)
		return
	}

	if ctx.Err() != nil {
		// Shutdown raced the handler. Leave the lease in place; the
		// reclaimer requeues the task after it expires.
		return
	}

	d.handleFailure(ctx, taskLogger, reg, task, err)
}

func (d *Dispatcher) handleFailure(ctx context.Context, logger *slog.Logger, reg Registration, task *store.Task, err error) {
	message := services.UserMessage(err)

	switch {
	case services.IsPermanent(err):
		logger.Error("task failed permanently",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_failed"),
		)
		d.deaden(ctx, logger, reg, task, message, err)

	case task.Attempt >= task.MaxAttempts:
		if services.IsQuota(err) {
			message = fmt.Sprintf("service quota exhausted after %d attempts; audio retained for later retry: %s", task.Attempt, message)
		} else {
			message = fmt.Sprintf("failed after %d attempts: %s", task.Attempt, message)
		}
		logger.Error("task retry budget exhausted",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_exhausted"),
		)
		d.deaden(ctx, logger, reg, task, message, err)

	default:
		delay := RetryDelay(task.Attempt, d.backoffBase, d.backoffMax)
		if retryErr := d.store.RetryTaskAfter(ctx, task.ID, delay, message); retryErr != nil {
			logger.Error("failed to schedule task retry",
				logging.Error(retryErr),
				logging.String(logging.FieldEventType, "task_retry_failed"),
			)
			return
		}
		logger.Warn("task failed; retry scheduled",
			logging.Error(err),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldEventType, "task_retry_scheduled"),
		)
	}
}

func (d *Dispatcher) deaden(ctx context.Context, logger *slog.Logger, reg Registration, task *store.Task, message string, cause error) {
	if err := d.store.MarkTaskDead(ctx, task.ID, message); err != nil {
		logger.Error("failed to mark task dead",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_deaden_failed"),
		)
		return
	}
	if reg.Hook != nil {
		reg.Hook.OnExhausted(ctx, task, cause)
	}
}

func (d *Dispatcher) runReclaimer(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.reclaimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		requeued, deadened, err := d.store.ReclaimExpiredLeases(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("lease reclaim failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lease_reclaim_failed"),
			)
			continue
		}
		for _, id := range requeued {
			d.logger.Warn("stalled task requeued",
				logging.String(logging.FieldTaskID, id),
				logging.String(logging.FieldEventType, "task_stalled"),
			)
		}
		for _, id := range deadened {
			d.logger.Error("stalled task abandoned after second stall",
				logging.String(logging.FieldTaskID, id),
				logging.String(logging.FieldEventType, "task_exhausted"),
			)
			d.notifyStalledDead(ctx, id)
		}
	}
}

func (d *Dispatcher) notifyStalledDead(ctx context.Context, taskID string) {
	task, err := d.store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return
	}
	d.mu.Lock()
	reg, ok := d.registrations[task.Kind]
	d.mu.Unlock()
	if !ok || reg.Hook == nil {
		return
	}
	reg.Hook.OnExhausted(ctx, task, services.Wrap(services.ErrTransient, task.Kind, "run", "task stalled twice; giving up", nil))
}

func (d *Dispatcher) wait(ctx context.Context, interval time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

// Stats returns queue counts for every registered kind.
func (d *Dispatcher) Stats(ctx context.Context) (map[string]store.TaskStats, error) {
	d.mu.Lock()
	kinds := make([]string, len(d.kindOrder))
	copy(kinds, d.kindOrder)
	d.mu.Unlock()

	stats := make(map[string]store.TaskStats, len(kinds))
	for _, kind := range kinds {
		kindStats, err := d.store.TaskStatsByKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		stats[kind] = kindStats
	}
	return stats, nil
}
