package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/pipeline"
	"parley/internal/store"
	"parley/internal/taskqueue"
	"parley/internal/ws"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	dispatcher *taskqueue.Dispatcher
	hub        *ws.Hub
	pipe       *pipeline.Pipeline

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Connections  int
	Queue        map[string]store.TaskStats
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, dispatcher *taskqueue.Dispatcher, hub *ws.Hub, pipe *pipeline.Pipeline) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || dispatcher == nil || hub == nil || pipe == nil {
		return nil, errors.New("daemon requires config, store, logger, dispatcher, hub, and pipeline")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "parleyd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      st,
		dispatcher: dispatcher,
		hub:        hub,
		pipe:       pipe,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start acquires the daemon lock and launches the hub, task workers, API
// server, and sweep scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another parley daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.hub.Start(); err != nil {
		d.abortStart()
		return fmt.Errorf("start hub: %w", err)
	}
	if err := d.dispatcher.Start(d.ctx); err != nil {
		d.hub.Stop()
		d.abortStart()
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			d.dispatcher.Stop()
			d.hub.Stop()
			d.abortStart()
			return err
		}
	}
	if d.cfg.Retention.Enabled {
		d.wg.Add(1)
		go d.runSweepSchedule(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("parley daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	d.dispatcher.Stop()
	d.hub.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("parley daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API listen address, empty until Start succeeds.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// runSweepSchedule enqueues a retention sweep on the configured cadence. The
// queue serializes execution; the schedule only produces tasks.
func (d *Daemon) runSweepSchedule(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Retention.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.pipe.EnqueueSweep(ctx); err != nil {
				d.logger.Warn("failed to schedule retention sweep",
					logging.Error(err),
					logging.String(logging.FieldEventType, "sweep_schedule_failed"),
				)
			}
		}
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.dispatcher.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to collect queue stats", logging.Error(err))
		stats = nil
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Connections:  d.hub.ConnectionCount(),
		Queue:        stats,
	}
}

// ListTasks returns queue tasks, optionally filtered by status.
func (d *Daemon) ListTasks(ctx context.Context, status store.TaskStatus, limit int) ([]*store.Task, error) {
	return d.store.ListTasks(ctx, status, limit)
}

// RetryDeadTasks returns dead tasks to the pending state with a fresh
// attempt budget.
func (d *Daemon) RetryDeadTasks(ctx context.Context) (int, error) {
	return d.store.RetryDeadTasks(ctx)
}

// ClearDoneTasks removes completed tasks older than the supplied age.
func (d *Daemon) ClearDoneTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	return d.store.ClearDoneTasks(ctx, time.Now().Add(-olderThan))
}

// DescribeConversation loads a conversation and its parts; nil when absent.
func (d *Daemon) DescribeConversation(ctx context.Context, id string) (*store.Conversation, []*store.AudioPart, error) {
	conv, err := d.store.GetConversation(ctx, id)
	if err != nil || conv == nil {
		return nil, nil, err
	}
	parts, err := d.store.AudioPartsByConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conv, parts, nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// RunSweep enqueues an immediate retention sweep.
func (d *Daemon) RunSweep(ctx context.Context) (string, error) {
	return d.pipe.EnqueueSweep(ctx)
}
