package taskqueue_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"parley/internal/config"
	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
	"parley/internal/taskqueue"
	"parley/internal/testsupport"
)

func newDispatcher(t *testing.T, cfg *config.Config, st *store.Store) *taskqueue.Dispatcher {
	t.Helper()
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.BackoffBaseSeconds = 1
	cfg.Workflow.BackoffMaxSeconds = 2
	return taskqueue.NewDispatcher(cfg, st, logging.NewNop())
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type recordingHook struct {
	mu    sync.Mutex
	tasks []*store.Task
	errs  []error
}

func (h *recordingHook) OnExhausted(ctx context.Context, task *store.Task, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
	h.errs = append(h.errs, err)
}

func (h *recordingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}

func TestDispatcherRunsTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)

	ctx := context.Background()
	done := make(chan string, 1)
	dispatcher.Register("transcribe", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error {
			done <- task.Payload
			return nil
		}),
		Workers: 1,
	})

	task, err := st.EnqueueTask(ctx, "transcribe", `{"part":"p1"}`, 3)
	if err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dispatcher.Stop()

	select {
	case payload := <-done:
		if payload != `{"part":"p1"}` {
			t.Fatalf("unexpected payload: %q", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}

	waitFor(t, 5*time.Second, func() bool {
		updated, err := st.GetTask(ctx, task.ID)
		return err == nil && updated != nil && updated.Status == store.TaskDone
	})
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)

	ctx := context.Background()
	dispatcher.Register("transcribe", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error {
			return services.Wrap(services.ErrTransient, "transcribe", "request", "upstream 503", nil)
		}),
		Workers: 1,
	})

	task, err := st.EnqueueTask(ctx, "transcribe", `{}`, 3)
	if err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dispatcher.Stop()

	waitFor(t, 5*time.Second, func() bool {
		updated, err := st.GetTask(ctx, task.ID)
		return err == nil && updated != nil &&
			updated.Status == store.TaskPending && updated.Attempt == 1
	})

	updated, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !updated.NextRunAt.After(time.Now()) {
		t.Fatalf("expected deferred next run, got %v", updated.NextRunAt)
	}
	if !strings.Contains(updated.LastError, "upstream 503") {
		t.Fatalf("unexpected last error: %q", updated.LastError)
	}
}

func TestDispatcherPermanentFailureSkipsRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)

	ctx := context.Background()
	hook := &recordingHook{}
	var calls int
	var mu sync.Mutex
	dispatcher.Register("transcribe", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return services.Wrap(services.ErrPermanent, "transcribe", "load audio", "blob missing", nil)
		}),
		Workers: 1,
		Hook:    hook,
	})

	task, err := st.EnqueueTask(ctx, "transcribe", `{}`, 3)
	if err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dispatcher.Stop()

	waitFor(t, 5*time.Second, func() bool {
		updated, err := st.GetTask(ctx, task.ID)
		return err == nil && updated != nil && updated.Status == store.TaskDead
	})
	waitFor(t, 5*time.Second, func() bool { return hook.count() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected single attempt for permanent failure, got %d", calls)
	}
	if !services.IsPermanent(hook.errs[0]) {
		t.Fatalf("expected permanent error in hook, got %v", hook.errs[0])
	}
}

func TestDispatcherQuotaExhaustionMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)

	ctx := context.Background()
	hook := &recordingHook{}
	dispatcher.Register("transcribe", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error {
			return services.Wrap(services.ErrQuota, "transcribe", "request", "http 429: rate limit", nil)
		}),
		Workers: 1,
		Hook:    hook,
	})

	task, err := st.EnqueueTask(ctx, "transcribe", `{}`, 2)
	if err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dispatcher.Stop()

	waitFor(t, 10*time.Second, func() bool {
		updated, err := st.GetTask(ctx, task.ID)
		return err == nil && updated != nil && updated.Status == store.TaskDead
	})

	updated, err := st.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !strings.Contains(updated.LastError, "quota exhausted") {
		t.Fatalf("expected quota-specific final message, got %q", updated.LastError)
	}
	if !strings.Contains(updated.LastError, "audio retained") {
		t.Fatalf("expected retention note in final message, got %q", updated.LastError)
	}
	waitFor(t, 5*time.Second, func() bool { return hook.count() == 1 })
	if !services.IsQuota(hook.errs[0]) {
		t.Fatalf("expected quota error in hook, got %v", hook.errs[0])
	}
}

func TestDispatcherRejectsDoubleStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)
	dispatcher.Register("noop", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error { return nil }),
	})

	ctx := context.Background()
	if err := dispatcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dispatcher.Stop()
	if err := dispatcher.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

func TestDispatcherStartRequiresHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)

	if err := dispatcher.Start(context.Background()); err == nil {
		t.Fatal("expected Start without handlers to fail")
	}
}

func TestDispatcherStatsCoversRegisteredKinds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	dispatcher := newDispatcher(t, cfg, st)
	dispatcher.Register("transcribe", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error { return nil }),
	})
	dispatcher.Register("analyze", taskqueue.Registration{
		Handler: taskqueue.HandlerFunc(func(ctx context.Context, task *store.Task) error { return nil }),
	})

	ctx := context.Background()
	if _, err := st.EnqueueTask(ctx, "transcribe", `{}`, 1); err != nil {
		t.Fatalf("EnqueueTask failed: %v", err)
	}

	stats, err := dispatcher.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 kinds, got %d", len(stats))
	}
	if stats["transcribe"].Pending != 1 {
		t.Fatalf("unexpected transcribe stats: %#v", stats["transcribe"])
	}
}
