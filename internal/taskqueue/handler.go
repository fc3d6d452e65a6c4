package taskqueue

import (
	"context"

	"parley/internal/store"
)

// Handler executes one claimed task. Returned errors are classified through
// the services error markers to decide between retry, permanent failure, and
// quota-aware failure.
type Handler interface {
	Execute(ctx context.Context, task *store.Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *store.Task) error

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, task *store.Task) error {
	return f(ctx, task)
}

// FailureHook observes tasks that will never run again, either because their
// retry budget is spent, their failure was permanent, or they stalled twice.
// Hooks run after the task row reaches the dead state.
type FailureHook interface {
	OnExhausted(ctx context.Context, task *store.Task, err error)
}

// Registration binds a handler to a task kind.
type Registration struct {
	Handler Handler
	Workers int
	Hook    FailureHook
}
