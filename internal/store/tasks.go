package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = "id, kind, payload, status, attempt, max_attempts, stall_count, next_run_at, lease_expires_at, last_error, created_at, updated_at"

// EnqueueTask inserts a pending task runnable immediately.
func (s *Store) EnqueueTask(ctx context.Context, kind, payload string, maxAttempts int) (*Task, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	id := uuid.NewString()
	now := formatTime(time.Now())

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (id, kind, payload, status, attempt, max_attempts, stall_count, next_run_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, 0, ?, ?, ?)`,
		id,
		kind,
		payload,
		TaskPending,
		maxAttempts,
		now,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	return s.GetTask(ctx, id)
}

// GetTask fetches a task by identifier. Returns nil when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ClaimNextTask atomically claims the oldest runnable pending task of the
// given kind. The claim increments the attempt counter and grants a lease;
// a nil task means nothing is runnable right now.
func (s *Store) ClaimNextTask(ctx context.Context, kind string, lease time.Duration) (*Task, error) {
	ctx = ensureContext(ctx)
	now := time.Now()

	var (
		task    *Task
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE tasks
             SET status = ?, attempt = attempt + 1, lease_expires_at = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM tasks
                 WHERE kind = ? AND status = ? AND next_run_at <= ?
                 ORDER BY next_run_at, created_at
                 LIMIT 1
             )
             RETURNING `+taskColumns,
			TaskRunning,
			formatTime(now.Add(lease)),
			formatTime(now),
			kind,
			TaskPending,
			formatTime(now),
		)
		task, scanErr = scanTask(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// CompleteTask marks a running task done and releases its lease.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, lease_expires_at = NULL, last_error = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		TaskDone,
		formatTime(time.Now()),
		id,
		TaskRunning,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// RetryTaskAfter returns a running task to pending with a deferred run time.
func (s *Store) RetryTaskAfter(ctx context.Context, id string, delay time.Duration, lastError string) error {
	now := time.Now()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, next_run_at = ?, lease_expires_at = NULL, last_error = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		TaskPending,
		formatTime(now.Add(delay)),
		nullableString(lastError),
		formatTime(now),
		id,
		TaskRunning,
	)
	if err != nil {
		return fmt.Errorf("retry task: %w", err)
	}
	return nil
}

// MarkTaskDead moves a task to the dead state with a final error message.
func (s *Store) MarkTaskDead(ctx context.Context, id, lastError string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, lease_expires_at = NULL, last_error = ?, updated_at = ?
         WHERE id = ?`,
		TaskDead,
		nullableString(lastError),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark task dead: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases requeues running tasks whose lease has lapsed. A task
// is requeued at most once; a second lapse moves it to dead instead. Returns
// the identifiers of requeued and deadened tasks.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (requeued, deadened []string, err error) {
	now := formatTime(time.Now())

	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id, stall_count FROM tasks WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		TaskRunning,
		now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("find expired leases: %w", err)
	}
	type expired struct {
		id         string
		stallCount int
	}
	var lapsed []expired
	for rows.Next() {
		var e expired
		if scanErr := rows.Scan(&e.id, &e.stallCount); scanErr != nil {
			rows.Close()
			return nil, nil, scanErr
		}
		lapsed = append(lapsed, e)
	}
	if closeErr := rows.Err(); closeErr != nil {
		rows.Close()
		return nil, nil, closeErr
	}
	rows.Close()

	for _, e := range lapsed {
		if e.stallCount >= 1 {
			res, execErr := s.execWithRetry(
				ctx,
				`UPDATE tasks SET status = ?, lease_expires_at = NULL, last_error = ?, updated_at = ?
                 WHERE id = ? AND status = ? AND lease_expires_at <= ?`,
				TaskDead,
				"task stalled twice; giving up",
				now,
				e.id,
				TaskRunning,
				now,
			)
			if execErr != nil {
				return requeued, deadened, fmt.Errorf("deaden stalled task: %w", execErr)
			}
			if affected, _ := res.RowsAffected(); affected == 1 {
				deadened = append(deadened, e.id)
			}
			continue
		}

		res, execErr := s.execWithRetry(
			ctx,
			`UPDATE tasks SET status = ?, stall_count = stall_count + 1, lease_expires_at = NULL, next_run_at = ?, updated_at = ?
             WHERE id = ? AND status = ? AND lease_expires_at <= ?`,
			TaskPending,
			now,
			now,
			e.id,
			TaskRunning,
			now,
		)
		if execErr != nil {
			return requeued, deadened, fmt.Errorf("requeue stalled task: %w", execErr)
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			requeued = append(requeued, e.id)
		}
	}

	return requeued, deadened, nil
}

// TaskStatsByKind returns counts of tasks grouped by status for one kind.
func (s *Store) TaskStatsByKind(ctx context.Context, kind string) (TaskStats, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT status, COUNT(1) FROM tasks WHERE kind = ? GROUP BY status`,
		kind,
	)
	if err != nil {
		return TaskStats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	var stats TaskStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return TaskStats{}, err
		}
		switch TaskStatus(status) {
		case TaskPending:
			stats.Pending = count
		case TaskRunning:
			stats.Running = count
		case TaskDone:
			stats.Done = count
		case TaskDead:
			stats.Dead = count
		}
	}
	return stats, rows.Err()
}

// ListTasks returns tasks filtered by status, newest first. An empty status
// lists everything.
func (s *Store) ListTasks(ctx context.Context, status TaskStatus, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// RetryDeadTasks returns dead tasks to pending with a fresh attempt budget.
func (s *Store) RetryDeadTasks(ctx context.Context) (int, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, attempt = 0, stall_count = 0, next_run_at = ?, last_error = NULL, updated_at = ?
         WHERE status = ?`,
		TaskPending,
		now,
		now,
		TaskDead,
	)
	if err != nil {
		return 0, fmt.Errorf("retry dead tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// ClearDoneTasks removes completed tasks older than the cutoff.
func (s *Store) ClearDoneTasks(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks WHERE status = ? AND updated_at <= ?`,
		TaskDone,
		formatTime(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("clear done tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          string
		kind        string
		payload     string
		statusStr   string
		attempt     int
		maxAttempts int
		stallCount  int
		nextRunRaw  string
		leaseRaw    sql.NullString
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&payload,
		&statusStr,
		&attempt,
		&maxAttempts,
		&stallCount,
		&nextRunRaw,
		&leaseRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:          id,
		Kind:        kind,
		Payload:     payload,
		Status:      TaskStatus(statusStr),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		StallCount:  stallCount,
		LastError:   lastError.String,
	}
	if nextRun, err := parseTimeString(nextRunRaw); err == nil {
		task.NextRunAt = nextRun
	}
	if leaseRaw.Valid {
		if lease, err := parseTimeString(leaseRaw.String); err == nil {
			task.LeaseExpires = &lease
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
