package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.SchedulerStore = (*schedulerStore)(nil)

// defaultHistoryLimit applies when GetTaskHistory is called with limit <= 0.
const defaultHistoryLimit = 20

const taskColumns = `id, name, interval_ms, last_run_at, next_run_at, last_success_at, last_error, enabled`

// schedulerStore persists scheduled task state and run history.
// Timestamps are unix milliseconds, matching the page claim columns.
type schedulerStore struct {
	store *Store
}

// GetTask returns nil, nil when the task has never been saved.
func (s *schedulerStore) GetTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns every saved task ordered by ID.
func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_ms = excluded.interval_ms,
			last_run_at = excluded.last_run_at,
			next_run_at = excluded.next_run_at,
			last_success_at = excluded.last_success_at,
			last_error = excluded.last_error,
			enabled = excluded.enabled
	`, task.ID, task.Name, task.Interval.Milliseconds(),
		nullMillis(task.LastRun), nullMillis(task.NextRun), nullMillis(task.LastSuccess),
		nullString(task.LastError), boolToInt(task.Enabled))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// DeleteTask removes the task and its run history.
func (s *schedulerStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete task: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_runs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete task runs %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return fmt.Errorf("%w: nil task result", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO task_runs (task_id, started_at, ended_at, success, error, items_processed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.TaskID, result.StartedAt.UnixMilli(), result.EndedAt.UnixMilli(),
		boolToInt(result.Success), nullString(result.Error), result.ItemsProcessed)
	if err != nil {
		return fmt.Errorf("record run for %s: %w", result.TaskID, err)
	}
	return nil
}

// GetTaskHistory returns the most recent runs of a task, newest first.
func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT task_id, started_at, ended_at, success, error, items_processed
		FROM task_runs
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("task history %s: %w", taskID, err)
	}
	defer rows.Close()

	var history []domain.TaskResult
	for rows.Next() {
		var (
			r                  domain.TaskResult
			startedAt, endedAt int64
			success            int
			errMsg             sql.NullString
		)
		if err := rows.Scan(&r.TaskID, &startedAt, &endedAt, &success, &errMsg, &r.ItemsProcessed); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		r.EndedAt = time.UnixMilli(endedAt).UTC()
		r.Success = success != 0
		r.Error = errMsg.String
		history = append(history, r)
	}
	return history, rows.Err()
}

// PruneHistory keeps the newest keep runs per task and deletes the rest.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}

	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM task_runs
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY task_id ORDER BY started_at DESC, id DESC
				) AS pos
				FROM task_runs
			)
			WHERE pos > ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("prune task runs: %w", err)
	}
	return nil
}

func scanTask(sc rowScanner) (*domain.ScheduledTask, error) {
	var (
		task                          domain.ScheduledTask
		intervalMs                    int64
		lastRun, nextRun, lastSuccess sql.NullInt64
		lastError                     sql.NullString
		enabled                       int
	)
	if err := sc.Scan(&task.ID, &task.Name, &intervalMs, &lastRun, &nextRun, &lastSuccess, &lastError, &enabled); err != nil {
		return nil, err
	}
	task.Interval = time.Duration(intervalMs) * time.Millisecond
	task.LastRun = fromNullMillis(lastRun)
	task.NextRun = fromNullMillis(nextRun)
	task.LastSuccess = fromNullMillis(lastSuccess)
	task.LastError = lastError.String
	task.Enabled = enabled != 0
	return &task, nil
}
