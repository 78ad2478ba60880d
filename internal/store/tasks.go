package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

const taskColumns = `id, title, description, priority, status, assignee, created_at, updated_at, completed_at`

// CreateTask inserts a task. Duplicate IDs return ErrDuplicate.
func (s *Store) CreateTask(ctx context.Context, t model.Task) error {
	return retryOnBusy(ctx, defaultBusyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.Title, t.Description, t.Priority, string(t.Status), t.Assignee,
			toNanos(t.CreatedAt), toNanos(t.UpdatedAt), nullableNanos(t.CompletedAt),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("write task: %w", err)
		}
		return nil
	})
}

// GetTask returns a task or ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("read task: %w", err)
	}
	return t, nil
}

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Status      model.TaskStatus
	Assignee    string
	MinPriority int
	Limit       uint64
}

// ListTasks returns tasks matching f, highest priority first, then oldest.
// Returns an empty slice (not nil) if none match.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	b := sq.Select(taskColumns).From("tasks").OrderBy("priority DESC", "created_at ASC", "id ASC")
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Assignee != "" {
		b = b.Where(sq.Eq{"assignee": f.Assignee})
	}
	if f.MinPriority > 0 {
		b = b.Where(sq.GtOrEq{"priority": f.MinPriority})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// NextTask returns the highest-priority pending task, or ErrNotFound.
func (s *Store) NextTask(ctx context.Context) (model.Task, error) {
	tasks, err := s.ListTasks(ctx, TaskFilter{Status: model.TaskPending, Limit: 1})
	if err != nil {
		return model.Task{}, err
	}
	if len(tasks) == 0 {
		return model.Task{}, fmt.Errorf("next task: %w", ErrNotFound)
	}
	return tasks[0], nil
}

// UpdateTaskStatus sets a task's status. Completing a task stamps
// completed_at; any other status clears it.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus, at time.Time) (model.Task, error) {
	if !status.Valid() {
		return model.Task{}, fmt.Errorf("invalid task status %q", status)
	}
	var completedAt *time.Time
	if status == model.TaskCompleted {
		completedAt = &at
	}
	err := retryOnBusy(ctx, defaultBusyRetries, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tasks SET status = ?, updated_at = ?, completed_at = ?
			WHERE id = ?
		`, string(status), toNanos(at), nullableNanos(completedAt), id)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task. Deleting a missing task returns ErrNotFound.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t                    model.Task
		status               string
		createdAt, updatedAt int64
		completedAt          sql.NullInt64
	)
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &status, &t.Assignee, &createdAt, &updatedAt, &completedAt); err != nil {
		return model.Task{}, err
	}
	t.Status = model.TaskStatus(status)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	if completedAt.Valid {
		ts := fromNanos(completedAt.Int64)
		t.CompletedAt = &ts
	}
	return t, nil
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}
