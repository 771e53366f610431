package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/domain/task"
)

const taskColumns = `id, uid, list_id, title, description, status, position,
	done_at, archived_at, deleted_at, revision, created_at, updated_at`

func (r *SyncRepository) FindTask(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}

func (r *SyncRepository) InsertTask(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (id, uid, list_id, title, description, status, position,
			done_at, archived_at, deleted_at, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		t.ID, t.UID, t.ListID, t.Title, t.Description, string(t.Status), t.Position,
		nullTime(t.DoneAt), nullTime(t.ArchivedAt), nullTime(t.DeletedAt),
		t.Revision, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return affected(res, sync.ErrAlreadyExists)
}

func (r *SyncRepository) UpdateTask(ctx context.Context, t *task.Task, expectedRevision int64) error {
	query := `
		UPDATE tasks
		SET uid = $2, list_id = $3, title = $4, description = $5, status = $6, position = $7,
			done_at = $8, archived_at = $9, deleted_at = $10, revision = $11, updated_at = $12
		WHERE id = $1 AND revision = $13
	`

	res, err := r.db.ExecContext(ctx, query,
		t.ID, t.UID, t.ListID, t.Title, t.Description, string(t.Status), t.Position,
		nullTime(t.DoneAt), nullTime(t.ArchivedAt), nullTime(t.DeletedAt),
		t.Revision, t.UpdatedAt, expectedRevision)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return affected(res, sync.ErrRevisionConflict)
}

func (r *SyncRepository) ListTasksSince(ctx context.Context, uid string, since *time.Time) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE uid = $1`
	args := []any{uid}
	if since != nil {
		query += ` AND (updated_at > $2 OR deleted_at > $2)`
		args = append(args, *since)
	}
	query += ` ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := make([]task.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return out, nil
}

func scanTask(s scanner) (*task.Task, error) {
	var (
		t                             task.Task
		status                        string
		doneAt, archivedAt, deletedAt sql.NullTime
	)
	err := s.Scan(&t.ID, &t.UID, &t.ListID, &t.Title, &t.Description, &status, &t.Position,
		&doneAt, &archivedAt, &deletedAt, &t.Revision, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.DoneAt = timePtr(doneAt)
	t.ArchivedAt = timePtr(archivedAt)
	t.DeletedAt = timePtr(deletedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
