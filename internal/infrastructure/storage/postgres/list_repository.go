package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mammuth/gravity-tasks/internal/domain/list"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
)

const listColumns = `id, uid, name, position, deleted_at, revision, created_at, updated_at`

func (r *SyncRepository) FindList(ctx context.Context, id string) (*list.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE id = $1`

	l, err := scanList(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find list: %w", err)
	}
	return l, nil
}

func (r *SyncRepository) InsertList(ctx context.Context, l *list.List) error {
	query := `
		INSERT INTO lists (id, uid, name, position, deleted_at, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		l.ID, l.UID, l.Name, l.Position, nullTime(l.DeletedAt), l.Revision, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert list: %w", err)
	}
	return affected(res, sync.ErrAlreadyExists)
}

func (r *SyncRepository) UpdateList(ctx context.Context, l *list.List, expectedRevision int64) error {
	query := `
		UPDATE lists
		SET uid = $2, name = $3, position = $4, deleted_at = $5, revision = $6, updated_at = $7
		WHERE id = $1 AND revision = $8
	`

	res, err := r.db.ExecContext(ctx, query,
		l.ID, l.UID, l.Name, l.Position, nullTime(l.DeletedAt), l.Revision, l.UpdatedAt, expectedRevision)
	if err != nil {
		return fmt.Errorf("failed to update list: %w", err)
	}
	return affected(res, sync.ErrRevisionConflict)
}

func (r *SyncRepository) ListListsSince(ctx context.Context, uid string, since *time.Time) ([]list.List, error) {
	query := `SELECT ` + listColumns + ` FROM lists WHERE uid = $1`
	args := []any{uid}
	if since != nil {
		query += ` AND (updated_at > $2 OR deleted_at > $2)`
		args = append(args, *since)
	}
	query += ` ORDER BY updated_at, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	out := make([]list.List, 0)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lists: %w", err)
	}
	return out, nil
}

func scanList(s scanner) (*list.List, error) {
	var (
		l         list.List
		deletedAt sql.NullTime
	)
	if err := s.Scan(&l.ID, &l.UID, &l.Name, &l.Position, &deletedAt, &l.Revision, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.DeletedAt = timePtr(deletedAt)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}
